package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/maltedev/cloudstore/internal/crawl"
	"github.com/maltedev/cloudstore/internal/models"
)

type EbayParser struct {
	itemIDRe     *regexp.Regexp
	categoryIDRe *regexp.Regexp
	feedbackRe   *regexp.Regexp
}

func NewEbayParser() *EbayParser {
	return &EbayParser{
		itemIDRe:     regexp.MustCompile(`/itm/(?:[^/]+/)?(\d+)`),
		categoryIDRe: regexp.MustCompile(`/b/[^/]+/(\d+)`),
		feedbackRe:   regexp.MustCompile(`([\d.]+)%`),
	}
}

func (p *EbayParser) Parse(body string, kind crawl.OpKind) (*models.CanonicalResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ebay: parse document: %w", err)
	}

	switch kind {
	case crawl.OpSearch:
		return p.parseListings(doc)
	case crawl.OpFetchDetail:
		return p.parseItem(doc)
	case crawl.OpFetchCategories:
		return p.parseCategories(doc)
	default:
		return nil, fmt.Errorf("ebay: unsupported operation %q", kind)
	}
}

func (p *EbayParser) parseListings(doc *goquery.Document) (*models.CanonicalResult, error) {
	var products []models.Product

	doc.Find("li.s-item").Each(func(_ int, card *goquery.Selection) {
		title := cleanText(card.Find(".s-item__title").First().Text())
		// The first card on every results page is a "Shop on eBay" placeholder.
		if title == "" || strings.EqualFold(title, "Shop on eBay") {
			return
		}
		href, ok := card.Find("a.s-item__link").First().Attr("href")
		if !ok {
			return
		}
		m := p.itemIDRe.FindStringSubmatch(href)
		if m == nil {
			return
		}

		priceText := cleanText(card.Find(".s-item__price").First().Text())
		product := models.Product{
			ID:        m[1],
			Site:      string(crawl.SiteEbay),
			URL:       href,
			Title:     title,
			Price:     priceFrom(priceText),
			CrawledAt: nowUTC(),
		}

		if src, ok := card.Find(".s-item__image img").First().Attr("src"); ok && src != "" {
			product.Images = []string{src}
		}
		if shipping := cleanText(card.Find(".s-item__shipping").First().Text()); strings.Contains(strings.ToLower(shipping), "free") {
			product.FreeShipping = true
		}
		if loc := cleanText(card.Find(".s-item__location").First().Text()); loc != "" {
			product.ShipsFrom = strings.TrimPrefix(loc, "from ")
		}

		products = append(products, product)
	})

	pagination := models.Pagination{
		Page:         1,
		TotalPages:   paginationTotal(doc, "", ".pagination__items a"),
		ItemsPerPage: len(products),
		TotalItems:   extractInt(doc.Find(".srp-controls__count-heading").First().Text()),
	}
	if n := extractInt(doc.Find(".pagination__items a[aria-current='page']").First().Text()); n > 0 {
		pagination.Page = n
	}

	return searchResultOf(products, pagination), nil
}

func (p *EbayParser) parseItem(doc *goquery.Document) (*models.CanonicalResult, error) {
	itemID := ""
	if href, ok := doc.Find("link[rel='canonical']").Attr("href"); ok {
		if m := p.itemIDRe.FindStringSubmatch(href); m != nil {
			itemID = m[1]
		}
	}
	if itemID == "" {
		return nil, fmt.Errorf("ebay: item id not found on detail page")
	}

	priceText := cleanText(doc.Find(".x-price-primary").First().Text())
	product := &models.Product{
		ID:        itemID,
		Site:      string(crawl.SiteEbay),
		URL:       fmt.Sprintf("https://www.ebay.com/itm/%s", itemID),
		Title:     cleanText(doc.Find("h1.x-item-title__mainTitle").First().Text()),
		Price:     priceFrom(priceText),
		CrawledAt: nowUTC(),
	}

	doc.Find(".ux-image-carousel-item img").Each(func(_ int, img *goquery.Selection) {
		if src, ok := img.Attr("src"); ok && src != "" {
			product.Images = append(product.Images, src)
		}
	})

	doc.Find(".ux-layout-section-evo dl").Each(func(_ int, dl *goquery.Selection) {
		name := cleanText(dl.Find("dt").Text())
		value := cleanText(dl.Find("dd").Text())
		if name != "" && value != "" {
			product.Specs = append(product.Specs, models.Specification{Name: name, Value: value})
		}
	})

	if card := doc.Find(".x-sellercard-atf").First(); card.Length() > 0 {
		link := card.Find("a").First()
		seller := &models.Seller{Name: cleanText(link.Text())}
		if href, ok := link.Attr("href"); ok {
			seller.URL = href
		}
		if m := p.feedbackRe.FindStringSubmatch(card.Text()); m != nil {
			seller.PositiveFeedback = extractPrice(m[1])
		}
		if seller.Name != "" {
			product.Seller = seller
		}
	}

	if loc := cleanText(doc.Find(".ux-seller-section__item--location, .d-shipping-minview .ux-textspans--SECONDARY").First().Text()); loc != "" {
		product.ShipsFrom = strings.TrimPrefix(loc, "Located in: ")
	}

	return &models.CanonicalResult{Kind: models.ResultDetail, Product: product}, nil
}

func (p *EbayParser) parseCategories(doc *goquery.Document) (*models.CanonicalResult, error) {
	var categories []models.Category
	seen := map[string]bool{}

	doc.Find("a[href*='/b/']").Each(func(_ int, link *goquery.Selection) {
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		m := p.categoryIDRe.FindStringSubmatch(href)
		if m == nil || seen[m[1]] {
			return
		}
		name := cleanText(link.Text())
		if name == "" {
			return
		}
		seen[m[1]] = true
		categories = append(categories, models.Category{
			ID:   m[1],
			Name: name,
			URL:  absoluteURL(href, "https://www.ebay.com"),
		})
	})

	if len(categories) == 0 {
		return nil, fmt.Errorf("ebay: no categories found")
	}
	return &models.CanonicalResult{Kind: models.ResultCategories, Categories: categories}, nil
}

package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/maltedev/cloudstore/internal/crawl"
	"github.com/maltedev/cloudstore/internal/models"
)

// AliExpressParser handles both the desktop and mobile page shapes; the
// selectors below carry a desktop variant and a mobile fallback.
type AliExpressParser struct {
	itemIDRe     *regexp.Regexp
	categoryIDRe *regexp.Regexp
	storeIDRe    *regexp.Regexp
}

func NewAliExpressParser() *AliExpressParser {
	return &AliExpressParser{
		itemIDRe:     regexp.MustCompile(`/(?:item|i)/(\d+)\.html`),
		categoryIDRe: regexp.MustCompile(`category/(\d+)`),
		storeIDRe:    regexp.MustCompile(`store/(\d+)`),
	}
}

func (p *AliExpressParser) Parse(body string, kind crawl.OpKind) (*models.CanonicalResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("aliexpress: parse document: %w", err)
	}

	switch kind {
	case crawl.OpSearch:
		return p.parseListings(doc)
	case crawl.OpFetchDetail:
		return p.parseItem(doc)
	case crawl.OpFetchCategories:
		return p.parseCategories(doc)
	default:
		return nil, fmt.Errorf("aliexpress: unsupported operation %q", kind)
	}
}

func (p *AliExpressParser) parseListings(doc *goquery.Document) (*models.CanonicalResult, error) {
	var products []models.Product

	doc.Find(".Manhattan--container--1lP57Ag, .product-item").Each(func(_ int, card *goquery.Selection) {
		href, ok := card.Find("a[href*='/item/']").First().Attr("href")
		if !ok {
			return
		}
		m := p.itemIDRe.FindStringSubmatch(href)
		if m == nil {
			return
		}

		priceText := cleanText(card.Find(".Manhattan--price--WTyAPsU, .product-price-value").First().Text())
		product := models.Product{
			ID:        m[1],
			Site:      string(crawl.SiteAliExpress),
			URL:       absoluteURL(href, "https://www.aliexpress.com"),
			Title:     cleanText(card.Find(".Manhattan--titleText--WccSjUS, .product-title").First().Text()),
			Price:     priceFrom(priceText),
			CrawledAt: nowUTC(),
		}

		if orig := cleanText(card.Find(".Manhattan--price-original--1kPJf6j").First().Text()); orig != "" {
			product.Price.Original = &models.Money{Value: extractPrice(orig), Currency: product.Price.Current.Currency}
		}
		if src, ok := card.Find("img").First().Attr("src"); ok && src != "" {
			product.Images = []string{src}
		}

		// The trade block carries either "1,234 sold" or a shipping note.
		trade := cleanText(card.Find(".Manhattan--trade--2PeJIEB").First().Text())
		if strings.Contains(strings.ToLower(trade), "sold") {
			product.OrdersCount = extractInt(trade)
		}
		if strings.Contains(strings.ToLower(trade), "free shipping") {
			product.FreeShipping = true
		}
		if rating := cleanText(card.Find(".Manhattan--evaluation--3cSMUCf").First().Text()); rating != "" {
			product.Rating = extractPrice(rating)
		}

		products = append(products, product)
	})

	return searchResultOf(products, models.Pagination{
		Page:         paginationCurrent(doc, ".Pagination--active--QH5zzGg"),
		TotalPages:   paginationTotal(doc, ".Pagination--pageTotal--3JgG6k8", "a.pagination-item"),
		ItemsPerPage: len(products),
	}), nil
}

func (p *AliExpressParser) parseItem(doc *goquery.Document) (*models.CanonicalResult, error) {
	productID := p.canonicalItemID(doc)
	if productID == "" {
		return nil, fmt.Errorf("aliexpress: product id not found on detail page")
	}

	priceText := cleanText(doc.Find(".uniform-banner-box-price").First().Text())
	product := &models.Product{
		ID:          productID,
		Site:        string(crawl.SiteAliExpress),
		URL:         fmt.Sprintf("https://www.aliexpress.com/item/%s.html", productID),
		Title:       cleanText(doc.Find(".product-title-text").First().Text()),
		Description: cleanText(doc.Find(".product-description").First().Text()),
		Price:       priceFrom(priceText),
		CrawledAt:   nowUTC(),
	}

	if orig := cleanText(doc.Find(".uniform-banner-box-discounts").First().Text()); orig != "" {
		product.Price.Original = &models.Money{Value: extractPrice(orig), Currency: product.Price.Current.Currency}
	}

	doc.Find(".product-image img").Each(func(_ int, img *goquery.Selection) {
		if src, ok := img.Attr("src"); ok && src != "" {
			product.Images = append(product.Images, src)
		}
	})

	doc.Find(".specification li").Each(func(_ int, row *goquery.Selection) {
		name := cleanText(row.Find(".name").Text())
		value := cleanText(row.Find(".value").Text())
		if name == "" {
			if parts := strings.SplitN(cleanText(row.Text()), ":", 2); len(parts) == 2 {
				name, value = strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
			}
		}
		if name != "" && value != "" {
			product.Specs = append(product.Specs, models.Specification{Name: name, Value: value})
		}
	})

	if rating := cleanText(doc.Find(".overview-rating-average").First().Text()); rating != "" {
		product.Rating = extractPrice(rating)
	}
	product.ReviewCount = extractInt(doc.Find(".product-reviewer-reviews").First().Text())
	product.OrdersCount = extractInt(doc.Find(".product-reviewer-sold").First().Text())

	if from := cleanText(doc.Find(".product-shipping-from").First().Text()); from != "" {
		product.ShipsFrom = strings.TrimPrefix(from, "From ")
	}
	if doc.Find(".product-shipping-free").Length() > 0 {
		product.FreeShipping = true
	}

	if store := doc.Find(".store-info .shop-name").First(); store.Length() > 0 {
		seller := &models.Seller{Name: cleanText(store.Text())}
		if href, ok := store.Attr("href"); ok {
			seller.URL = absoluteURL(href, "https://www.aliexpress.com")
			if m := p.storeIDRe.FindStringSubmatch(href); m != nil {
				seller.ID = m[1]
			}
		}
		if fb := cleanText(doc.Find(".store-info .positive-feedback").First().Text()); fb != "" {
			seller.PositiveFeedback = extractPrice(fb)
		}
		seller.FollowersCount = extractInt(doc.Find(".store-info .follower-count").First().Text())
		product.Seller = seller
	}

	if href, ok := doc.Find(".breadcrumb a").Last().Attr("href"); ok {
		if m := p.categoryIDRe.FindStringSubmatch(href); m != nil {
			product.CategoryID = m[1]
		}
	}

	return &models.CanonicalResult{Kind: models.ResultDetail, Product: product}, nil
}

func (p *AliExpressParser) parseCategories(doc *goquery.Document) (*models.CanonicalResult, error) {
	var categories []models.Category
	seen := map[string]bool{}

	doc.Find(".categories-list a, .category-list a").Each(func(_ int, link *goquery.Selection) {
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
			URL:  absoluteURL(href, "https://www.aliexpress.com"),
		})
	})

	if len(categories) == 0 {
		return nil, fmt.Errorf("aliexpress: no categories found")
	}
	return &models.CanonicalResult{Kind: models.ResultCategories, Categories: categories}, nil
}

func (p *AliExpressParser) canonicalItemID(doc *goquery.Document) string {
	if href, ok := doc.Find("link[rel='canonical']").Attr("href"); ok {
		if m := p.itemIDRe.FindStringSubmatch(href); m != nil {
			return m[1]
		}
	}
	if content, ok := doc.Find("meta[property='og:url']").Attr("content"); ok {
		if m := p.itemIDRe.FindStringSubmatch(content); m != nil {
			return m[1]
		}
	}
	return ""
}

func priceFrom(text string) models.Price {
	return models.Price{Current: models.Money{Value: extractPrice(text), Currency: currencyOf(text)}}
}

func absoluteURL(href, base string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	if strings.HasPrefix(href, "/") {
		return base + href
	}
	return base + "/" + href
}

func paginationCurrent(doc *goquery.Document, selector string) int {
	if n := extractInt(doc.Find(selector).First().Text()); n > 0 {
		return n
	}
	return 1
}

func paginationTotal(doc *goquery.Document, totalSelector, linkSelector string) int {
	if totalSelector != "" {
		if n := extractInt(doc.Find(totalSelector).First().Text()); n > 0 {
			return n
		}
	}
	total := 1
	doc.Find(linkSelector).Each(func(_ int, link *goquery.Selection) {
		if n := extractInt(link.Text()); n > total {
			total = n
		}
	})
	return total
}

package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/maltedev/cloudstore/internal/crawl"
	"github.com/maltedev/cloudstore/internal/models"
)

type ShopGoodwillParser struct {
	itemIDRe     *regexp.Regexp
	categoryIDRe *regexp.Regexp
	bidsRe       *regexp.Regexp
}

func NewShopGoodwillParser() *ShopGoodwillParser {
	return &ShopGoodwillParser{
		itemIDRe:     regexp.MustCompile(`/item/(\d+)`),
		categoryIDRe: regexp.MustCompile(`categoryId=(\d+)`),
		bidsRe:       regexp.MustCompile(`(\d+)\s+bids?`),
	}
}

func (p *ShopGoodwillParser) Parse(body string, kind crawl.OpKind) (*models.CanonicalResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("shopgoodwill: parse document: %w", err)
	}

	switch kind {
	case crawl.OpSearch:
		return p.parseListings(doc)
	case crawl.OpFetchDetail:
		return p.parseItem(doc)
	case crawl.OpFetchCategories:
		return p.parseCategories(doc)
	default:
		return nil, fmt.Errorf("shopgoodwill: unsupported operation %q", kind)
	}
}

func (p *ShopGoodwillParser) parseListings(doc *goquery.Document) (*models.CanonicalResult, error) {
	var products []models.Product

	doc.Find(".mb-4.p-3.border.rounded").Each(func(_ int, card *goquery.Selection) {
		href, ok := card.Find("a[href*='/item/']").First().Attr("href")
		if !ok {
			return
		}
		m := p.itemIDRe.FindStringSubmatch(href)
		if m == nil {
			return
		}

		priceText := cleanText(card.Find(".h5").First().Text())
		product := models.Product{
			ID:        m[1],
			Site:      string(crawl.SiteShopGoodwill),
			URL:       absoluteURL(href, "https://shopgoodwill.com"),
			Title:     cleanText(card.Find(".font-weight-bold.mb-2").First().Text()),
			Price:     priceFrom(priceText),
			CrawledAt: nowUTC(),
		}

		if src, ok := card.Find(".card-img-top").First().Attr("src"); ok && src != "" {
			product.Images = []string{src}
		}

		// Listing metadata lives in small muted rows keyed by a label prefix.
		card.Find(".small.text-muted").Each(func(_ int, row *goquery.Selection) {
			text := cleanText(row.Text())
			switch {
			case strings.HasPrefix(text, "Seller:"):
				name := strings.TrimSpace(strings.TrimPrefix(text, "Seller:"))
				if name != "" {
					product.Seller = &models.Seller{Name: name}
				}
			case p.bidsRe.MatchString(text):
				product.OrdersCount = extractInt(p.bidsRe.FindString(text))
			}
		})

		products = append(products, product)
	})

	return searchResultOf(products, models.Pagination{
		Page:         1,
		TotalPages:   paginationTotal(doc, "", ".page-item a.page-link"),
		ItemsPerPage: len(products),
	}), nil
}

func (p *ShopGoodwillParser) parseItem(doc *goquery.Document) (*models.CanonicalResult, error) {
	itemID := ""
	if href, ok := doc.Find("link[rel='canonical']").Attr("href"); ok {
		if m := p.itemIDRe.FindStringSubmatch(href); m != nil {
			itemID = m[1]
		}
	}
	if itemID == "" {
		return nil, fmt.Errorf("shopgoodwill: item id not found on detail page")
	}

	priceText := cleanText(doc.Find(".h3.font-weight-bold").First().Text())
	product := &models.Product{
		ID:          itemID,
		Site:        string(crawl.SiteShopGoodwill),
		URL:         fmt.Sprintf("https://shopgoodwill.com/item/%s", itemID),
		Title:       cleanText(doc.Find(".h4.mb-3").First().Text()),
		Description: cleanText(doc.Find("#item-description").First().Text()),
		Price:       priceFrom(priceText),
		CrawledAt:   nowUTC(),
	}

	doc.Find(".carousel-item img").Each(func(_ int, img *goquery.Selection) {
		if src, ok := img.Attr("src"); ok && src != "" {
			product.Images = append(product.Images, src)
		}
	})

	doc.Find(".mb-2").Each(func(_ int, row *goquery.Selection) {
		text := cleanText(row.Text())
		for _, label := range []string{"Condition", "Shipping", "End Date"} {
			if value, found := strings.CutPrefix(text, label+":"); found {
				product.Specs = append(product.Specs, models.Specification{
					Name:  label,
					Value: strings.TrimSpace(value),
				})
			}
		}
		if value, found := strings.CutPrefix(text, "Seller:"); found {
			if name := strings.TrimSpace(value); name != "" {
				product.Seller = &models.Seller{Name: name}
			}
		}
	})

	return &models.CanonicalResult{Kind: models.ResultDetail, Product: product}, nil
}

func (p *ShopGoodwillParser) parseCategories(doc *goquery.Document) (*models.CanonicalResult, error) {
	var categories []models.Category

	doc.Find(".list-group-item").Each(func(_ int, entry *goquery.Selection) {
		name := cleanText(entry.Find(".font-weight-bold").First().Text())
		href, _ := entry.Find("a").First().Attr("href")
		if href == "" && goquery.NodeName(entry) == "a" {
			href, _ = entry.Attr("href")
		}
		m := p.categoryIDRe.FindStringSubmatch(href)
		if m == nil || name == "" {
			return
		}
		categories = append(categories, models.Category{
			ID:   m[1],
			Name: name,
			URL:  absoluteURL(href, "https://shopgoodwill.com"),
		})
	})

	if len(categories) == 0 {
		return nil, fmt.Errorf("shopgoodwill: no categories found")
	}
	return &models.CanonicalResult{Kind: models.ResultCategories, Categories: categories}, nil
}

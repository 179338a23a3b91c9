package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/maltedev/cloudstore/internal/crawl"
	"github.com/maltedev/cloudstore/internal/models"
)

type AmazonParser struct {
	asinRe   *regexp.Regexp
	nodeRe   *regexp.Regexp
	ratingRe *regexp.Regexp
}

func NewAmazonParser() *AmazonParser {
	return &AmazonParser{
		asinRe:   regexp.MustCompile(`/dp/([A-Z0-9]{10})(?:/|\?|$)`),
		nodeRe:   regexp.MustCompile(`node=(\d+)`),
		ratingRe: regexp.MustCompile(`([\d.]+) out of 5`),
	}
}

func (p *AmazonParser) Parse(body string, kind crawl.OpKind) (*models.CanonicalResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("amazon: parse document: %w", err)
	}

	switch kind {
	case crawl.OpSearch:
		return p.parseListings(doc)
	case crawl.OpFetchDetail:
		return p.parseItem(doc)
	case crawl.OpFetchCategories:
		return p.parseCategories(doc)
	default:
		return nil, fmt.Errorf("amazon: unsupported operation %q", kind)
	}
}

func (p *AmazonParser) parseListings(doc *goquery.Document) (*models.CanonicalResult, error) {
	var products []models.Product

	doc.Find("div.s-result-item[data-asin]").Each(func(_ int, card *goquery.Selection) {
		asin, _ := card.Attr("data-asin")
		if asin == "" {
			return
		}
		title := cleanText(card.Find("h2 span").First().Text())
		if title == "" {
			return
		}

		priceText := cleanText(card.Find(".a-price .a-offscreen").First().Text())
		product := models.Product{
			ID:        asin,
			Site:      string(crawl.SiteAmazon),
			URL:       fmt.Sprintf("https://www.amazon.com/dp/%s", asin),
			Title:     title,
			Price:     priceFrom(priceText),
			CrawledAt: nowUTC(),
		}

		if src, ok := card.Find("img.s-image").First().Attr("src"); ok && src != "" {
			product.Images = []string{src}
		}
		if m := p.ratingRe.FindStringSubmatch(card.Find(".a-icon-alt").First().Text()); m != nil {
			product.Rating = extractPrice(m[1])
		}
		product.ReviewCount = extractInt(card.Find(".s-underline-text").First().Text())

		products = append(products, product)
	})

	pagination := models.Pagination{
		Page:         paginationCurrent(doc, ".s-pagination-item.s-pagination-selected"),
		TotalPages:   paginationTotal(doc, ".s-pagination-item.s-pagination-disabled:last-of-type", ".s-pagination-item"),
		ItemsPerPage: len(products),
	}

	return searchResultOf(products, pagination), nil
}

func (p *AmazonParser) parseItem(doc *goquery.Document) (*models.CanonicalResult, error) {
	asin := p.canonicalASIN(doc)
	if asin == "" {
		return nil, fmt.Errorf("amazon: asin not found on detail page")
	}

	title := cleanText(doc.Find("#productTitle").First().Text())
	if title == "" {
		return nil, fmt.Errorf("amazon: product title not found")
	}

	priceText := cleanText(doc.Find("#corePrice_feature_div .a-offscreen, .a-price .a-offscreen").First().Text())
	product := &models.Product{
		ID:          asin,
		Site:        string(crawl.SiteAmazon),
		URL:         fmt.Sprintf("https://www.amazon.com/dp/%s", asin),
		Title:       title,
		Brand:       strings.TrimPrefix(cleanText(doc.Find("#bylineInfo").First().Text()), "Brand: "),
		Description: cleanText(doc.Find("#productDescription p").First().Text()),
		Price:       priceFrom(priceText),
		CrawledAt:   nowUTC(),
	}

	if src, ok := doc.Find("#landingImage").First().Attr("src"); ok && src != "" {
		product.Images = append(product.Images, src)
	}

	doc.Find("#productDetails_techSpec_section_1 tr").Each(func(_ int, row *goquery.Selection) {
		name := cleanText(row.Find("th").Text())
		value := cleanText(row.Find("td").Text())
		if name != "" && value != "" {
			product.Specs = append(product.Specs, models.Specification{Name: name, Value: value})
		}
	})

	if m := p.ratingRe.FindStringSubmatch(doc.Find("#acrPopover .a-icon-alt").First().Text()); m != nil {
		product.Rating = extractPrice(m[1])
	}
	product.ReviewCount = extractInt(doc.Find("#acrCustomerReviewText").First().Text())

	if node, ok := doc.Find("#wayfinding-breadcrumbs_feature_div a").Last().Attr("href"); ok {
		if m := p.nodeRe.FindStringSubmatch(node); m != nil {
			product.CategoryID = m[1]
		}
	}

	return &models.CanonicalResult{Kind: models.ResultDetail, Product: product}, nil
}

func (p *AmazonParser) parseCategories(doc *goquery.Document) (*models.CanonicalResult, error) {
	var categories []models.Category
	seen := map[string]bool{}

	doc.Find("a[href*='node=']").Each(func(_ int, link *goquery.Selection) {
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		m := p.nodeRe.FindStringSubmatch(href)
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
			URL:  absoluteURL(href, "https://www.amazon.com"),
		})
	})

	if len(categories) == 0 {
		return nil, fmt.Errorf("amazon: no categories found")
	}
	return &models.CanonicalResult{Kind: models.ResultCategories, Categories: categories}, nil
}

func (p *AmazonParser) canonicalASIN(doc *goquery.Document) string {
	if href, ok := doc.Find("link[rel='canonical']").Attr("href"); ok {
		if m := p.asinRe.FindStringSubmatch(href); m != nil {
			return m[1]
		}
	}
	if asin, ok := doc.Find("#averageCustomerReviews").Attr("data-asin"); ok && asin != "" {
		return asin
	}
	if asin, ok := doc.Find("input#ASIN").Attr("value"); ok && asin != "" {
		return asin
	}
	return ""
}

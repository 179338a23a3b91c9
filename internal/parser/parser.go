// Package parser turns raw HTML bodies into canonical records. Each site
// parser implements crawl.Parser; the crawl core never sees page structure.
package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/maltedev/cloudstore/internal/crawl"
	"github.com/maltedev/cloudstore/internal/models"
)

// ForSite returns the parser for a site.
func ForSite(site crawl.Site) (crawl.Parser, error) {
	switch site {
	case crawl.SiteAliExpress:
		return NewAliExpressParser(), nil
	case crawl.SiteEbay:
		return NewEbayParser(), nil
	case crawl.SiteShopGoodwill:
		return NewShopGoodwillParser(), nil
	case crawl.SiteAmazon:
		return NewAmazonParser(), nil
	default:
		return nil, fmt.Errorf("no parser for site %q", site)
	}
}

var priceRe = regexp.MustCompile(`(\d+(?:[.,]\d{3})*(?:[.,]\d{1,2})?)`)

// cleanText collapses whitespace runs and trims the result.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// extractPrice pulls the first numeric amount out of a price string like
// "US $15.99" or "1.299,00 €". Returns 0 when nothing matches.
func extractPrice(s string) float64 {
	m := priceRe.FindString(s)
	if m == "" {
		return 0
	}
	// Normalize thousands/decimal separators: treat the last separator as
	// the decimal point when it is followed by at most two digits.
	lastComma := strings.LastIndex(m, ",")
	lastDot := strings.LastIndex(m, ".")
	sep := max(lastComma, lastDot)
	if sep >= 0 && len(m)-sep-1 <= 2 {
		intPart := strings.Map(dropSeparators, m[:sep])
		frac := m[sep+1:]
		m = intPart + "." + frac
	} else {
		m = strings.Map(dropSeparators, m)
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	return v
}

func dropSeparators(r rune) rune {
	if r == ',' || r == '.' {
		return -1
	}
	return r
}

// extractInt pulls the first integer out of a string like "1,234 sold".
func extractInt(s string) int {
	m := regexp.MustCompile(`\d[\d,.]*`).FindString(s)
	if m == "" {
		return 0
	}
	m = strings.Map(dropSeparators, m)
	v, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return v
}

func currencyOf(s string) string {
	switch {
	case strings.Contains(s, "€"):
		return "EUR"
	case strings.Contains(s, "£"):
		return "GBP"
	default:
		return "USD"
	}
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func searchResultOf(products []models.Product, pagination models.Pagination) *models.CanonicalResult {
	return &models.CanonicalResult{
		Kind:   models.ResultSearch,
		Search: &models.SearchResult{Products: products, Pagination: pagination},
	}
}

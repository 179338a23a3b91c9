package sites

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/maltedev/cloudstore/internal/crawl"
	"github.com/maltedev/cloudstore/internal/models"
)

// AliExpress is the most aggressively defended target; the alternate
// profile is the mobile site, which serves simpler markup and trips fewer
// checks.
func aliexpressProfile() *Profile {
	p := &Profile{
		Site:          crawl.SiteAliExpress,
		ProxyRequired: true,
		AntiBotMarkers: []string{
			"captcha",
			"security check",
			"human verification",
			"verify you are human",
			"suspicious activity",
			"unusual traffic",
		},
		Landmarks: []string{
			"aliexpress",
		},
		CookieTemplate: aliexpressCookies,
		primary:        endpoint{base: "https://www.aliexpress.com", headers: desktopHeaders()},
		alternate:      endpoint{base: "https://m.aliexpress.com", headers: mobileHeaders()},
	}
	p.buildPath = aliexpressPath
	return p
}

// aliexpressCookies derives the locale/currency/region cookies the site
// expects before it serves localized pages.
func aliexpressCookies(locale, currency, region string) map[string]string {
	return map[string]string{
		"aep_usuc_f":  fmt.Sprintf("site=glo&c_tp=%s&region=%s&b_locale=%s", currency, region, locale),
		"intl_locale": locale,
		"xman_us_f":   fmt.Sprintf("x_l=0&x_locale=%s", locale),
	}
}

func aliexpressPath(op crawl.Operation, base string) (string, url.Values, error) {
	switch op.Kind {
	case crawl.OpSearch:
		params := url.Values{}
		params.Set("SearchText", op.Query)
		params.Set("page", strconv.Itoa(max(op.Page, 1)))
		params.Set("SortType", aliexpressSort(op.Sort))
		params.Set("g", "y")
		if op.CategoryID != "" {
			params.Set("CatId", op.CategoryID)
		} else {
			params.Set("CatId", "0")
		}
		applyAliexpressFilters(params, op.Filters)
		return base + "/wholesale", params, nil

	case crawl.OpFetchDetail:
		if op.ProductID == "" {
			return "", nil, fmt.Errorf("aliexpress: product id required")
		}
		return fmt.Sprintf("%s/item/%s.html", base, op.ProductID), nil, nil

	case crawl.OpFetchCategories:
		if op.ParentCategoryID != "" {
			return fmt.Sprintf("%s/category/%s.html", base, op.ParentCategoryID), nil, nil
		}
		return base + "/all-wholesale-products.html", nil, nil

	default:
		return "", nil, fmt.Errorf("aliexpress: unsupported operation %q", op.Kind)
	}
}

func applyAliexpressFilters(params url.Values, f *models.SearchFilters) {
	if f == nil {
		return
	}
	if f.MinPrice != nil {
		params.Set("minPrice", strconv.FormatFloat(*f.MinPrice, 'f', -1, 64))
	}
	if f.MaxPrice != nil {
		params.Set("maxPrice", strconv.FormatFloat(*f.MaxPrice, 'f', -1, 64))
	}
	if f.FreeShipping {
		params.Set("isFreeShip", "y")
	}
	if f.ShipFrom != "" {
		params.Set("shipFromCountry", f.ShipFrom)
	}
	if f.MinRating > 0 {
		params.Set("feedback", fmt.Sprintf("%df", int(f.MinRating)))
	}
}

func aliexpressSort(s models.SortOption) string {
	switch s {
	case models.SortPriceAsc:
		return "price_asc"
	case models.SortPriceDesc:
		return "price_desc"
	case models.SortOrders:
		return "orders"
	case models.SortNewest:
		return "newest"
	default:
		return "bestmatch"
	}
}

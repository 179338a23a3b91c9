package sites

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/maltedev/cloudstore/internal/crawl"
	"github.com/maltedev/cloudstore/internal/models"
)

func amazonProfile() *Profile {
	p := &Profile{
		Site:          crawl.SiteAmazon,
		ProxyRequired: true,
		AntiBotMarkers: []string{
			"robot check",
			"enter the characters you see below",
			"api-services-support@amazon.com",
			"captcha",
		},
		Landmarks: []string{
			"amazon",
		},
		primary:   endpoint{base: "https://www.amazon.com", headers: desktopHeaders()},
		alternate: endpoint{base: "https://www.amazon.com", headers: mobileHeaders()},
	}
	p.buildPath = amazonPath
	return p
}

func amazonPath(op crawl.Operation, base string) (string, url.Values, error) {
	switch op.Kind {
	case crawl.OpSearch:
		params := url.Values{}
		params.Set("k", op.Query)
		params.Set("page", strconv.Itoa(max(op.Page, 1)))
		if op.CategoryID != "" {
			params.Set("i", op.CategoryID)
		}
		if s := amazonSort(op.Sort); s != "" {
			params.Set("s", s)
		}
		if f := op.Filters; f != nil && f.MinPrice != nil && f.MaxPrice != nil {
			// Amazon expresses price bounds in cents through a single rh filter.
			params.Set("rh", fmt.Sprintf("p_36:%d-%d", int(*f.MinPrice*100), int(*f.MaxPrice*100)))
		}
		return base + "/s", params, nil

	case crawl.OpFetchDetail:
		if op.ProductID == "" {
			return "", nil, fmt.Errorf("amazon: asin required")
		}
		return fmt.Sprintf("%s/dp/%s", base, op.ProductID), nil, nil

	case crawl.OpFetchCategories:
		if op.ParentCategoryID != "" {
			return fmt.Sprintf("%s/b?node=%s", base, op.ParentCategoryID), nil, nil
		}
		return base + "/gp/site-directory", nil, nil

	default:
		return "", nil, fmt.Errorf("amazon: unsupported operation %q", op.Kind)
	}
}

func amazonSort(s models.SortOption) string {
	switch s {
	case models.SortPriceAsc:
		return "price-asc-rank"
	case models.SortPriceDesc:
		return "price-desc-rank"
	case models.SortNewest:
		return "date-desc-rank"
	default:
		return ""
	}
}

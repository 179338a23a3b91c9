package sites

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/maltedev/cloudstore/internal/crawl"
	"github.com/maltedev/cloudstore/internal/models"
)

func ebayProfile() *Profile {
	p := &Profile{
		Site:          crawl.SiteEbay,
		ProxyRequired: false,
		AntiBotMarkers: []string{
			"pardon our interruption",
			"captcha",
			"please verify yourself",
			"unusual traffic",
		},
		Landmarks: []string{
			"ebay",
		},
		primary:   endpoint{base: "https://www.ebay.com", headers: desktopHeaders()},
		alternate: endpoint{base: "https://m.ebay.com", headers: mobileHeaders()},
	}
	p.buildPath = ebayPath
	return p
}

func ebayPath(op crawl.Operation, base string) (string, url.Values, error) {
	switch op.Kind {
	case crawl.OpSearch:
		params := url.Values{}
		params.Set("_nkw", op.Query)
		params.Set("_pgn", strconv.Itoa(max(op.Page, 1)))
		if op.CategoryID != "" {
			params.Set("_sacat", op.CategoryID)
		}
		if s := ebaySort(op.Sort); s != "" {
			params.Set("_sop", s)
		}
		applyEbayFilters(params, op.Filters)
		return base + "/sch/i.html", params, nil

	case crawl.OpFetchDetail:
		if op.ProductID == "" {
			return "", nil, fmt.Errorf("ebay: item id required")
		}
		return fmt.Sprintf("%s/itm/%s", base, op.ProductID), nil, nil

	case crawl.OpFetchCategories:
		if op.ParentCategoryID != "" {
			return fmt.Sprintf("%s/b/%s", base, op.ParentCategoryID), nil, nil
		}
		return base + "/n/all-categories", nil, nil

	default:
		return "", nil, fmt.Errorf("ebay: unsupported operation %q", op.Kind)
	}
}

func applyEbayFilters(params url.Values, f *models.SearchFilters) {
	if f == nil {
		return
	}
	if f.MinPrice != nil {
		params.Set("_udlo", strconv.FormatFloat(*f.MinPrice, 'f', -1, 64))
	}
	if f.MaxPrice != nil {
		params.Set("_udhi", strconv.FormatFloat(*f.MaxPrice, 'f', -1, 64))
	}
	if f.FreeShipping {
		params.Set("LH_FS", "1")
	}
}

// ebaySort maps onto eBay's numeric _sop codes.
func ebaySort(s models.SortOption) string {
	switch s {
	case models.SortPriceAsc:
		return "15"
	case models.SortPriceDesc:
		return "16"
	case models.SortNewest:
		return "10"
	default:
		return ""
	}
}

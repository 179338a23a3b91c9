package sites

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/maltedev/cloudstore/internal/crawl"
	"github.com/maltedev/cloudstore/internal/models"
)

// ShopGoodwill has no separate mobile host; the alternate profile only
// changes the request headers to the mobile shape.
func shopGoodwillProfile() *Profile {
	p := &Profile{
		Site:          crawl.SiteShopGoodwill,
		ProxyRequired: false,
		AntiBotMarkers: []string{
			"captcha",
			"access denied",
			"request blocked",
		},
		Landmarks: []string{
			"shopgoodwill",
		},
		primary:   endpoint{base: "https://shopgoodwill.com", headers: desktopHeaders()},
		alternate: endpoint{base: "https://shopgoodwill.com", headers: mobileHeaders()},
	}
	p.buildPath = shopGoodwillPath
	return p
}

func shopGoodwillPath(op crawl.Operation, base string) (string, url.Values, error) {
	switch op.Kind {
	case crawl.OpSearch:
		params := url.Values{}
		params.Set("st", op.Query)
		params.Set("p", strconv.Itoa(max(op.Page, 1)))
		if op.CategoryID != "" {
			params.Set("sg", op.CategoryID)
		}
		if s := shopGoodwillSort(op.Sort); s != "" {
			params.Set("sc", s)
		}
		if f := op.Filters; f != nil {
			if f.MinPrice != nil {
				params.Set("lp", strconv.FormatFloat(*f.MinPrice, 'f', -1, 64))
			}
			if f.MaxPrice != nil {
				params.Set("hp", strconv.FormatFloat(*f.MaxPrice, 'f', -1, 64))
			}
		}
		return base + "/shop/home", params, nil

	case crawl.OpFetchDetail:
		if op.ProductID == "" {
			return "", nil, fmt.Errorf("shopgoodwill: item id required")
		}
		return fmt.Sprintf("%s/item/%s", base, op.ProductID), nil, nil

	case crawl.OpFetchCategories:
		return base + "/categories", nil, nil

	default:
		return "", nil, fmt.Errorf("shopgoodwill: unsupported operation %q", op.Kind)
	}
}

func shopGoodwillSort(s models.SortOption) string {
	switch s {
	case models.SortPriceAsc:
		return "price_asc"
	case models.SortPriceDesc:
		return "price_desc"
	case models.SortNewest:
		return "ending_soon"
	default:
		return ""
	}
}

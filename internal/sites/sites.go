// Package sites holds the per-site configuration data the crawl core is
// parameterized with: endpoint profiles, cookie templates, anti-bot marker
// lists, and structural landmarks. The core never hardcodes any of it.
package sites

import (
	"fmt"
	"net/url"

	"github.com/maltedev/cloudstore/internal/crawl"
)

const desktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
const mobileUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 14_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0.3 Mobile/15E148 Safari/604.1"

// endpoint is one request shape: a base URL plus the headers it is fetched
// under.
type endpoint struct {
	base    string
	headers map[string]string
}

// Profile is everything site-specific the orchestrator needs. It implements
// crawl.RequestBuilder.
type Profile struct {
	Site           crawl.Site
	ProxyRequired  bool
	AntiBotMarkers []string
	Landmarks      []string
	CookieTemplate crawl.CookieTemplate

	primary   endpoint
	alternate endpoint
	buildPath func(op crawl.Operation, base string) (string, url.Values, error)
}

// Build turns an operation into a concrete request under the active
// endpoint profile.
func (p *Profile) Build(op crawl.Operation, ep crawl.EndpointProfile, session *crawl.Session) (*crawl.Request, error) {
	target := p.primary
	if ep == crawl.ProfileAlternate {
		target = p.alternate
	}

	rawURL, params, err := p.buildPath(op, target.base)
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string, len(target.headers))
	for k, v := range target.headers {
		headers[k] = v
	}

	return &crawl.Request{
		Method:  "GET",
		URL:     rawURL,
		Params:  params,
		Headers: headers,
		Cookies: session.Cookies,
	}, nil
}

// Lookup returns the profile for a site.
func Lookup(site crawl.Site) (*Profile, error) {
	p, ok := registry[site]
	if !ok {
		return nil, fmt.Errorf("unknown site %q", site)
	}
	return p, nil
}

// All returns every registered site.
func All() []crawl.Site {
	out := make([]crawl.Site, 0, len(registry))
	for s := range registry {
		out = append(out, s)
	}
	return out
}

var registry = map[crawl.Site]*Profile{
	crawl.SiteAliExpress:   aliexpressProfile(),
	crawl.SiteEbay:         ebayProfile(),
	crawl.SiteShopGoodwill: shopGoodwillProfile(),
	crawl.SiteAmazon:       amazonProfile(),
}

func desktopHeaders() map[string]string {
	return map[string]string{
		"User-Agent":      desktopUserAgent,
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.5",
		"Connection":      "keep-alive",
	}
}

func mobileHeaders() map[string]string {
	return map[string]string{
		"User-Agent":      mobileUserAgent,
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.5",
		"Connection":      "keep-alive",
	}
}

package crawl

import (
	"fmt"
	"strings"
	"time"
)

// Site identifies a crawl target.
type Site string

const (
	SiteAliExpress   Site = "aliexpress"
	SiteEbay         Site = "ebay"
	SiteShopGoodwill Site = "shopgoodwill"
	SiteAmazon       Site = "amazon"
)

// Classification is the closed set of outcomes a completed attempt can have.
// All site crawlers share it; site-specific behavior comes from marker lists
// supplied as configuration, not from subtypes.
type Classification int

const (
	ClassSuccess Classification = iota
	ClassRateLimited
	ClassAntiBotDetected
	ClassRegionBlocked
	ClassItemNotFound
	ClassTransientNetwork
	ClassFatalProtocol
)

func (c Classification) String() string {
	switch c {
	case ClassSuccess:
		return "success"
	case ClassRateLimited:
		return "rate_limited"
	case ClassAntiBotDetected:
		return "anti_bot_detected"
	case ClassRegionBlocked:
		return "region_blocked"
	case ClassItemNotFound:
		return "item_not_found"
	case ClassTransientNetwork:
		return "transient_network"
	case ClassFatalProtocol:
		return "fatal_protocol"
	default:
		return fmt.Sprintf("classification(%d)", int(c))
	}
}

// Attempt records one try at the transport. Immutable once appended to an
// operation's attempt log.
type Attempt struct {
	Number    int            `json:"number"`
	StartedAt time.Time      `json:"started_at"`
	Outcome   Classification `json:"outcome"`
	Latency   time.Duration  `json:"latency"`
	Proxy     string         `json:"proxy,omitempty"`
	Detail    string         `json:"detail,omitempty"`
}

// ErrorKind is the error taxonomy surfaced to callers.
type ErrorKind int

const (
	KindRateLimited ErrorKind = iota
	KindRegionBlocked
	KindAntiBotDetected
	KindItemNotFound
	KindProxyExhausted
	KindNetworkFailure
	KindParseFailure
	KindFatalProtocol
	KindCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindRegionBlocked:
		return "region_blocked"
	case KindAntiBotDetected:
		return "anti_bot_detected"
	case KindItemNotFound:
		return "item_not_found"
	case KindProxyExhausted:
		return "proxy_exhausted"
	case KindNetworkFailure:
		return "network_failure"
	case KindParseFailure:
		return "parse_failure"
	case KindFatalProtocol:
		return "fatal_protocol"
	case KindCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("error_kind(%d)", int(k))
	}
}

// Error is a terminal crawl failure. It carries the full attempt log so a
// caller can tell "blocked immediately" from "degraded after N attempts".
type Error struct {
	Kind     ErrorKind
	Site     Site
	Attempts []Attempt
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "crawl %s: %s after %d attempt(s)", e.Site, e.Kind, len(e.Attempts))
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// classificationKind maps a terminal classification onto the caller-facing
// error taxonomy.
func classificationKind(c Classification) ErrorKind {
	switch c {
	case ClassRateLimited:
		return KindRateLimited
	case ClassAntiBotDetected:
		return KindAntiBotDetected
	case ClassRegionBlocked:
		return KindRegionBlocked
	case ClassItemNotFound:
		return KindItemNotFound
	case ClassTransientNetwork:
		return KindNetworkFailure
	default:
		return KindFatalProtocol
	}
}

package crawl

import (
	"strings"
)

// AntiBotGuard classifies a completed response as clean, blocked, or
// bot-flagged. Pure function over its inputs; no side effects.
type AntiBotGuard struct {
	markers   []string
	landmarks []string
}

// NewAntiBotGuard builds a guard from a site's marker phrases and structural
// landmarks. Markers are matched case-insensitively as substrings. If any
// landmark is configured, a 200 body containing none of them is treated as
// a block page: an unrecognizable page is the common signature of one.
func NewAntiBotGuard(markers, landmarks []string) AntiBotGuard {
	lower := func(in []string) []string {
		out := make([]string, len(in))
		for i, s := range in {
			out[i] = strings.ToLower(s)
		}
		return out
	}
	return AntiBotGuard{markers: lower(markers), landmarks: lower(landmarks)}
}

// Inspect applies, in order: HTTP status mapping, marker scan, structural
// validation.
func (g AntiBotGuard) Inspect(status int, body string) Classification {
	switch {
	case status == 403:
		return ClassRegionBlocked
	case status == 429:
		return ClassRateLimited
	case status == 404:
		return ClassItemNotFound
	case status >= 500:
		return ClassTransientNetwork
	case status < 200 || status >= 300:
		return ClassFatalProtocol
	}

	lowered := strings.ToLower(body)
	for _, m := range g.markers {
		if strings.Contains(lowered, m) {
			return ClassAntiBotDetected
		}
	}

	if len(g.landmarks) > 0 {
		found := false
		for _, l := range g.landmarks {
			if strings.Contains(lowered, l) {
				found = true
				break
			}
		}
		if !found {
			return ClassAntiBotDetected
		}
	}

	return ClassSuccess
}

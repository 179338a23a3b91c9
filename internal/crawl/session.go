package crawl

// EndpointProfile names the request shape an operation runs under. Primary
// is the desktop site; Alternate is the evasion profile (mobile host, API
// endpoint) a session escalates to after anti-bot detection.
type EndpointProfile int

const (
	ProfilePrimary EndpointProfile = iota
	ProfileAlternate
)

func (p EndpointProfile) String() string {
	if p == ProfileAlternate {
		return "alternate"
	}
	return "primary"
}

// CookieTemplate derives a site's initial cookies from locale, currency,
// and region. Supplied by the site profile so the core stays site-agnostic.
type CookieTemplate func(locale, currency, region string) map[string]string

// Session is the per-crawl configuration requests are issued under. It is
// owned by exactly one in-flight operation and needs no locking.
type Session struct {
	Locale        string
	Currency      string
	Region        string
	Cookies       map[string]string
	ProxyRequired bool

	profile   EndpointProfile
	escalated bool
}

// NewSession builds a session with cookies derived from the template.
// tmpl may be nil for sites without cookie state.
func NewSession(locale, currency, region string, tmpl CookieTemplate, proxyRequired bool) *Session {
	cookies := map[string]string{}
	if tmpl != nil {
		cookies = tmpl(locale, currency, region)
	}
	return &Session{
		Locale:        locale,
		Currency:      currency,
		Region:        region,
		Cookies:       cookies,
		ProxyRequired: proxyRequired,
	}
}

// Profile returns the active endpoint profile.
func (s *Session) Profile() EndpointProfile {
	return s.profile
}

// Escalate flips the session to the alternate profile. It is idempotent
// within one operation: the second call is a no-op and returns false, which
// is what stops an escalation loop.
func (s *Session) Escalate() bool {
	if s.escalated {
		return false
	}
	s.escalated = true
	s.profile = ProfileAlternate
	return true
}

// Reset returns the session to the primary profile. Called at the start of
// every operation.
func (s *Session) Reset() {
	s.profile = ProfilePrimary
	s.escalated = false
}

// SetCookie overrides or adds a single cookie.
func (s *Session) SetCookie(name, value string) {
	if s.Cookies == nil {
		s.Cookies = map[string]string{}
	}
	s.Cookies[name] = value
}

package crawl

import (
	"testing"
)

func testCookieTemplate(locale, currency, region string) map[string]string {
	return map[string]string{
		"locale": locale,
		"pref":   "currency=" + currency + "&region=" + region,
	}
}

func TestSessionDerivesCookies(t *testing.T) {
	s := NewSession("en_US", "USD", "US", testCookieTemplate, true)

	if s.Cookies["locale"] != "en_US" {
		t.Errorf("locale cookie = %q, want en_US", s.Cookies["locale"])
	}
	if s.Cookies["pref"] != "currency=USD&region=US" {
		t.Errorf("pref cookie = %q", s.Cookies["pref"])
	}
	if !s.ProxyRequired {
		t.Error("proxy requirement not carried")
	}
	if s.Profile() != ProfilePrimary {
		t.Errorf("new session profile = %v, want primary", s.Profile())
	}
}

func TestSessionEscalateIsIdempotent(t *testing.T) {
	s := NewSession("en_US", "USD", "US", nil, false)

	if !s.Escalate() {
		t.Fatal("first escalate should flip the profile")
	}
	if s.Profile() != ProfileAlternate {
		t.Fatalf("profile after escalate = %v, want alternate", s.Profile())
	}

	// Second call within the same operation is a no-op: no triple-switching.
	if s.Escalate() {
		t.Error("second escalate should be a no-op")
	}
	if s.Profile() != ProfileAlternate {
		t.Errorf("profile after second escalate = %v, want alternate", s.Profile())
	}
}

func TestSessionResetRestoresPrimary(t *testing.T) {
	s := NewSession("de_DE", "EUR", "DE", nil, false)
	s.Escalate()
	s.Reset()

	if s.Profile() != ProfilePrimary {
		t.Errorf("profile after reset = %v, want primary", s.Profile())
	}
	if !s.Escalate() {
		t.Error("escalation budget should be restored by reset")
	}
}

func TestSessionSetCookie(t *testing.T) {
	s := NewSession("en_US", "USD", "US", nil, false)
	s.SetCookie("session_id", "abc123")
	if s.Cookies["session_id"] != "abc123" {
		t.Errorf("cookie = %q, want abc123", s.Cookies["session_id"])
	}
}

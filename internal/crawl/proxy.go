package crawl

import (
	"fmt"
	"net/url"
	"sync"
	"time"
)

// consecutive transient-network failures before a proxy is deactivated
const netFailureDeactivateThreshold = 3

// ProxyRecord is one egress identity with its health history. Mutated only
// through ProxyPool; soft-deleted via Active=false, never removed mid-run.
type ProxyRecord struct {
	Address       string
	Port          int
	Protocol      string
	Username      string
	Password      string
	Country       string
	Active        bool
	SuccessCount  int
	FailureCount  int
	LastUsed      time.Time
	LastFailure   time.Time
	FailureReason string
	BannedSites   map[Site]struct{}
	ExpiresAt     time.Time

	netFailStreak int
}

// NewProxyRecord builds an active record with defaults filled in.
func NewProxyRecord(address string, port int, protocol string) *ProxyRecord {
	if protocol == "" {
		protocol = "http"
	}
	return &ProxyRecord{
		Address:     address,
		Port:        port,
		Protocol:    protocol,
		Active:      true,
		BannedSites: make(map[Site]struct{}),
	}
}

// Key returns the host:port identity of the proxy.
func (p *ProxyRecord) Key() string {
	return fmt.Sprintf("%s:%d", p.Address, p.Port)
}

// URL renders the proxy as a transport-usable URL, including credentials.
func (p *ProxyRecord) URL() *url.URL {
	u := &url.URL{
		Scheme: p.Protocol,
		Host:   p.Key(),
	}
	if p.Username != "" {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return u
}

// BannedFor reports whether the proxy is banned for site.
func (p *ProxyRecord) BannedFor(site Site) bool {
	_, ok := p.BannedSites[site]
	return ok
}

func (p *ProxyRecord) expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && !p.ExpiresAt.After(now)
}

// successRate is 0-100, defaulting to 50 with no history.
func (p *ProxyRecord) successRate() float64 {
	total := p.SuccessCount + p.FailureCount
	if total == 0 {
		return 50
	}
	return float64(p.SuccessCount) / float64(total) * 100
}

// recencyScore is 0-100: 0 = just used, 100 = never used or idle >= 24h.
func (p *ProxyRecord) recencyScore(now time.Time) float64 {
	if p.LastUsed.IsZero() {
		return 100
	}
	hours := now.Sub(p.LastUsed).Hours()
	score := hours * (100.0 / 24.0)
	if score > 100 {
		return 100
	}
	if score < 0 {
		return 0
	}
	return score
}

// score weighs historical success 70% against recency 30%.
func (p *ProxyRecord) score(now time.Time) float64 {
	return p.successRate()*0.7 + p.recencyScore(now)*0.3
}

// FailureOpts controls how a recorded failure affects the proxy.
type FailureOpts struct {
	// Deactivate flips Active off immediately.
	Deactivate bool
	// BanFromSite adds the site to the proxy's ban list.
	BanFromSite bool
	// Transient counts toward the consecutive-network-failure streak that
	// deactivates a flapping proxy.
	Transient bool
}

// ProxyPool rotates and health-tracks a shared set of proxies. All methods
// are safe for concurrent use; one mutex serializes mutation.
type ProxyPool struct {
	mu      sync.Mutex
	records []*ProxyRecord
	tried   map[string]struct{}
	clock   Clock
}

// NewProxyPool wraps the given inventory. The pool owns mutation of the
// records from here on.
func NewProxyPool(clock Clock, records ...*ProxyRecord) *ProxyPool {
	if clock == nil {
		clock = RealClock()
	}
	return &ProxyPool{
		records: records,
		tried:   make(map[string]struct{}),
		clock:   clock,
	}
}

// Add appends a proxy to the pool.
func (pl *ProxyPool) Add(p *ProxyRecord) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if p.BannedSites == nil {
		p.BannedSites = make(map[Site]struct{})
	}
	pl.records = append(pl.records, p)
}

// Next returns the best eligible proxy for site: active, not banned for the
// site, not expired, preferring high success ratio and long idle time. A
// proxy that failed recently is skipped until every candidate has failed,
// at which point the tried set (not the ban list) is cleared and selection
// runs once more. Returns nil if nothing is eligible.
func (pl *ProxyPool) Next(site Site) *ProxyRecord {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	now := pl.clock.Now()

	if p := pl.pick(site, now); p != nil {
		return p
	}
	// Everything eligible has a tried marker; stale failures should not
	// starve the pool.
	if len(pl.tried) > 0 {
		pl.tried = make(map[string]struct{})
		return pl.pick(site, now)
	}
	return nil
}

// pick skips proxies carrying a tried marker; must be called with the lock
// held.
func (pl *ProxyPool) pick(site Site, now time.Time) *ProxyRecord {
	var best *ProxyRecord
	var bestScore float64
	for _, p := range pl.records {
		if !p.Active || p.BannedFor(site) || p.expired(now) {
			continue
		}
		if _, tried := pl.tried[p.Key()]; tried {
			continue
		}
		if s := p.score(now); best == nil || s > bestScore {
			best = p
			bestScore = s
		}
	}
	return best
}

// RecordSuccess updates health counters after a clean response. A success
// through a proxy that was banned for the site is evidence the ban is
// stale, so it is cleared.
func (pl *ProxyPool) RecordSuccess(p *ProxyRecord, site Site) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	p.SuccessCount++
	p.LastUsed = pl.clock.Now()
	p.netFailStreak = 0
	delete(p.BannedSites, site)
	delete(pl.tried, p.Key())
}

// RecordFailure updates health counters after a failed attempt and applies
// the requested deactivation/ban side effects.
func (pl *ProxyPool) RecordFailure(p *ProxyRecord, site Site, reason string, opts FailureOpts) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	now := pl.clock.Now()
	p.FailureCount++
	p.LastUsed = now
	p.LastFailure = now
	p.FailureReason = reason
	pl.tried[p.Key()] = struct{}{}

	if opts.Transient {
		p.netFailStreak++
		if p.netFailStreak >= netFailureDeactivateThreshold {
			p.Active = false
		}
	} else {
		p.netFailStreak = 0
	}
	if opts.Deactivate {
		p.Active = false
	}
	if opts.BanFromSite {
		p.BannedSites[site] = struct{}{}
	}
}

// Len reports the total inventory size, active or not.
func (pl *ProxyPool) Len() int {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return len(pl.records)
}

// Snapshot copies the current inventory for status reporting and
// persistence write-back.
func (pl *ProxyPool) Snapshot() []ProxyRecord {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	out := make([]ProxyRecord, 0, len(pl.records))
	for _, p := range pl.records {
		cp := *p
		cp.BannedSites = make(map[Site]struct{}, len(p.BannedSites))
		for s := range p.BannedSites {
			cp.BannedSites[s] = struct{}{}
		}
		out = append(out, cp)
	}
	return out
}

package crawl

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/cloudstore/internal/models"
)

// Config is the per-site configuration surface of the orchestrator. It is
// passed in explicitly; there is no process-wide crawler state.
type Config struct {
	Site Site

	// Rate budget.
	RateCapacity    float64
	RefillPerSecond float64
	// RateFailFast makes Execute return a rate-limited error immediately
	// when the budget is empty. When false, Execute waits for a token
	// until the operation context expires.
	RateFailFast bool

	// Retry/backoff.
	MaxRetryAttempts  int
	BackoffBase       time.Duration
	BackoffMultiplier float64
	BackoffMax        time.Duration
	RateLimitDelay    time.Duration
	JitterFraction    float64

	RequestTimeout time.Duration

	ProxyRequired  bool
	AntiBotMarkers []string
	Landmarks      []string
}

// Orchestrator executes crawl operations for one site: rate token, proxy
// selection, transport call, classification, retry/escalation. The budget
// and pool it owns are shared by all concurrent operations for the site.
type Orchestrator struct {
	cfg       Config
	budget    *RateBudget
	pool      *ProxyPool
	policy    RetryPolicy
	guard     AntiBotGuard
	builder   RequestBuilder
	transport Transport
	parser    Parser
	clock     Clock
	metrics   *Metrics
	logger    *slog.Logger
}

// NewOrchestrator wires the per-site crawl pipeline. pool may be shared
// with other orchestrators when sites share an egress inventory; metrics
// may be nil.
func NewOrchestrator(
	cfg Config,
	pool *ProxyPool,
	builder RequestBuilder,
	transport Transport,
	parser Parser,
	clock Clock,
	metrics *Metrics,
	logger *slog.Logger,
) *Orchestrator {
	if clock == nil {
		clock = RealClock()
	}
	policy := RetryPolicy{
		MaxAttempts:       cfg.MaxRetryAttempts,
		BackoffBase:       cfg.BackoffBase,
		BackoffMultiplier: cfg.BackoffMultiplier,
		BackoffMax:        cfg.BackoffMax,
		RateLimitDelay:    cfg.RateLimitDelay,
		JitterFraction:    cfg.JitterFraction,
	}
	return &Orchestrator{
		cfg:       cfg,
		budget:    NewRateBudget(cfg.Site, cfg.RateCapacity, cfg.RefillPerSecond, clock),
		pool:      pool,
		policy:    policy,
		guard:     NewAntiBotGuard(cfg.AntiBotMarkers, cfg.Landmarks),
		builder:   builder,
		transport: transport,
		parser:    parser,
		clock:     clock,
		metrics:   metrics,
		logger:    logger.With("component", "orchestrator", "site", string(cfg.Site)),
	}
}

// Budget exposes the site's rate budget for status reporting.
func (o *Orchestrator) Budget() *RateBudget {
	return o.budget
}

// Pool exposes the proxy pool backing this orchestrator.
func (o *Orchestrator) Pool() *ProxyPool {
	return o.pool
}

// Execute runs one operation to a terminal state and returns the canonical
// result or a *Error, plus the full attempt log either way.
func (o *Orchestrator) Execute(ctx context.Context, op Operation, session *Session) (res *models.CanonicalResult, attempts []Attempt, err error) {
	session.Reset()

	defer func() {
		result := "success"
		if err != nil {
			if ce, ok := err.(*Error); ok {
				result = ce.Kind.String()
			} else {
				result = "error"
			}
		}
		o.metrics.observeOperation(o.cfg.Site, op.Kind, result)
	}()

	if err := o.acquireToken(ctx); err != nil {
		return nil, nil, err
	}

	occurrences := make(map[Classification]int)

	for {
		if ctx.Err() != nil {
			return nil, attempts, o.terminal(KindCancelled, attempts, ctx.Err())
		}

		var proxy *ProxyRecord
		if session.ProxyRequired {
			proxy = o.pool.Next(o.cfg.Site)
			if proxy == nil {
				o.logger.Error("no eligible proxy", "op", string(op.Kind))
				return nil, attempts, o.terminal(KindProxyExhausted, attempts, nil)
			}
		}

		req, buildErr := o.builder.Build(op, session.Profile(), session)
		if buildErr != nil {
			return nil, attempts, o.terminal(KindFatalProtocol, attempts, buildErr)
		}
		req.Proxy = proxy
		if req.Timeout == 0 {
			req.Timeout = o.cfg.RequestTimeout
		}

		started := o.clock.Now()
		resp, sendErr := o.transport.Send(ctx, req)
		latency := o.clock.Now().Sub(started)

		var class Classification
		var detail string
		if sendErr != nil {
			if ctx.Err() != nil {
				attempts = o.appendAttempt(attempts, started, ClassTransientNetwork, latency, proxy, sendErr.Error())
				return nil, attempts, o.terminal(KindCancelled, attempts, ctx.Err())
			}
			class = ClassTransientNetwork
			detail = sendErr.Error()
		} else {
			class = o.guard.Inspect(resp.StatusCode, resp.Body)
			detail = fmt.Sprintf("status=%d", resp.StatusCode)
		}

		attempts = o.appendAttempt(attempts, started, class, latency, proxy, detail)
		o.metrics.observeAttempt(o.cfg.Site, class, latency)

		if class == ClassSuccess {
			if proxy != nil {
				o.pool.RecordSuccess(proxy, o.cfg.Site)
			}
			result, parseErr := o.parser.Parse(resp.Body, op.Kind)
			if parseErr != nil {
				o.logger.Warn("parse failed", "op", string(op.Kind), "error", parseErr)
				return nil, attempts, o.terminal(KindParseFailure, attempts, parseErr)
			}
			o.logger.Info("operation succeeded",
				"op", string(op.Kind),
				"attempts", len(attempts),
				"profile", session.Profile().String())
			return result, attempts, nil
		}

		if proxy != nil {
			o.pool.RecordFailure(proxy, o.cfg.Site, class.String(), failureOpts(class))
		}

		occurrences[class]++
		decision := o.policy.Decide(class, occurrences[class])

		switch decision.Action {
		case ActionFail:
			o.logger.Warn("operation failed",
				"op", string(op.Kind),
				"classification", class.String(),
				"attempts", len(attempts))
			return nil, attempts, o.terminal(classificationKind(class), attempts, nil)

		case ActionEscalate:
			if !session.Escalate() {
				return nil, attempts, o.terminal(KindAntiBotDetected, attempts, nil)
			}
			o.logger.Warn("anti-bot detected, switching endpoint profile",
				"op", string(op.Kind),
				"profile", session.Profile().String())

		case ActionRetry:
			o.metrics.incRetry(o.cfg.Site)
			o.logger.Debug("retrying after backoff",
				"op", string(op.Kind),
				"classification", class.String(),
				"delay", decision.Delay)
			if sleepErr := o.clock.Sleep(ctx, decision.Delay); sleepErr != nil {
				return nil, attempts, o.terminal(KindCancelled, attempts, sleepErr)
			}
		}
	}
}

// acquireToken enforces the rate budget ahead of any network work.
func (o *Orchestrator) acquireToken(ctx context.Context) error {
	if o.budget.TryAcquire(1) {
		return nil
	}
	o.metrics.incRateRejection(o.cfg.Site)

	if o.cfg.RateFailFast {
		return &Error{Kind: KindRateLimited, Site: o.cfg.Site}
	}

	// Queue mode: poll with the bucket's own estimate until the operation
	// deadline cuts us off.
	for {
		wait := o.budget.WaitHint(1)
		if wait <= 0 {
			wait = 50 * time.Millisecond
		}
		if err := o.clock.Sleep(ctx, wait); err != nil {
			return &Error{Kind: KindCancelled, Site: o.cfg.Site, Err: err}
		}
		if o.budget.TryAcquire(1) {
			return nil
		}
	}
}

func (o *Orchestrator) appendAttempt(attempts []Attempt, started time.Time, class Classification, latency time.Duration, proxy *ProxyRecord, detail string) []Attempt {
	a := Attempt{
		Number:    len(attempts) + 1,
		StartedAt: started,
		Outcome:   class,
		Latency:   latency,
		Detail:    detail,
	}
	if proxy != nil {
		a.Proxy = proxy.Key()
	}
	return append(attempts, a)
}

func (o *Orchestrator) terminal(kind ErrorKind, attempts []Attempt, cause error) *Error {
	return &Error{Kind: kind, Site: o.cfg.Site, Attempts: attempts, Err: cause}
}

// failureOpts maps a classification onto proxy bookkeeping: a region block
// is a property of the proxy's exit country, so the proxy is banned for the
// site; transient failures count toward deactivation; rate limiting and
// anti-bot flags say nothing about the proxy itself.
func failureOpts(c Classification) FailureOpts {
	switch c {
	case ClassRegionBlocked:
		return FailureOpts{BanFromSite: true}
	case ClassTransientNetwork:
		return FailureOpts{Transient: true}
	default:
		return FailureOpts{}
	}
}

package httpx

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RateLimiter counts requests per key in fixed windows.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) rateDecision
	Close()
}

type rateDecision struct {
	allowed bool
	count   int
	resetAt time.Time
}

type rateScope string

const (
	scopeIP         rateScope = "ip"
	scopeIndividual rateScope = "individual"
)

// ratePolicy is a named request budget. Each policy keeps its own counters, so
// exhausting one operation does not block the others.
type ratePolicy struct {
	name   string
	limit  int
	window time.Duration
	scope  rateScope
}

var (
	policyRegister = ratePolicy{name: "register", limit: 5, window: time.Minute, scope: scopeIP}
	policyRefresh  = ratePolicy{name: "refresh", limit: 12, window: time.Minute, scope: scopeIP}
	policyRead     = ratePolicy{name: "read", limit: 120, window: time.Minute, scope: scopeIndividual}
	policyWrite    = ratePolicy{name: "write", limit: 60, window: time.Minute, scope: scopeIndividual}
	// Applications and scouts share one hourly budget per sender.
	policyOffers = ratePolicy{name: "offers", limit: 20, window: time.Hour, scope: scopeIndividual}
	policyStream = ratePolicy{name: "stream", limit: 30, window: 30 * time.Second, scope: scopeIndividual}
)

// key groups the request under the policy. Individual-scoped policies fall
// back to the remote host when the request carries no identity.
func (p ratePolicy) key(req *http.Request) (string, rateScope) {
	if p.scope == scopeIndividual {
		if info, ok := authInfoFromContext(req.Context()); ok && info.IndividualID != "" {
			return p.name + ":individual:" + info.IndividualID, scopeIndividual
		}
	}
	return p.name + ":ip:" + remoteHost(req), scopeIP
}

func (r *Router) limited(p ratePolicy, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if p.limit <= 0 || r.limiter == nil {
			next(w, req)
			return
		}
		key, scope := p.key(req)
		decision := r.limiter.Allow(req.Context(), key, p.limit, p.window)
		setRateHeaders(w, p.limit, decision)
		if !decision.allowed {
			r.recordRateLimitHit(p.name, string(scope))
			if !decision.resetAt.IsZero() {
				wait := int(time.Until(decision.resetAt).Round(time.Second).Seconds())
				if wait < 1 {
					wait = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(wait))
			}
			writeJSON(w, http.StatusTooManyRequests, map[string]string{
				"error": "rate limit exceeded for " + p.name,
				"code":  "RATE_LIMITED",
			})
			return
		}
		next(w, req)
	}
}

// authed requires a bearer token before charging the individual's budget.
func (r *Router) authed(p ratePolicy, next http.HandlerFunc) http.HandlerFunc {
	return r.requireAuth(r.limited(p, next))
}

func setRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.resetAt.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.resetAt.Unix(), 10))
	}
}

// remoteHost ignores X-Forwarded-For so clients cannot pick their own bucket.
func remoteHost(req *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		host = strings.TrimSpace(req.RemoteAddr)
	}
	if host == "" {
		return "unknown"
	}
	return host
}

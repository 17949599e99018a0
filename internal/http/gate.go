package httpx

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/ahananupam33/acquisitions/internal/config"
	"github.com/ahananupam33/acquisitions/internal/domain"
	"github.com/ahananupam33/acquisitions/internal/token"
)

// Tier is the admission class used to pick a rate-limit threshold.
type Tier string

const (
	TierGuest Tier = "guest"
	TierUser  Tier = "user"
	TierAdmin Tier = "admin"
)

// RequestMeta carries the request attributes admission stages decide on.
type RequestMeta struct {
	IP        string
	Method    string
	Path      string
	UserAgent string
	Tier      Tier

	claims *token.Claims
}

// Decision is the outcome of the bot/attack heuristic.
type Decision struct {
	Allow  bool
	Reason string
}

// Detector is a pluggable bot/attack heuristic consulted on every request.
type Detector func(RequestMeta) Decision

// DefaultDetector denies clients with an empty or obviously automated
// user agent. Anything smarter is expected to be plugged in from outside.
func DefaultDetector(meta RequestMeta) Decision {
	ua := strings.ToLower(meta.UserAgent)
	if ua == "" {
		return Decision{Allow: false, Reason: "missing user agent"}
	}
	for _, marker := range []string{"bot", "crawler", "spider", "scraper"} {
		if strings.Contains(ua, marker) {
			return Decision{Allow: false, Reason: "automated client"}
		}
	}
	return Decision{Allow: true}
}

type gateResult struct {
	allowed bool
	status  int
	kind    string
	headers map[string]string
}

var gateAllow = gateResult{allowed: true}

type stage func(req *http.Request, meta *RequestMeta) gateResult

// Gate runs the admission pipeline ahead of every handler: tier resolution,
// per-tier rate limiting, then the bot heuristic. Stages run in declared
// order and the first short-circuit wins; no downstream code executes for a
// rejected request. The gate is advisory, not authentication: it runs for
// unauthenticated sign-up and sign-in traffic too, keyed by client identity.
type Gate struct {
	cookies  *CookieManager
	verify   func(string) (*token.Claims, error)
	limiter  RateLimiter
	limits   config.TierLimits
	detect   Detector
	logger   *slog.Logger
	stages   []stage
	onReject func(kind string, meta RequestMeta)
}

// NewGate assembles the admission pipeline.
func NewGate(cookies *CookieManager, verify func(string) (*token.Claims, error), limiter RateLimiter, limits config.TierLimits, detect Detector, logger *slog.Logger) *Gate {
	g := &Gate{
		cookies: cookies,
		verify:  verify,
		limiter: limiter,
		limits:  limits,
		detect:  detect,
		logger:  logger,
	}
	g.stages = []stage{g.resolveTier, g.rateLimit, g.botCheck}
	return g
}

// OnReject registers a hook invoked for every short-circuited request,
// used by the router to record metrics.
func (g *Gate) OnReject(fn func(kind string, meta RequestMeta)) {
	g.onReject = fn
}

// Admit wraps a handler with the admission pipeline.
func (g *Gate) Admit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		meta := &RequestMeta{
			IP:        clientIP(req),
			Method:    req.Method,
			Path:      req.URL.Path,
			UserAgent: req.Header.Get("User-Agent"),
			Tier:      TierGuest,
		}
		for _, st := range g.stages {
			res := st(req, meta)
			for k, v := range res.headers {
				w.Header().Set(k, v)
			}
			if !res.allowed {
				g.logger.Warn("request rejected at gate",
					"kind", res.kind, "tier", meta.Tier, "ip", meta.IP, "path", meta.Path)
				if g.onReject != nil {
					g.onReject(res.kind, *meta)
				}
				writeError(w, res.status, res.kind)
				return
			}
		}
		if meta.claims != nil {
			req = req.WithContext(withClaims(req.Context(), meta.claims))
		}
		next(w, req)
	}
}

// resolveTier inspects the session cookie to classify the client. A missing,
// tampered, invalid, or expired session downgrades to guest; it is never a
// hard failure at the gate.
func (g *Gate) resolveTier(req *http.Request, meta *RequestMeta) gateResult {
	tok, ok := g.cookies.Read(req)
	if !ok {
		return gateAllow
	}
	claims, err := g.verify(tok)
	if err != nil {
		return gateAllow
	}
	meta.claims = claims
	if claims.Role == domain.RoleAdmin {
		meta.Tier = TierAdmin
	} else {
		meta.Tier = TierUser
	}
	return gateAllow
}

// rateLimit applies the tier threshold against the client's window. The
// limiter serializes check-and-increment per key, so a burst from one client
// cannot race past the threshold.
func (g *Gate) rateLimit(req *http.Request, meta *RequestMeta) gateResult {
	limit := g.limitFor(meta.Tier)
	decision := g.limiter.Allow(string(meta.Tier)+":"+meta.IP, limit, g.limits.Window)

	headers := rateHeaders(limit, decision)
	if decision.allowed {
		return gateResult{allowed: true, headers: headers}
	}
	if !decision.windowEnd.IsZero() {
		if retry := time.Until(decision.windowEnd); retry > 0 {
			headers["Retry-After"] = strconv.Itoa(int(retry.Seconds()) + 1)
		}
	}
	return gateResult{status: http.StatusTooManyRequests, kind: "rate_limited", headers: headers}
}

func (g *Gate) botCheck(req *http.Request, meta *RequestMeta) gateResult {
	if g.detect == nil {
		return gateAllow
	}
	decision := g.detect(*meta)
	if decision.Allow {
		return gateAllow
	}
	g.logger.Warn("bot heuristic denied request", "reason", decision.Reason, "ip", meta.IP, "ua", meta.UserAgent)
	return gateResult{status: http.StatusForbidden, kind: "access_denied"}
}

func (g *Gate) limitFor(tier Tier) int {
	switch tier {
	case TierAdmin:
		return g.limits.Admin
	case TierUser:
		return g.limits.User
	default:
		return g.limits.Guest
	}
}

func rateHeaders(limit int, decision rateDecision) map[string]string {
	if limit <= 0 {
		return map[string]string{}
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := map[string]string{
		"X-RateLimit-Limit":     strconv.Itoa(limit),
		"X-RateLimit-Remaining": strconv.Itoa(remaining),
	}
	if !decision.windowEnd.IsZero() {
		headers["X-RateLimit-Reset"] = strconv.FormatInt(decision.windowEnd.Unix(), 10)
	}
	return headers
}

type claimsContextKey struct{}

func withClaims(ctx context.Context, claims *token.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// claimsFromContext extracts verified session claims placed by the gate.
func claimsFromContext(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*token.Claims)
	return claims, ok
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

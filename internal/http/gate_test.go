package httpx

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"log/slog"

	"github.com/ahananupam33/acquisitions/internal/config"
	"github.com/ahananupam33/acquisitions/internal/domain"
	"github.com/ahananupam33/acquisitions/internal/token"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type limiterCall struct {
	key   string
	limit int
}

type rateLimiterStub struct {
	mu      sync.Mutex
	calls   []limiterCall
	allowFn func(key string, limit int, window time.Duration) rateDecision
}

func newRateLimiterStub() *rateLimiterStub {
	return &rateLimiterStub{
		allowFn: func(string, int, time.Duration) rateDecision {
			return rateDecision{allowed: true, count: 1, windowEnd: time.Now().Add(time.Minute)}
		},
	}
}

func (s *rateLimiterStub) Allow(key string, limit int, window time.Duration) rateDecision {
	s.mu.Lock()
	s.calls = append(s.calls, limiterCall{key: key, limit: limit})
	s.mu.Unlock()
	return s.allowFn(key, limit, window)
}

func (s *rateLimiterStub) Close() {}

var testLimits = config.TierLimits{Guest: 2, User: 5, Admin: 10, Window: time.Minute}

func newTestGate(limiter RateLimiter, detect Detector) (*Gate, *CookieManager, token.Issuer) {
	cookies := newTestCookies()
	issuer := token.NewIssuer("test-secret", time.Hour)
	gate := NewGate(cookies, issuer.Parse, limiter, testLimits, detect, newTestLogger())
	return gate, cookies, issuer
}

func sessionRequest(t *testing.T, cookies *CookieManager, issuer token.Issuer, role domain.Role) *http.Request {
	t.Helper()
	tok, err := issuer.Issue(&domain.User{ID: "user-1", Email: "a@x.com", Role: role})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	rr := httptest.NewRecorder()
	if err := cookies.Set(rr, tok); err != nil {
		t.Fatalf("set cookie: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/auth/sign-out", nil)
	req.Header.Set("User-Agent", "test-agent")
	req.AddCookie(rr.Result().Cookies()[0])
	return req
}

func TestGateGuestTierWithoutCookie(t *testing.T) {
	limiter := newRateLimiterStub()
	gate, _, _ := newTestGate(limiter, nil)

	handler := gate.Admit(func(w http.ResponseWriter, req *http.Request) {
		if _, ok := claimsFromContext(req.Context()); ok {
			t.Fatalf("guest request must not carry claims")
		}
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/auth/sign-in", nil)
	req.Header.Set("User-Agent", "test-agent")
	req.RemoteAddr = "1.2.3.4:5678"
	rr := httptest.NewRecorder()
	handler(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected pass-through, got %d", rr.Code)
	}
	if len(limiter.calls) != 1 {
		t.Fatalf("expected one limiter call, got %d", len(limiter.calls))
	}
	if limiter.calls[0].key != "guest:1.2.3.4" {
		t.Fatalf("unexpected limiter key: %q", limiter.calls[0].key)
	}
	if limiter.calls[0].limit != testLimits.Guest {
		t.Fatalf("expected guest limit %d, got %d", testLimits.Guest, limiter.calls[0].limit)
	}
}

func TestGateResolvesTierFromSessionCookie(t *testing.T) {
	for _, tc := range []struct {
		role  domain.Role
		tier  string
		limit int
	}{
		{domain.RoleUser, "user", testLimits.User},
		{domain.RoleAdmin, "admin", testLimits.Admin},
	} {
		limiter := newRateLimiterStub()
		gate, cookies, issuer := newTestGate(limiter, nil)

		var sawClaims bool
		handler := gate.Admit(func(w http.ResponseWriter, req *http.Request) {
			claims, ok := claimsFromContext(req.Context())
			sawClaims = ok && claims.Subject == "user-1"
			w.WriteHeader(http.StatusOK)
		})

		req := sessionRequest(t, cookies, issuer, tc.role)
		req.RemoteAddr = "1.2.3.4:5678"
		rr := httptest.NewRecorder()
		handler(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("role %s: expected 200, got %d", tc.role, rr.Code)
		}
		if !sawClaims {
			t.Fatalf("role %s: expected claims in handler context", tc.role)
		}
		if limiter.calls[0].key != tc.tier+":1.2.3.4" {
			t.Fatalf("role %s: unexpected key %q", tc.role, limiter.calls[0].key)
		}
		if limiter.calls[0].limit != tc.limit {
			t.Fatalf("role %s: expected limit %d, got %d", tc.role, tc.limit, limiter.calls[0].limit)
		}
	}
}

func TestGateExpiredSessionDowngradesToGuest(t *testing.T) {
	limiter := newRateLimiterStub()
	cookies := newTestCookies()
	expired := token.NewIssuer("test-secret", -time.Minute)
	live := token.NewIssuer("test-secret", time.Hour)
	gate := NewGate(cookies, live.Parse, limiter, testLimits, nil, newTestLogger())

	tok, err := expired.Issue(&domain.User{ID: "user-1", Email: "a@x.com", Role: domain.RoleAdmin})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	rr := httptest.NewRecorder()
	if err := cookies.Set(rr, tok); err != nil {
		t.Fatalf("set cookie: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/sign-in", nil)
	req.Header.Set("User-Agent", "test-agent")
	req.RemoteAddr = "1.2.3.4:5678"
	req.AddCookie(rr.Result().Cookies()[0])

	out := httptest.NewRecorder()
	gate.Admit(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })(out, req)

	if out.Code != http.StatusOK {
		t.Fatalf("expired session must not hard-fail the gate, got %d", out.Code)
	}
	if limiter.calls[0].key != "guest:1.2.3.4" {
		t.Fatalf("expired session must rate-limit as guest, got %q", limiter.calls[0].key)
	}
}

func TestGateRateLimitShortCircuits(t *testing.T) {
	limiter := newRateLimiterStub()
	windowEnd := time.Now().Add(30 * time.Second)
	limiter.allowFn = func(string, int, time.Duration) rateDecision {
		return rateDecision{allowed: false, count: 3, windowEnd: windowEnd}
	}
	detectorCalled := false
	gate, _, _ := newTestGate(limiter, func(RequestMeta) Decision {
		detectorCalled = true
		return Decision{Allow: true}
	})

	handler := gate.Admit(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler must not run for rate-limited request")
	})

	req := httptest.NewRequest(http.MethodPost, "/auth/sign-up", nil)
	req.Header.Set("User-Agent", "test-agent")
	rr := httptest.NewRecorder()
	handler(rr, req)

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if detectorCalled {
		t.Fatalf("bot heuristic must not run after rate-limit rejection")
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "rate_limited" {
		t.Fatalf("unexpected error kind: %v", body["error"])
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
	if rr.Header().Get("X-RateLimit-Limit") != "2" {
		t.Fatalf("unexpected limit header: %q", rr.Header().Get("X-RateLimit-Limit"))
	}
	if rr.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("unexpected remaining header: %q", rr.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestGateBotHeuristicDenies(t *testing.T) {
	limiter := newRateLimiterStub()
	gate, _, _ := newTestGate(limiter, func(meta RequestMeta) Decision {
		return Decision{Allow: false, Reason: "automated client"}
	})

	handler := gate.Admit(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler must not run for denied request")
	})

	req := httptest.NewRequest(http.MethodPost, "/auth/sign-up", nil)
	req.Header.Set("User-Agent", "some-bot/1.0")
	rr := httptest.NewRecorder()
	handler(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "access_denied" {
		t.Fatalf("unexpected error kind: %v", body["error"])
	}
	if len(limiter.calls) != 1 {
		t.Fatalf("rate limit stage must still run before the heuristic")
	}
}

func TestDefaultDetector(t *testing.T) {
	for _, tc := range []struct {
		ua    string
		allow bool
	}{
		{"Mozilla/5.0", true},
		{"", false},
		{"AcmeBot/2.0", false},
		{"web-crawler", false},
	} {
		got := DefaultDetector(RequestMeta{UserAgent: tc.ua})
		if got.Allow != tc.allow {
			t.Fatalf("ua %q: expected allow=%v", tc.ua, tc.allow)
		}
	}
}

package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ahananupam33/acquisitions/internal/domain"
	"github.com/ahananupam33/acquisitions/internal/service/auth"
	"github.com/ahananupam33/acquisitions/internal/validate"
)

const healthCheckTimeout = 2 * time.Second

// Router wires HTTP endpoints to services. Every auth route passes through
// the admission gate before its handler runs.
type Router struct {
	mux      *http.ServeMux
	logger   *slog.Logger
	auth     auth.Service
	cookies  *CookieManager
	gate     *Gate
	dbHealth func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	gateRejects        *prometheus.CounterVec
}

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, authSvc auth.Service, cookies *CookieManager, gate *Gate, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:      http.NewServeMux(),
		logger:   logger,
		auth:     authSvc,
		cookies:  cookies,
		gate:     gate,
		dbHealth: dbHealth,
	}
	r.initMetrics()
	gate.OnReject(r.recordGateRejection)
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit(r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/auth/sign-up", r.audit(r.gate.Admit(r.handleSignUp)))
	r.mux.HandleFunc("/auth/sign-in", r.audit(r.gate.Admit(r.handleSignIn)))
	r.mux.HandleFunc("/auth/sign-out", r.audit(r.gate.Admit(r.handleSignOut)))
	r.mux.HandleFunc("/auth/me", r.audit(r.gate.Admit(r.handleMe)))
}

func (r *Router) handleSignUp(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload validate.SignUpInput
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	user, tok, err := r.auth.SignUp(req.Context(), payload)
	if err != nil {
		r.writeAuthError(w, req, err)
		return
	}
	if err := r.cookies.Set(w, tok); err != nil {
		r.logger.Error("session cookie encode failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": publicUser(user)})
}

func (r *Router) handleSignIn(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload validate.SignInInput
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	user, tok, err := r.auth.SignIn(req.Context(), payload)
	if err != nil {
		r.writeAuthError(w, req, err)
		return
	}
	if err := r.cookies.Set(w, tok); err != nil {
		r.logger.Error("session cookie encode failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": publicUser(user)})
}

// handleSignOut clears the session cookie unconditionally. Tokens already
// issued stay valid until natural expiry; there is no server-side denylist.
func (r *Router) handleSignOut(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	r.cookies.Clear(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "signed out"})
}

func (r *Router) handleMe(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	claims, ok := claimsFromContext(req.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         claims.Subject,
		"email":      claims.Email,
		"role":       claims.Role,
		"expires_at": claims.ExpiresAt.Time.UTC().Format(time.RFC3339),
	})
}

// writeAuthError maps service errors onto the error envelope. Validation and
// credential failures are expected outcomes; everything else is logged with
// full detail and masked as internal_error.
func (r *Router) writeAuthError(w http.ResponseWriter, req *http.Request, err error) {
	var fieldErrs *validate.FieldErrors
	switch {
	case errors.As(err, &fieldErrs):
		writeErrorDetails(w, http.StatusBadRequest, "validation_failed", fieldErrs.Fields)
	case errors.Is(err, auth.ErrDuplicateUser):
		writeError(w, http.StatusConflict, "duplicate_email")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
	default:
		r.logger.Error("auth flow failed", "error", err, "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "internal_error")
	}
}

func publicUser(user *domain.User) map[string]any {
	return map[string]any{
		"id":         user.ID,
		"name":       user.Name,
		"email":      user.Email,
		"role":       user.Role,
		"created_at": user.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
	defer cancel()

	status := "ok"
	components := map[string]string{"database": "ok"}
	if r.dbHealth != nil {
		if err := r.dbHealth(ctx); err != nil {
			r.logger.Error("database health check failed", "error", err)
			status = "degraded"
			components["database"] = "unreachable"
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) audit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
		r.recordRequestMetrics(req.Method, req.URL.Path, status, duration)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
}

package httpx

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/splax/teamup/internal/service/auth"
	"github.com/splax/teamup/internal/service/inbox"
	"github.com/splax/teamup/internal/service/membership"
	"github.com/splax/teamup/internal/service/offer"
)

// Dependencies are the services and infrastructure the router serves.
type Dependencies struct {
	Logger     *slog.Logger
	Auth       auth.Service
	Membership membership.Service
	Offers     offer.Service
	Inbox      inbox.Service
	Limiter    RateLimiter
	DBHealth   func(context.Context) error
	// WSSendBuffer bounds queued messages per websocket client.
	WSSendBuffer int
}

// Router wires HTTP endpoints to services.
type Router struct {
	mux        *mux.Router
	logger     *slog.Logger
	auth       auth.Service
	members    membership.Service
	offers     offer.Service
	inbox      inbox.Service
	upgrader   websocket.Upgrader
	limiter    RateLimiter
	dbHealth   func(context.Context) error
	sendBuffer int

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	healthCheckTimeout = 2 * time.Second
	sseHeartbeat       = 25 * time.Second
)

// NewRouter assembles routes with dependencies.
func NewRouter(deps Dependencies) *Router {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		mux:     mux.NewRouter(),
		logger:  logger,
		auth:    deps.Auth,
		members: deps.Membership,
		offers:  deps.Offers,
		inbox:   deps.Inbox,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:    deps.Limiter,
		dbHealth:   deps.DBHealth,
		sendBuffer: deps.WSSendBuffer,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.Use(r.audit)
	r.mux.NotFoundHandler = r.audit(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { r.notFound(w) }))
	r.mux.MethodNotAllowedHandler = r.audit(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { r.methodNotAllowed(w) }))

	r.mux.HandleFunc("/healthz", r.handleHealthz).Methods(http.MethodGet)
	r.mux.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.mux.HandleFunc("/individuals", r.limited(policyRegister, r.handleRegister)).Methods(http.MethodPost)
	r.mux.HandleFunc("/auth/refresh", r.limited(policyRefresh, r.handleRefresh)).Methods(http.MethodPost)

	me := r.mux.PathPrefix("/me").Subrouter()
	me.HandleFunc("/team", r.authed(policyRead, r.handleCurrentTeam)).Methods(http.MethodGet)
	me.HandleFunc("/history", r.authed(policyRead, r.handleHistory)).Methods(http.MethodGet)
	me.HandleFunc("/leave", r.authed(policyWrite, r.handleLeave)).Methods(http.MethodPost)
	me.HandleFunc("/offers", r.authed(policyRead, r.handleMyOffers)).Methods(http.MethodGet)

	teams := r.mux.PathPrefix("/teams").Subrouter()
	teams.HandleFunc("", r.authed(policyWrite, r.handleFoundTeam)).Methods(http.MethodPost)
	teams.HandleFunc("/current/offers", r.authed(policyRead, r.handleTeamOffers)).Methods(http.MethodGet)
	teams.HandleFunc("/current/scouts", r.authed(policyOffers, r.handleScout)).Methods(http.MethodPost)
	teams.HandleFunc("/current/fire", r.authed(policyWrite, r.handleFire)).Methods(http.MethodPost)
	teams.HandleFunc("/current/complete", r.authed(policyWrite, r.handleComplete)).Methods(http.MethodPost)
	teams.HandleFunc("/{teamID}", r.authed(policyRead, r.handleGetTeam)).Methods(http.MethodGet)
	teams.HandleFunc("/{teamID}/recruiting", r.authed(policyWrite, r.handleSetRecruiting)).Methods(http.MethodPatch)
	teams.HandleFunc("/{teamID}/positions", r.authed(policyWrite, r.handleAdjustPositions)).Methods(http.MethodPut)
	teams.HandleFunc("/{teamID}/applications", r.authed(policyOffers, r.handleApply)).Methods(http.MethodPost)

	offers := r.mux.PathPrefix("/offers").Subrouter()
	offers.HandleFunc("/{offerID}/decision", r.authed(policyWrite, r.handleDecide)).Methods(http.MethodPost)
	offers.HandleFunc("/{offerID}", r.authed(policyWrite, r.handleCancel)).Methods(http.MethodDelete)

	r.mux.HandleFunc("/notifications", r.authed(policyRead, r.handleNotifications)).Methods(http.MethodGet)
	r.mux.HandleFunc("/notifications/stream", r.authed(policyStream, r.handleNotificationsSSE)).Methods(http.MethodGet)
	r.mux.HandleFunc("/notifications/{id:[0-9]+}/read", r.authed(policyWrite, r.handleMarkRead)).Methods(http.MethodPost)
	r.mux.HandleFunc("/ws/notifications", r.authed(policyStream, r.handleNotificationsWS)).Methods(http.MethodGet)
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
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

func (r *Router) audit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		route := routeLabel(req)
		r.recordRequestMetrics(req.Method, route, status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"route", route,
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
		if info, ok := authInfoFromContext(ctx); ok {
			actor = "individual"
			fields = append(fields, "individual_id", info.IndividualID)
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	})
}

// routeLabel returns the matched path template so metrics stay low-cardinality.
func routeLabel(req *http.Request) string {
	if route := mux.CurrentRoute(req); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
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

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
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

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}

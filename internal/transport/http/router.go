package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"net/netip"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"formvault/internal/platform/metrics"
	"formvault/internal/platform/middleware"
	"formvault/internal/ratelimit"
	"formvault/internal/session"
	dErrors "formvault/pkg/domain-errors"
	"formvault/pkg/platform/httputil"
	"formvault/pkg/platform/middleware/metadata"
	"formvault/pkg/platform/middleware/requesttime"
)

// HealthCheck reports whether one dependency answers.
type HealthCheck func(ctx context.Context) error

type RouterConfig struct {
	Handler  *Handler
	Sessions *session.Manager
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Health   map[string]HealthCheck
	Limiter  *ratelimit.Limiter // nil disables post limits

	// TrustedProxies are the peers allowed to name the client through
	// X-Forwarded-For.
	TrustedProxies []netip.Prefix
}

// NewRouter wires the form flow, its state guards and the operational
// endpoints.
func NewRouter(cfg RouterConfig) http.Handler {
	h := cfg.Handler
	r := chi.NewRouter()

	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata(cfg.TrustedProxies...))
	r.Use(middleware.Logger(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(middleware.Latency(cfg.Metrics))
	}

	r.Get("/healthz", healthHandler(cfg.Health))
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	onlyEmpty := cfg.Sessions.Require(session.StateEmpty, map[session.State]string{
		session.StateRegistered: NoticeAlreadyFilled,
		session.StateTokenized:  NoticeAlreadyFilled,
	})
	onlyRegistered := cfg.Sessions.Require(session.StateRegistered, map[session.State]string{
		session.StateEmpty:     NoticeRegisterFirst,
		session.StateTokenized: NoticeAlreadyFilled,
	})
	onlyTokenized := cfg.Sessions.Require(session.StateTokenized, map[session.State]string{
		session.StateEmpty:      NoticeFillAll,
		session.StateRegistered: NoticeFillAll,
	})

	limit := func(class ratelimit.Class) func(http.Handler) http.Handler {
		if cfg.Limiter == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return cfg.Limiter.Limit(class)
	}

	r.Group(func(r chi.Router) {
		r.Use(cfg.Sessions.Load)

		r.Get("/", h.handleHome)

		r.With(onlyEmpty).Get("/register", h.handleRegisterForm)
		r.With(onlyEmpty, limit(ratelimit.ClassRegister)).Post("/register", h.handleRegister)

		r.With(onlyRegistered).Get("/email", h.handleEmailForm)
		r.With(onlyRegistered, limit(ratelimit.ClassEmail)).Post("/email", h.handleEmail)

		r.With(onlyTokenized).Get("/get-data", h.handleGetData)
		r.With(onlyTokenized).Get("/delete", h.handleDelete)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.renderError(w, r, dErrors.New(dErrors.CodeNotFound, "Page not found."))
	})

	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := make(map[string]string, len(names))
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, name+" unreachable"))
				return
			}
			status[name] = "ok"
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"checks": status,
		})
	}
}

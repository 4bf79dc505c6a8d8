// Package ratelimit caps how often one client address may submit the forms.
package ratelimit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"formvault/internal/platform/metrics"
	"formvault/pkg/requestcontext"
)

// Class groups routes that share one budget.
type Class string

const (
	ClassRegister Class = "register"
	ClassEmail    Class = "email"
)

// Result is the outcome of one Allow call.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the whole number of seconds until the window resets, at
// least one.
func (r *Result) RetryAfter(now time.Time) int {
	secs := int(r.ResetAt.Sub(now).Seconds())
	if secs < 1 {
		return 1
	}
	return secs
}

// Store counts hits per key within a window.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}

// LimitedFunc writes the response for a rejected request.
type LimitedFunc func(w http.ResponseWriter, r *http.Request, result *Result)

type Limiter struct {
	store    Store
	limit    int
	window   time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
	onLimit  LimitedFunc
	disabled bool
}

type Option func(*Limiter)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) { l.metrics = m }
}

// WithLimitedHandler replaces the default plain 429 response.
func WithLimitedHandler(fn LimitedFunc) Option {
	return func(l *Limiter) { l.onLimit = fn }
}

// New allows limit requests per client address and class in each window. A
// limit of zero or less disables the limiter.
func New(store Store, limit int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		store:    store,
		limit:    limit,
		window:   window,
		logger:   slog.New(slog.DiscardHandler),
		disabled: limit <= 0 || window <= 0 || store == nil,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.onLimit == nil {
		l.onLimit = func(w http.ResponseWriter, _ *http.Request, _ *Result) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}
	}
	if l.disabled {
		l.logger.Info("rate limiting disabled")
	}
	return l
}

// Key builds the store key for a client address. Colons in the address are
// replaced so IPv6 addresses cannot collide with another class's keys.
func Key(class Class, ip string) string {
	if ip == "" {
		ip = "unknown"
	}
	return string(class) + ":" + strings.ReplaceAll(ip, ":", "_")
}

// Limit rejects requests from an address that used up its budget for class.
// Store failures let the request through.
func (l *Limiter) Limit(class Class) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l.disabled {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			result, err := l.store.Allow(ctx, Key(class, requestcontext.ClientIP(ctx)), l.limit, l.window)
			if err != nil {
				l.logger.ErrorContext(ctx, "failed to check rate limit",
					"class", class,
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				next.ServeHTTP(w, r)
				return
			}

			addHeaders(w, result)
			if !result.Allowed {
				if l.metrics != nil {
					l.metrics.IncRateLimited(string(class))
				}
				l.logger.WarnContext(ctx, "rate limit exceeded",
					"class", class,
					"limit", result.Limit,
					"request_id", requestcontext.RequestID(ctx),
				)
				w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter(requestcontext.Now(ctx))))
				l.onLimit(w, r, result)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func addHeaders(w http.ResponseWriter, result *Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"formvault/internal/platform/metrics"
	"formvault/pkg/platform/sentinel"
	"formvault/pkg/requestcontext"
)

// CSRFField is the hidden form input carrying the session's CSRF token.
const CSRFField = "csrf_token"

type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, sess *Session, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

type Config struct {
	CookieName string
	TTL        time.Duration
	Secure     bool
}

// Manager loads the session for each request, commits changes before the
// response is written and guards routes by state.
type Manager struct {
	store   Store
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	newID   func() string
}

type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

func NewManager(store Store, cfg Config, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		cfg:    cfg,
		logger: slog.New(slog.DiscardHandler),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type contextKey struct{}

// FromContext returns the request's session, or nil outside Manager.Load.
func FromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(contextKey{}).(*Session)
	return sess
}

func WithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, sess)
}

// Load attaches the visitor's session to the request context, starting a new
// one when the cookie is missing, unknown or expired.
func (m *Manager) Load(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := m.load(r)
		if err != nil {
			m.logger.ErrorContext(r.Context(), "failed to load session",
				"error", err,
				"request_id", requestcontext.RequestID(r.Context()),
			)
			unavailable(w)
			return
		}

		ctx := WithSession(r.Context(), sess)
		ctx = requestcontext.WithSessionID(ctx, sess.ID)
		r = r.WithContext(ctx)

		cw := &commitWriter{ResponseWriter: w, manager: m, session: sess, request: r}
		next.ServeHTTP(cw, r)
		cw.commit()
	})
}

func (m *Manager) load(r *http.Request) (*Session, error) {
	if c, err := r.Cookie(m.cfg.CookieName); err == nil {
		if _, perr := uuid.Parse(c.Value); perr == nil {
			sess, err := m.store.Get(r.Context(), c.Value)
			switch {
			case err == nil:
				return sess, nil
			case !errors.Is(err, sentinel.ErrNotFound):
				return nil, err
			}
		}
	}
	return New(m.newID(), m.newID(), requestcontext.Now(r.Context())), nil
}

func (m *Manager) save(w http.ResponseWriter, r *http.Request, sess *Session) error {
	if !sess.Dirty() {
		return nil
	}
	if err := m.store.Save(r.Context(), sess, m.cfg.TTL); err != nil {
		m.logger.ErrorContext(r.Context(), "failed to save session",
			"error", err,
			"session_id", sess.ID,
			"request_id", requestcontext.RequestID(r.Context()),
		)
		return err
	}
	sess.MarkClean()
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    sess.ID,
		Path:     "/",
		MaxAge:   int(m.cfg.TTL.Seconds()),
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Rotate drops the stored entry for sess and gives it a fresh id. The new
// entry is written when the response is committed.
func (m *Manager) Rotate(ctx context.Context, sess *Session) error {
	if err := m.store.Delete(ctx, sess.ID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	sess.Rotate(m.newID())
	return nil
}

// unavailable replaces whatever the handler prepared with a plain 503.
func unavailable(w http.ResponseWriter) {
	w.Header().Del("Location")
	http.Error(w, "Session storage unavailable.", http.StatusServiceUnavailable)
}

// Require lets the request through only when the session is in state want.
// Otherwise the notice for the current state is flashed and the visitor is
// sent home.
func (m *Manager) Require(want State, notices map[State]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := FromContext(r.Context())
			if sess == nil {
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if sess.State == want {
				next.ServeHTTP(w, r)
				return
			}

			if notice := notices[sess.State]; notice != "" {
				sess.AddFlash(notice)
			}
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			if m.metrics != nil {
				m.metrics.IncGuardRejection(route, string(sess.State))
			}
			m.logger.InfoContext(r.Context(), "guard rejected request",
				"route", route,
				"state", sess.State,
				"required", want,
				"request_id", requestcontext.RequestID(r.Context()),
			)
			http.Redirect(w, r, "/", http.StatusSeeOther)
		})
	}
}

// ValidCSRF compares the submitted csrf_token with the session's. The form
// must already be parsed.
func (m *Manager) ValidCSRF(r *http.Request, sess *Session) bool {
	given := r.PostFormValue(CSRFField)
	if given == "" || sess == nil || sess.CSRFToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(given), []byte(sess.CSRFToken)) == 1
}

// commitWriter saves the session just before the first byte of the response.
// When the save fails the handler's response is swapped for a 503 and
// anything it writes afterwards is dropped.
type commitWriter struct {
	http.ResponseWriter
	manager   *Manager
	session   *Session
	request   *http.Request
	committed bool
	failed    bool
}

// commit reports whether the handler's response may go out.
func (w *commitWriter) commit() bool {
	if !w.committed {
		w.committed = true
		if err := w.manager.save(w.ResponseWriter, w.request, w.session); err != nil {
			w.failed = true
			unavailable(w.ResponseWriter)
		}
	}
	return !w.failed
}

func (w *commitWriter) WriteHeader(code int) {
	if w.commit() {
		w.ResponseWriter.WriteHeader(code)
	}
}

func (w *commitWriter) Write(b []byte) (int, error) {
	if !w.commit() {
		return len(b), nil
	}
	return w.ResponseWriter.Write(b)
}

func (w *commitWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

package httptransport

import (
	"context"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"

	"formvault/internal/platform/metrics"
	"formvault/internal/ratelimit"
	"formvault/internal/session"
	"formvault/internal/submission/form"
	"formvault/internal/submission/models"
	dErrors "formvault/pkg/domain-errors"
	"formvault/pkg/requestcontext"
)

// Notices shown after a guard or a failed step sends the visitor home.
const (
	NoticeAlreadyFilled = "You already filled the form"
	NoticeRegisterFirst = "You need to fill the form in register to access this page"
	NoticeFillAll       = "You need to fill all the forms to make this action"
	NoticeFormExpired   = "Your form expired, please submit it again."
	NoticeTokenInvalid  = "Your access token is not valid anymore, please fill the forms again."
	NoticeUnknownFile   = "Unknown file requested. Choose the pdf or the image."
	NoticeSessionReset  = "Your session was cleared."
)

// Service is the submission flow as seen by the handlers.
type Service interface {
	Register(ctx context.Context, in models.RegisterInput) (int64, error)
	AttachEmail(ctx context.Context, id int64, email string) (string, error)
	Retrieve(ctx context.Context, token string) (*models.Submission, error)
	Attachment(ctx context.Context, token string, kind models.AttachmentKind) (*models.Attachment, error)
	RecordSessionReset(ctx context.Context, reason string)
}

// Handler serves the three-step form flow.
type Handler struct {
	service        Service
	sessions       *session.Manager
	logger         *slog.Logger
	metrics        *metrics.Metrics
	pages          pages
	maxUploadBytes int64
}

func NewHandler(service Service, sessions *session.Manager, logger *slog.Logger, m *metrics.Metrics, maxUploadBytes int64) (*Handler, error) {
	p, err := parsePages()
	if err != nil {
		return nil, err
	}
	return &Handler{
		service:        service,
		sessions:       sessions,
		logger:         logger,
		metrics:        m,
		pages:          p,
		maxUploadBytes: maxUploadBytes,
	}, nil
}

func (h *Handler) handleHome(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "index", pageData{Title: "Home"})
}

func (h *Handler) handleRegisterForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "register", pageData{Title: "Register"})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := session.FromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	f, errs := form.DecodeRegister(r)
	if errs.Has(form.FormErrorKey) {
		h.rejectForm(w, r, "register", f.Values(), errs)
		return
	}
	if !h.sessions.ValidCSRF(r, sess) {
		h.csrfFailed(w, r, "/register")
		return
	}
	if errs != nil {
		h.rejectForm(w, r, "register", f.Values(), errs)
		return
	}

	id, err := h.service.Register(ctx, f.Input())
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if err := sess.MarkRegistered(id); err != nil {
		h.renderError(w, r, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update session"))
		return
	}
	http.Redirect(w, r, "/email", http.StatusSeeOther)
}

func (h *Handler) handleEmailForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "email", pageData{Title: "Email"})
}

func (h *Handler) handleEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := session.FromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	f, errs := form.DecodeEmail(r)
	values := map[string]string{"email": f.Email}
	if errs.Has(form.FormErrorKey) {
		h.rejectForm(w, r, "email", values, errs)
		return
	}
	if !h.sessions.ValidCSRF(r, sess) {
		h.csrfFailed(w, r, "/email")
		return
	}
	if errs != nil {
		h.rejectForm(w, r, "email", values, errs)
		return
	}

	token, err := h.service.AttachEmail(ctx, sess.SubmissionID, f.Email)
	if err != nil {
		switch dErrors.CodeOf(err) {
		case dErrors.CodeNotFound:
			// the row this session points at is gone; nothing left to continue
			h.resetSession(ctx, sess, "submission not found")
			h.renderError(w, r, err)
		case dErrors.CodeConflict:
			h.resetSession(ctx, sess, "email already attached")
			sess.AddFlash(NoticeAlreadyFilled)
			http.Redirect(w, r, "/", http.StatusSeeOther)
		default:
			h.renderError(w, r, err)
		}
		return
	}
	if err := sess.MarkTokenized(token); err != nil {
		h.renderError(w, r, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update session"))
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) handleGetData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := session.FromContext(ctx)

	file := r.URL.Query().Get("file")
	if file == "" {
		sub, err := h.service.Retrieve(ctx, sess.Token)
		if err != nil {
			h.retrievalFailed(w, r, sess, err)
			return
		}
		h.render(w, r, http.StatusOK, "data", pageData{Title: "Your data", Submission: sub})
		return
	}

	kind, ok := models.ParseAttachmentKind(file)
	if !ok {
		sess.AddFlash(NoticeUnknownFile)
		http.Redirect(w, r, "/get-data", http.StatusSeeOther)
		return
	}
	att, err := h.service.Attachment(ctx, sess.Token, kind)
	if err != nil {
		h.retrievalFailed(w, r, sess, err)
		return
	}
	writeAttachment(w, att)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	if err := h.sessions.Rotate(r.Context(), sess); err != nil {
		h.renderError(w, r, dErrors.Wrap(err, dErrors.CodeUnavailable, "Could not clear your session. Please try again later."))
		return
	}
	h.resetSession(r.Context(), sess, "visitor request")
	sess.AddFlash(NoticeSessionReset)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// RateLimited renders the error page for a post rejected by the rate limiter.
func (h *Handler) RateLimited(w http.ResponseWriter, r *http.Request, _ *ratelimit.Result) {
	h.renderError(w, r, dErrors.New(dErrors.CodeRateLimited, "Too many submissions from your address. Please try again later."))
}

func (h *Handler) retrievalFailed(w http.ResponseWriter, r *http.Request, sess *session.Session, err error) {
	if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
		h.resetSession(r.Context(), sess, "invalid token")
		sess.AddFlash(NoticeTokenInvalid)
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.renderError(w, r, err)
}

func (h *Handler) resetSession(ctx context.Context, sess *session.Session, reason string) {
	sess.Reset()
	h.service.RecordSessionReset(ctx, reason)
}

func (h *Handler) rejectForm(w http.ResponseWriter, r *http.Request, name string, values map[string]string, errs form.FieldErrors) {
	if h.metrics != nil {
		h.metrics.IncValidationFailure(name)
	}
	h.logger.InfoContext(r.Context(), "form rejected",
		"form", name,
		"fields", len(errs),
		"request_id", requestcontext.RequestID(r.Context()),
	)
	h.render(w, r, http.StatusUnprocessableEntity, name, pageData{
		Title:  "Please check the form",
		Errors: errs,
		Values: values,
	})
}

func (h *Handler) csrfFailed(w http.ResponseWriter, r *http.Request, back string) {
	h.logger.WarnContext(r.Context(), "csrf token mismatch",
		"path", r.URL.Path,
		"request_id", requestcontext.RequestID(r.Context()),
	)
	if sess := session.FromContext(r.Context()); sess != nil {
		sess.AddFlash(NoticeFormExpired)
	}
	http.Redirect(w, r, back, http.StatusSeeOther)
}

// writeAttachment streams a stored file as a download under its original name.
func writeAttachment(w http.ResponseWriter, att *models.Attachment) {
	contentType := mime.TypeByExtension(filepath.Ext(att.Filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": att.Filename})
	if disposition == "" {
		disposition = "attachment"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", disposition)
	w.Header().Set("Content-Length", strconv.Itoa(len(att.Content)))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(att.Content)
}

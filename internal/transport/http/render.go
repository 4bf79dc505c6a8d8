package httptransport

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"formvault/internal/session"
	"formvault/internal/submission/form"
	"formvault/internal/submission/models"
	dErrors "formvault/pkg/domain-errors"
	"formvault/pkg/requestcontext"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{"index", "register", "email", "data", "error"}

type pages map[string]*template.Template

func parsePages() (pages, error) {
	out := make(pages, len(pageNames))
	for _, name := range pageNames {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		out[name] = t
	}
	return out, nil
}

// pageData is the single view model shared by all templates.
type pageData struct {
	Title      string
	State      session.State
	Flashes    []string
	CSRF       string
	Errors     form.FieldErrors
	Values     map[string]string
	Submission *models.Submission
	Status     int
	Message    string
}

// render writes a full page. Pending flash notices are consumed here so they
// show exactly once.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name string, data pageData) {
	if sess := session.FromContext(r.Context()); sess != nil {
		data.State = sess.State
		data.CSRF = sess.CSRFToken
		data.Flashes = append(data.Flashes, sess.PopFlashes()...)
	}

	var buf bytes.Buffer
	if err := h.pages[name].ExecuteTemplate(&buf, "layout", data); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to render template",
			"template", name,
			"error", err,
			"request_id", requestcontext.RequestID(r.Context()),
		)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// renderError shows the error page for err. Internal details are logged, not
// shown.
func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	code := dErrors.CodeOf(err)
	status := dErrors.ToHTTPStatus(code)

	message := "Something went wrong on our side. Please try again later."
	if code != dErrors.CodeInternal {
		var de *dErrors.Error
		if errors.As(err, &de) {
			message = de.Message
		}
	}

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, "request failed",
		"error", err,
		"code", code,
		"status", status,
		"request_id", requestcontext.RequestID(r.Context()),
	)

	h.render(w, r, status, "error", pageData{
		Title:   http.StatusText(status),
		Status:  status,
		Message: message,
	})
}

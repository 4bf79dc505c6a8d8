// Package testutil provides common test utilities for handler and scenario tests.
package testutil

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

// File is one file part of a multipart request.
type File struct {
	Field    string
	Filename string
	Content  []byte
}

// NewMultipartRequest builds a multipart/form-data request.
func NewMultipartRequest(t *testing.T, method, path string, fields map[string]string, files ...File) *http.Request {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, f := range files {
		part, err := w.CreateFormFile(f.Field, f.Filename)
		require.NoError(t, err)
		_, err = part.Write(f.Content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

// NewFormRequest builds an application/x-www-form-urlencoded request.
func NewFormRequest(t *testing.T, method, path string, fields map[string]string) *http.Request {
	t.Helper()
	values := url.Values{}
	for k, v := range fields {
		values.Set(k, v)
	}
	req := httptest.NewRequest(method, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// DoRequest executes a request against a handler and returns the recorder.
func DoRequest(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// Browser replays cookies between requests against an in-process handler,
// the way a visitor's browser would. Redirects are not followed so tests can
// assert on Location.
type Browser struct {
	t       *testing.T
	handler http.Handler
	cookies map[string]*http.Cookie
}

func NewBrowser(t *testing.T, handler http.Handler) *Browser {
	return &Browser{t: t, handler: handler, cookies: map[string]*http.Cookie{}}
}

// Do sends req with the current cookies and stores any cookies set in reply.
func (b *Browser) Do(req *http.Request) *httptest.ResponseRecorder {
	b.t.Helper()
	for _, c := range b.cookies {
		req.AddCookie(c)
	}
	rr := DoRequest(b.handler, req)
	for _, c := range rr.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c
	}
	return rr
}

// Get is a convenience wrapper for GET requests.
func (b *Browser) Get(path string) *httptest.ResponseRecorder {
	b.t.Helper()
	return b.Do(httptest.NewRequest(http.MethodGet, path, nil))
}

// Cookie returns the stored cookie with name, or nil.
func (b *Browser) Cookie(name string) *http.Cookie {
	return b.cookies[name]
}

// Fork returns a second browser holding copies of the current cookies.
func (b *Browser) Fork() *Browser {
	nb := NewBrowser(b.t, b.handler)
	for k, c := range b.cookies {
		cp := *c
		nb.cookies[k] = &cp
	}
	return nb
}

// Document parses an HTML response body.
func Document(t *testing.T, rr *httptest.ResponseRecorder) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(rr.Body.Bytes()))
	require.NoError(t, err)
	return doc
}

// CSRFToken extracts the hidden csrf_token input from a rendered form.
func CSRFToken(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	token, ok := Document(t, rr).Find(`input[name="csrf_token"]`).Attr("value")
	require.True(t, ok, "form has no csrf_token input")
	require.NotEmpty(t, token)
	return token
}

// RequireRedirect asserts a 303 to location.
func RequireRedirect(t *testing.T, rr *httptest.ResponseRecorder, location string) {
	t.Helper()
	require.Equal(t, http.StatusSeeOther, rr.Code, "body: %s", rr.Body.String())
	require.Equal(t, location, rr.Header().Get("Location"))
}

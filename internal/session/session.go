// Package session tracks where a browser is in the three-step form flow.
//
// State lives server-side and is found through a random id carried in a
// cookie. The flow is strictly linear:
//
//	Empty --register--> Registered --email--> Tokenized
//
// and Reset returns any state to Empty.
package session

import (
	"fmt"
	"time"

	"formvault/pkg/platform/sentinel"
)

type State string

const (
	StateEmpty      State = "empty"
	StateRegistered State = "registered"
	StateTokenized  State = "tokenized"
)

// Session is one browser's progress plus its flash notices and CSRF token.
type Session struct {
	ID           string    `json:"id"`
	State        State     `json:"state"`
	SubmissionID int64     `json:"submission_id,omitempty"`
	Token        string    `json:"token,omitempty"`
	CSRFToken    string    `json:"csrf_token"`
	Flashes      []string  `json:"flashes,omitempty"`
	CreatedAt    time.Time `json:"created_at"`

	dirty bool
}

func New(id, csrfToken string, now time.Time) *Session {
	return &Session{
		ID:        id,
		State:     StateEmpty,
		CSRFToken: csrfToken,
		CreatedAt: now,
		dirty:     true,
	}
}

// MarkRegistered records the row created by the register step.
func (s *Session) MarkRegistered(submissionID int64) error {
	if s.State != StateEmpty {
		return fmt.Errorf("register from %s: %w", s.State, sentinel.ErrInvalidState)
	}
	if submissionID <= 0 {
		return fmt.Errorf("register with id %d: %w", submissionID, sentinel.ErrInvalidState)
	}
	s.State = StateRegistered
	s.SubmissionID = submissionID
	s.dirty = true
	return nil
}

// MarkTokenized stores the retrieval token and forgets the row id.
func (s *Session) MarkTokenized(token string) error {
	if s.State != StateRegistered {
		return fmt.Errorf("tokenize from %s: %w", s.State, sentinel.ErrInvalidState)
	}
	if token == "" {
		return fmt.Errorf("tokenize with empty token: %w", sentinel.ErrInvalidState)
	}
	s.State = StateTokenized
	s.Token = token
	s.SubmissionID = 0
	s.dirty = true
	return nil
}

// Reset clears progress. Flash notices and the CSRF token survive.
func (s *Session) Reset() {
	s.State = StateEmpty
	s.SubmissionID = 0
	s.Token = ""
	s.dirty = true
}

// Rotate moves the session to a new id, keeping everything else.
func (s *Session) Rotate(id string) {
	s.ID = id
	s.dirty = true
}

func (s *Session) AddFlash(msg string) {
	s.Flashes = append(s.Flashes, msg)
	s.dirty = true
}

// PopFlashes returns pending notices and clears them.
func (s *Session) PopFlashes() []string {
	if len(s.Flashes) == 0 {
		return nil
	}
	out := s.Flashes
	s.Flashes = nil
	s.dirty = true
	return out
}

// Dirty reports whether the session changed since it was loaded.
func (s *Session) Dirty() bool {
	return s.dirty
}

// MarkClean is called by stores after loading.
func (s *Session) MarkClean() {
	s.dirty = false
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	c := *s
	if s.Flashes != nil {
		c.Flashes = append([]string(nil), s.Flashes...)
	}
	return &c
}

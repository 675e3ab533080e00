package identity

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNoIdentity reports a store call attempted with nobody signed in.
var ErrNoIdentity = errors.New("no authenticated user")

// Provider resolves the account that owns store rows. ok is false when
// nobody is signed in, which callers treat as "no results", not an error.
type Provider interface {
	CurrentUserID(ctx context.Context) (id string, ok bool)
}

// Static always reports the same account. An empty id means anonymous.
type Static string

func (s Static) CurrentUserID(context.Context) (string, bool) {
	return string(s), s != ""
}

// Session resolves once, when the login flow calls Resolve. Callers that ask
// before that block until the id arrives, ctx ends, or the hydration timeout
// elapses (then they see "no user").
type Session struct {
	timeout time.Duration

	mu       sync.Mutex
	ready    chan struct{}
	userID   string
	resolved bool
}

func NewSession(timeout time.Duration) *Session {
	return &Session{timeout: timeout, ready: make(chan struct{})}
}

// Resolve publishes the signed-in account. Later calls are ignored until Reset.
func (s *Session) Resolve(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolved {
		return
	}
	s.userID = userID
	s.resolved = true
	close(s.ready)
}

// Reset forgets the account (sign-out); the next caller waits again.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.resolved {
		return
	}
	s.userID = ""
	s.resolved = false
	s.ready = make(chan struct{})
}

func (s *Session) CurrentUserID(ctx context.Context) (string, bool) {
	s.mu.Lock()
	ready := s.ready
	s.mu.Unlock()

	var timer <-chan time.Time
	if s.timeout > 0 {
		t := time.NewTimer(s.timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case <-ready:
	case <-ctx.Done():
		return "", false
	case <-timer:
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID, s.userID != ""
}

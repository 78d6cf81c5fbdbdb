package salesforce

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// SessionManager holds the single active Session for the process.
//
// Reads are lock-free. Authentication is coalesced, so concurrent callers
// that find no session (or that all invalidated the same expired one) share a
// single token request. Invalidate only clears the session it was handed,
// which keeps a late 401 from discarding a session that was already renewed.
type SessionManager struct {
	auth    Authenticator
	current atomic.Pointer[Session]
	group   singleflight.Group
}

// NewSessionManager creates a SessionManager that authenticates with auth.
func NewSessionManager(auth Authenticator) *SessionManager {
	return &SessionManager{auth: auth}
}

// Current returns the cached session or nil.
func (m *SessionManager) Current() *Session {
	return m.current.Load()
}

// Session returns the cached session, authenticating first if there is none.
func (m *SessionManager) Session(ctx context.Context) (*Session, error) {
	if s := m.current.Load(); s != nil {
		return s, nil
	}
	return m.Refresh(ctx)
}

// Refresh authenticates and installs the new session.
func (m *SessionManager) Refresh(ctx context.Context) (*Session, error) {
	v, err, _ := m.group.Do("auth", func() (any, error) {
		// The token request outlives any single caller that gave up waiting.
		s, err := m.auth.Authenticate(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		m.current.Store(s)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// Invalidate clears stale if it is still the active session.
func (m *SessionManager) Invalidate(stale *Session) bool {
	if stale == nil {
		return false
	}
	return m.current.CompareAndSwap(stale, nil)
}

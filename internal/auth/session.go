package auth

import (
	"fmt"
	"net/http"
	"time"
)

// SessionCookieName is the name of the OIDC session cookie.
const SessionCookieName = "bulkvm_oidc_session"

// Session identifies an operator signed in through OIDC.
type Session struct {
	Subject   string    `json:"sub"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionManager issues and reads encrypted session cookies.
type SessionManager struct {
	sealer   *sealer
	duration time.Duration
}

// NewSessionManager creates a session manager. key must be 32 bytes.
func NewSessionManager(key []byte, duration time.Duration, secure bool) (*SessionManager, error) {
	s, err := newSealer(key, secure)
	if err != nil {
		return nil, err
	}
	return &SessionManager{sealer: s, duration: duration}, nil
}

// Create stores session in a cookie valid for the manager's duration.
func (sm *SessionManager) Create(w http.ResponseWriter, session *Session) error {
	session.ExpiresAt = time.Now().Add(sm.duration)
	value, err := sm.sealer.seal(SessionCookieName, session)
	if err != nil {
		return err
	}
	sm.sealer.set(w, SessionCookieName, value, int(sm.duration.Seconds()))
	return nil
}

// Get returns the session carried by r, if any and not expired.
func (sm *SessionManager) Get(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return nil, fmt.Errorf("session cookie not found: %w", err)
	}
	var session Session
	if err := sm.sealer.open(SessionCookieName, cookie.Value, &session); err != nil {
		return nil, err
	}
	if time.Now().After(session.ExpiresAt) {
		return nil, fmt.Errorf("session expired")
	}
	return &session, nil
}

// Clear removes the session cookie.
func (sm *SessionManager) Clear(w http.ResponseWriter) {
	sm.sealer.clear(w, SessionCookieName)
}

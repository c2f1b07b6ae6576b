package web

import (
	"context"
	"net/http"
	"time"

	"github.com/bcnelson/bulk-vm-provisioner/internal/api/middleware"
	"github.com/bcnelson/bulk-vm-provisioner/internal/auth"
	"github.com/bcnelson/bulk-vm-provisioner/internal/domain"
)

const (
	sessionCookieName = "bulkvm_session"
	sessionDuration   = 24 * time.Hour
)

type contextKey string

const sessionContextKey contextKey = "session"

// Session represents an authenticated user session. Exactly one of APIKey
// and OIDC is set.
type Session struct {
	APIKey *domain.APIKey
	OIDC   *auth.Session
}

// User names the operator for display and for batch records.
func (s *Session) User() string {
	switch {
	case s == nil:
		return ""
	case s.OIDC != nil && s.OIDC.Email != "":
		return s.OIDC.Email
	case s.OIDC != nil:
		return s.OIDC.Subject
	default:
		return s.APIKey.Name
	}
}

// APIKeyID names the key behind an API key session. Single sign-on sessions
// have none.
func (s *Session) APIKeyID() string {
	if s == nil || s.OIDC != nil || s.APIKey == nil {
		return ""
	}
	return s.APIKey.ID
}

// sessionAuth is middleware that validates session cookies. A single sign-on
// session wins over an API key cookie.
func (s *Server) sessionAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if s.oidc != nil {
			if oidcSession, err := s.oidc.Sessions.Get(r); err == nil {
				ctx = context.WithValue(ctx, sessionContextKey, &Session{OIDC: oidcSession})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
		}

		cookie, err := r.Cookie(sessionCookieName)
		if err != nil || cookie.Value == "" {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		storedKey, err := middleware.Authenticate(ctx, s.store, s.bootstrapKey, cookie.Value)
		if err != nil {
			// Invalid or revoked key
			clearSessionCookie(w)
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		ctx = context.WithValue(ctx, sessionContextKey, &Session{APIKey: storedKey})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// getSession retrieves the session from context.
func getSession(ctx context.Context) *Session {
	session, _ := ctx.Value(sessionContextKey).(*Session)
	return session
}

// setSessionCookie sets the session cookie.
func setSessionCookie(w http.ResponseWriter, apiKey string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    apiKey,
		Path:     "/",
		MaxAge:   int(sessionDuration.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// clearSessionCookie clears the session cookie.
func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

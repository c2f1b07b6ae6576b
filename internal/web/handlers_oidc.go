package web

import (
	"net/http"
	"net/url"

	"github.com/bcnelson/bulk-vm-provisioner/internal/auth"
)

func loginError(w http.ResponseWriter, r *http.Request, msg string) {
	http.Redirect(w, r, "/login?error="+url.QueryEscape(msg), http.StatusSeeOther)
}

// handleOIDCLogin initiates the OIDC login flow.
func (s *Server) handleOIDCLogin(w http.ResponseWriter, r *http.Request) {
	if s.oidc == nil {
		http.Error(w, "OIDC authentication is not enabled", http.StatusNotFound)
		return
	}

	stateData, err := s.oidc.States.Generate(w)
	if err != nil {
		s.log.Error(err, "generating OIDC state")
		loginError(w, r, "Failed to initiate login")
		return
	}

	http.Redirect(w, r, s.oidc.Provider.AuthCodeURL(stateData.State, stateData.Nonce), http.StatusSeeOther)
}

// handleOIDCCallback handles the OIDC callback after authentication.
func (s *Server) handleOIDCCallback(w http.ResponseWriter, r *http.Request) {
	if s.oidc == nil {
		http.Error(w, "OIDC authentication is not enabled", http.StatusNotFound)
		return
	}

	q := r.URL.Query()

	// Check for error from provider
	if errParam := q.Get("error"); errParam != "" {
		errDesc := q.Get("error_description")
		if errDesc == "" {
			errDesc = errParam
		}
		s.log.Info("OIDC provider returned error", "error", errParam, "description", errDesc)
		loginError(w, r, errDesc)
		return
	}

	code := q.Get("code")
	if code == "" {
		loginError(w, r, "No authorization code received")
		return
	}

	stateData, err := s.oidc.States.Validate(r, q.Get("state"))
	if err != nil {
		s.log.Info("OIDC state validation failed", "error", err.Error())
		loginError(w, r, "Invalid state parameter")
		return
	}
	s.oidc.States.Clear(w)

	claims, err := s.oidc.Provider.Exchange(r.Context(), code, stateData.Nonce)
	if err != nil {
		s.log.Error(err, "OIDC token exchange failed")
		loginError(w, r, "Failed to complete authentication")
		return
	}

	// Domain restriction
	if err := s.oidc.Provider.ValidateClaims(claims); err != nil {
		s.log.Info("OIDC claims rejected", "subject", claims.Subject, "error", err.Error())
		loginError(w, r, err.Error())
		return
	}

	session := &auth.Session{
		Subject: claims.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
	}
	if err := s.oidc.Sessions.Create(w, session); err != nil {
		s.log.Error(err, "creating OIDC session")
		loginError(w, r, "Failed to create session")
		return
	}

	s.log.V(1).Info("OIDC login", "subject", claims.Subject, "email", claims.Email)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

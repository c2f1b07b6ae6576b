// Package auth signs operators into the web UI through an OpenID Connect
// provider and keeps them signed in with encrypted cookies.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/bcnelson/bulk-vm-provisioner/internal/config"
)

// Claims are the ID token claims the UI uses.
type Claims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// OIDCProvider runs the authorization code flow against one issuer.
type OIDCProvider struct {
	oauth2Config   *oauth2.Config
	verifier       *oidc.IDTokenVerifier
	allowedDomains []string
}

// NewOIDCProvider discovers the issuer named in cfg.
func NewOIDCProvider(ctx context.Context, cfg *config.OIDCConfig) (*OIDCProvider, error) {
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("discovering OIDC issuer %s: %w", cfg.IssuerURL, err)
	}

	return &OIDCProvider{
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       cfg.GetScopes(),
		},
		verifier:       provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		allowedDomains: cfg.GetAllowedDomains(),
	}, nil
}

// AuthCodeURL returns the provider login URL for state and nonce.
func (p *OIDCProvider) AuthCodeURL(state, nonce string) string {
	return p.oauth2Config.AuthCodeURL(state, oidc.Nonce(nonce))
}

// Exchange trades an authorization code for a verified ID token and returns its claims.
func (p *OIDCProvider) Exchange(ctx context.Context, code, nonce string) (*Claims, error) {
	token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchanging code: %w", err)
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, errors.New("no id_token in token response")
	}
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("verifying ID token: %w", err)
	}
	if idToken.Nonce != nonce {
		return nil, errors.New("nonce mismatch")
	}

	var claims Claims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("parsing claims: %w", err)
	}
	return &claims, nil
}

// ValidateClaims requires an email, and one in an allowed domain when domains are configured.
func (p *OIDCProvider) ValidateClaims(claims *Claims) error {
	return checkEmailDomain(claims.Email, p.allowedDomains)
}

func checkEmailDomain(email string, allowed []string) error {
	if email == "" {
		return errors.New("email claim is required")
	}
	if len(allowed) == 0 {
		return nil
	}
	_, domain, ok := strings.Cut(email, "@")
	if !ok || domain == "" || strings.Contains(domain, "@") {
		return errors.New("invalid email format")
	}
	for _, d := range allowed {
		if strings.EqualFold(d, domain) {
			return nil
		}
	}
	return fmt.Errorf("email domain %s is not allowed", strings.ToLower(domain))
}

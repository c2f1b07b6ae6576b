package web

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-logr/logr"

	"github.com/bcnelson/bulk-vm-provisioner/internal/auth"
	"github.com/bcnelson/bulk-vm-provisioner/internal/service"
	"github.com/bcnelson/bulk-vm-provisioner/internal/storage"
)

//go:embed templates/* static/*
var content embed.FS

// OIDCComponents bundles what the web UI needs for single sign-on.
// A nil *OIDCComponents disables it.
type OIDCComponents struct {
	Provider  *auth.OIDCProvider
	Sessions  *auth.SessionManager
	States    *auth.StateStore
	LogoutURL string
}

// Server holds dependencies for web handlers.
type Server struct {
	store        storage.Storage
	provisioning *service.ProvisioningService
	bootstrapKey string
	oidc         *OIDCComponents
	log          logr.Logger
	templates    map[string]*template.Template
	funcMap      template.FuncMap
}

// NewRouter creates a new web router with all routes configured.
func NewRouter(
	store storage.Storage,
	provisioning *service.ProvisioningService,
	bootstrapKey string,
	oidc *OIDCComponents,
	log logr.Logger,
) http.Handler {
	s := &Server{
		store:        store,
		provisioning: provisioning,
		bootstrapKey: bootstrapKey,
		oidc:         oidc,
		log:          log,
	}

	// Parse all templates
	s.templates = s.parseTemplates()

	r := chi.NewRouter()

	// Static files
	staticFS, _ := fs.Sub(content, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))

	// Public routes
	r.Get("/login", s.handleLoginPage)
	r.Post("/login", s.handleLogin)
	r.Get("/logout", s.handleLogout)
	r.Get("/auth/oidc/login", s.handleOIDCLogin)
	r.Get("/auth/oidc/callback", s.handleOIDCCallback)

	// Protected routes (require session)
	r.Group(func(r chi.Router) {
		r.Use(s.sessionAuth)

		// Bulk provisioning
		r.Get("/", s.handleBulkForm)
		r.Post("/bulk", s.handleBulkSubmit)

		// History
		r.Get("/batches", s.handleBatchesList)
		r.Get("/batches/{id}", s.handleBatchDetail)

		// Settings
		r.Get("/settings", s.handleSettingsPage)
		r.Post("/settings/keys", s.handleAPIKeyCreate)
		r.Post("/settings/keys/{id}/delete", s.handleAPIKeyDelete)
	})

	return r
}

// parseTemplates parses all templates with custom functions.
func (s *Server) parseTemplates() map[string]*template.Template {
	s.funcMap = template.FuncMap{
		"join":       strings.Join,
		"hasPrefix":  strings.HasPrefix,
		"trimPrefix": strings.TrimPrefix,
		"lower":      strings.ToLower,
		"dict":       dict,
		"lines":      lines,
	}

	templates := make(map[string]*template.Template)

	// Read base template and components
	baseContent, _ := content.ReadFile("templates/base.html")
	navContent, _ := content.ReadFile("templates/components/nav.html")
	flashContent, _ := content.ReadFile("templates/components/flash.html")
	selectContent, _ := content.ReadFile("templates/components/select.html")

	// Combine base with components
	baseWithComponents := string(baseContent) + string(navContent) + string(flashContent) + string(selectContent)

	// Parse each page template separately with the base
	pageFiles, _ := fs.Glob(content, "templates/pages/*.html")
	for _, pagePath := range pageFiles {
		pageName := filepath.Base(pagePath)
		pageName = strings.TrimSuffix(pageName, ".html")

		pageContent, _ := content.ReadFile(pagePath)

		tmpl := template.New(pageName).Funcs(s.funcMap)
		tmpl, err := tmpl.Parse(baseWithComponents + string(pageContent))
		if err != nil {
			panic("failed to parse template " + pageName + ": " + err.Error())
		}

		templates[pageName] = tmpl
	}

	return templates
}

// dict creates a map from key-value pairs for use in templates.
func dict(values ...any) map[string]any {
	if len(values)%2 != 0 {
		return nil
	}
	m := make(map[string]any, len(values)/2)
	for i := 0; i < len(values); i += 2 {
		key, ok := values[i].(string)
		if !ok {
			continue
		}
		m[key] = values[i+1]
	}
	return m
}

// lines splits multi-line outcome messages for display.
func lines(s string) []string {
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}

// PageData holds common data passed to all page templates.
type PageData struct {
	Title   string
	Active  string // Current nav item
	User    string
	Flash   *FlashMessage
	Content any
}

// FlashMessage represents a flash message.
type FlashMessage struct {
	Type    string // "success", "error", "info"
	Message string
}

package web

import (
	"errors"
	"html/template"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/bcnelson/bulk-vm-provisioner/internal/api/middleware"
	"github.com/bcnelson/bulk-vm-provisioner/internal/domain"
	"github.com/bcnelson/bulk-vm-provisioner/internal/provision"
)

// maxUploadBytes caps the bulk form, uploaded CSV included.
const maxUploadBytes = 4 << 20

// LoginData holds data for the login page.
type LoginData struct {
	OIDCEnabled bool
}

// handleLoginPage renders the login page.
func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	data := PageData{
		Title:   "Login",
		Content: LoginData{OIDCEnabled: s.oidc != nil},
	}

	// Check for flash message in query params
	if msg := r.URL.Query().Get("error"); msg != "" {
		data.Flash = &FlashMessage{Type: "error", Message: msg}
	}

	s.render(w, "base-noauth", "login", data)
}

// handleLogin processes the login form.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, "/login?error=Invalid+form+data", http.StatusSeeOther)
		return
	}

	apiKey := r.FormValue("api_key")
	if apiKey == "" {
		http.Redirect(w, r, "/login?error=API+key+required", http.StatusSeeOther)
		return
	}

	if _, err := middleware.Authenticate(r.Context(), s.store, s.bootstrapKey, apiKey); err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			http.Redirect(w, r, "/login?error=Invalid+API+key", http.StatusSeeOther)
			return
		}
		http.Redirect(w, r, "/login?error=Server+error", http.StatusSeeOther)
		return
	}

	// Set session cookie and redirect
	setSessionCookie(w, apiKey)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleLogout clears the session and redirects to login, or to the
// provider's logout page after a single sign-on session.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	clearSessionCookie(w)
	if s.oidc != nil {
		_, err := s.oidc.Sessions.Get(r)
		s.oidc.Sessions.Clear(w)
		if err == nil && s.oidc.LogoutURL != "" {
			http.Redirect(w, r, s.oidc.LogoutURL, http.StatusSeeOther)
			return
		}
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// Option is one entry of a select box.
type Option struct {
	Value string
	Label string
}

// Choices are the select box entries of the bulk form.
type Choices struct {
	Statuses   []string
	AlertTypes []string
	Datazones  []string
	Tenants    []Option
	Clusters   []Option
	Platforms  []Option
	Roles      []Option
	Envs       []Option
	Backups    []Option
	Offsite    []Option
}

// BulkFormData holds data for the bulk provisioning page.
type BulkFormData struct {
	CSV      string
	Defaults domain.Defaults
	Commit   bool
	Choices  *Choices
}

// handleBulkForm renders the bulk provisioning form.
func (s *Server) handleBulkForm(w http.ResponseWriter, r *http.Request) {
	s.renderBulkForm(w, r, http.StatusOK, BulkFormData{
		CSV:      domain.DefaultCSVHeader + "\n",
		Defaults: domain.Defaults{Status: string(domain.StatusStaged), Datazone: domain.DatazoneRoundRobin},
	}, nil)
}

// handleBulkSubmit runs a batch and renders its outcomes.
func (s *Server) handleBulkSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		s.renderError(w, "Invalid form data", http.StatusBadRequest)
		return
	}

	form := BulkFormData{
		CSV:    r.FormValue("csv"),
		Commit: r.FormValue("commit") == "on",
		Defaults: domain.Defaults{
			Status:        r.FormValue("status"),
			Tenant:        r.FormValue("tenant"),
			Cluster:       r.FormValue("cluster"),
			Datazone:      r.FormValue("datazone"),
			AlertType:     r.FormValue("prom_alert_type"),
			Env:           r.FormValue("env"),
			Platform:      r.FormValue("platform"),
			Role:          r.FormValue("role"),
			Backup:        r.FormValue("backup"),
			BackupOffsite: r.FormValue("backup_offsite"),
		},
	}

	// An uploaded file replaces the text area
	if file, _, err := r.FormFile("csv_file"); err == nil {
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			s.renderError(w, "Failed to read uploaded file", http.StatusBadRequest)
			return
		}
		if len(data) > 0 {
			form.CSV = string(data)
		}
	}

	if strings.TrimSpace(form.CSV) == "" {
		s.renderBulkForm(w, r, http.StatusBadRequest, form, &FlashMessage{Type: "error", Message: "CSV is required"})
		return
	}

	run, err := s.provisioning.RunBatch(r.Context(), domain.BulkRequest{
		CSV:         form.CSV,
		Defaults:    form.Defaults,
		Commit:      form.Commit,
		SubmittedBy: getSession(r.Context()).User(),
		APIKeyID:    getSession(r.Context()).APIKeyID(),
	})
	if err != nil {
		status, message := http.StatusInternalServerError, "Batch failed: "+err.Error()
		switch {
		case errors.Is(err, domain.ErrBatchInProgress):
			status, message = http.StatusConflict, "Another batch is running. Try again when it has finished."
		case errors.Is(err, domain.ErrInvalidInput):
			status, message = http.StatusBadRequest, err.Error()
		}
		if status == http.StatusInternalServerError {
			s.log.Error(err, "running batch from web form")
		}
		s.renderBulkForm(w, r, status, form, &FlashMessage{Type: "error", Message: message})
		return
	}

	s.renderRun(w, r, run)
}

// renderBulkForm loads the select box entries and renders the form.
func (s *Server) renderBulkForm(w http.ResponseWriter, r *http.Request, status int, form BulkFormData, flash *FlashMessage) {
	choices, err := s.loadChoices(r)
	if err != nil {
		s.log.Error(err, "loading form choices")
		s.renderError(w, "Failed to load catalog", http.StatusInternalServerError)
		return
	}
	form.Choices = choices

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	s.render(w, "base", "bulk", PageData{
		Title:   "Bulk provisioning",
		Active:  "bulk",
		User:    getSession(r.Context()).User(),
		Flash:   flash,
		Content: form,
	})
}

// loadChoices reads the catalog lists concurrently.
func (s *Server) loadChoices(r *http.Request) (*Choices, error) {
	c := &Choices{
		Statuses:   []string{string(domain.StatusStaged), string(domain.StatusPlanned)},
		AlertTypes: domain.AlertTypes,
		Datazones:  []string{domain.DatazoneRoundRobin, "1", "2"},
	}

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		tenants, err := s.store.ListTenants(ctx)
		for _, t := range tenants {
			c.Tenants = append(c.Tenants, Option{Value: t.Slug, Label: t.Name})
		}
		return err
	})
	g.Go(func() error {
		clusters, err := s.store.ListClusters(ctx)
		for _, cl := range clusters {
			c.Clusters = append(c.Clusters, Option{Value: cl.Name, Label: cl.Name})
		}
		return err
	})
	g.Go(func() error {
		platforms, err := s.store.ListPlatforms(ctx)
		for _, p := range platforms {
			c.Platforms = append(c.Platforms, Option{Value: p.Name, Label: p.Name})
		}
		return err
	})
	g.Go(func() error {
		roles, err := s.store.ListRoles(ctx)
		for _, role := range roles {
			if role.VMRole {
				c.Roles = append(c.Roles, Option{Value: role.Name, Label: role.Name})
			}
		}
		return err
	})
	g.Go(func() error {
		tags, err := s.store.ListTags(ctx)
		for _, t := range tags {
			switch {
			case strings.HasPrefix(t.Name, provision.EnvTagPrefix):
				c.Envs = append(c.Envs, Option{Value: strings.TrimPrefix(t.Name, provision.EnvTagPrefix), Label: t.Name})
			case strings.HasPrefix(t.Name, "backup_offsite"):
				c.Offsite = append(c.Offsite, Option{Value: t.Name, Label: t.Name})
			case strings.HasPrefix(t.Name, "backup"):
				c.Backups = append(c.Backups, Option{Value: t.Name, Label: t.Name})
			}
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, opts := range [][]Option{c.Tenants, c.Clusters, c.Platforms, c.Roles, c.Envs, c.Backups, c.Offsite} {
		sort.Slice(opts, func(i, j int) bool { return opts[i].Label < opts[j].Label })
	}
	return c, nil
}

// BatchesListData holds data for the batch history page.
type BatchesListData struct {
	Runs []*domain.BatchRun
	Prev int
	Next int
}

const batchesPageSize = 50

// handleBatchesList renders recorded batch runs.
func (s *Server) handleBatchesList(w http.ResponseWriter, r *http.Request) {
	offset := parseInt(r.URL.Query().Get("offset"), 0)

	runs, err := s.store.ListBatchRuns(r.Context(), batchesPageSize+1, offset)
	if err != nil {
		s.renderError(w, "Failed to load batches", http.StatusInternalServerError)
		return
	}

	list := BatchesListData{Prev: -1, Next: -1}
	if offset > 0 {
		list.Prev = max(offset-batchesPageSize, 0)
	}
	if len(runs) > batchesPageSize {
		runs = runs[:batchesPageSize]
		list.Next = offset + batchesPageSize
	}
	list.Runs = runs

	s.render(w, "base", "batches", PageData{
		Title:   "Batches",
		Active:  "batches",
		User:    getSession(r.Context()).User(),
		Content: list,
	})
}

// handleBatchDetail renders one recorded batch run.
func (s *Server) handleBatchDetail(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetBatchRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.renderError(w, "Batch not found", http.StatusNotFound)
			return
		}
		s.renderError(w, "Failed to load batch", http.StatusInternalServerError)
		return
	}
	s.renderRun(w, r, run)
}

func (s *Server) renderRun(w http.ResponseWriter, r *http.Request, run *domain.BatchRun) {
	flash := &FlashMessage{Type: "success", Message: "All rows provisioned."}
	switch {
	case run.Failed > 0:
		flash = &FlashMessage{Type: "error", Message: "Some rows failed. Fix them and submit only those rows again."}
	case !run.Commit:
		flash = &FlashMessage{Type: "info", Message: "Dry run. Nothing was written to the catalog."}
	}
	s.render(w, "base", "result", PageData{
		Title:   "Batch result",
		Active:  "batches",
		User:    getSession(r.Context()).User(),
		Flash:   flash,
		Content: run,
	})
}

// SettingsPageData holds data for the settings page.
type SettingsPageData struct {
	APIKeys []*domain.APIKey
	NewKey  string
}

// handleSettingsPage renders the settings page.
func (s *Server) handleSettingsPage(w http.ResponseWriter, r *http.Request) {
	s.renderSettings(w, r, "", nil)
}

func (s *Server) renderSettings(w http.ResponseWriter, r *http.Request, newKey string, flash *FlashMessage) {
	keys, err := s.store.ListAPIKeys(r.Context())
	if err != nil {
		s.renderError(w, "Failed to load API keys", http.StatusInternalServerError)
		return
	}

	s.render(w, "base", "settings", PageData{
		Title:   "Settings",
		Active:  "settings",
		User:    getSession(r.Context()).User(),
		Flash:   flash,
		Content: SettingsPageData{APIKeys: keys, NewKey: newKey},
	})
}

// handleAPIKeyCreate creates a new API key and shows it once.
func (s *Server) handleAPIKeyCreate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.renderError(w, "Invalid form data", http.StatusBadRequest)
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		s.renderError(w, "Name is required", http.StatusBadRequest)
		return
	}

	issued, err := domain.IssueAPIKey(name, time.Now())
	if err != nil {
		s.renderError(w, "Failed to generate key", http.StatusInternalServerError)
		return
	}
	if err := s.store.CreateAPIKey(r.Context(), &issued.APIKey); err != nil {
		s.renderError(w, "Failed to create API key", http.StatusInternalServerError)
		return
	}

	s.renderSettings(w, r, issued.Key, &FlashMessage{
		Type:    "success",
		Message: "API key created. Copy it now, it will not be shown again.",
	})
}

// handleAPIKeyDelete deletes an API key.
func (s *Server) handleAPIKeyDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteAPIKey(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.renderError(w, "API key not found", http.StatusNotFound)
			return
		}
		s.renderError(w, "Failed to delete API key", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/settings", http.StatusSeeOther)
}

// render renders a full page using the base template.
// page is the page name (e.g., "login", "bulk", "result")
// base is the base template to use ("base" or "base-noauth")
func (s *Server) render(w http.ResponseWriter, base, page string, data PageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	tmpl, ok := s.templates[page]
	if !ok {
		http.Error(w, "Template not found: "+page, http.StatusInternalServerError)
		return
	}

	if err := tmpl.ExecuteTemplate(w, base, data); err != nil {
		s.log.Error(err, "rendering template", "page", page)
	}
}

// renderError renders an error message.
func (s *Server) renderError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(`<div class="flash flash-error">` + template.HTMLEscapeString(message) + `</div>`))
}

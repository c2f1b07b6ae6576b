package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bcnelson/bulk-vm-provisioner/internal/api/handler"
	"github.com/bcnelson/bulk-vm-provisioner/internal/api/middleware"
	"github.com/bcnelson/bulk-vm-provisioner/internal/service"
	"github.com/bcnelson/bulk-vm-provisioner/internal/storage"
)

// Options configures the router.
type Options struct {
	BootstrapKey string
	// MetricsPath exposes the default Prometheus registry. Empty disables it.
	MetricsPath string
	// Web is mounted at "/" when set.
	Web http.Handler
	Log logr.Logger
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(store storage.Storage, provisioning *service.ProvisioningService, opts Options) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging(opts.Log))

	// Health check (no auth required)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	if opts.MetricsPath != "" {
		r.Handle(opts.MetricsPath, promhttp.Handler())
	}

	// Web UI serves HTML, so it sits outside the JSON content type
	if opts.Web != nil {
		r.Mount("/", opts.Web)
	}

	// API routes (auth required, JSON Content-Type)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.ContentType)
		r.Use(middleware.Auth(store, opts.BootstrapKey))

		// API Keys
		keyHandler := handler.NewAPIKeyHandler(store)
		r.Post("/keys", keyHandler.Create)
		r.Get("/keys", keyHandler.List)
		r.Delete("/keys/{id}", keyHandler.Delete)

		// Batches
		bulkHandler := handler.NewBulkHandler(store, provisioning)
		r.Post("/bulk", bulkHandler.Run)
		r.Get("/batches", bulkHandler.ListRuns)
		r.Get("/batches/{id}", bulkHandler.GetRun)

		// Catalog
		catalogHandler := handler.NewCatalogHandler(store)
		r.Post("/catalog/seed", catalogHandler.Seed)
		r.Get("/catalog/{kind}", catalogHandler.List)
		r.Get("/virtual-machines/{name}", catalogHandler.GetVirtualMachine)
	})

	return r
}

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bcnelson/bulk-vm-provisioner/internal/api"
	"github.com/bcnelson/bulk-vm-provisioner/internal/app"
	"github.com/bcnelson/bulk-vm-provisioner/internal/auth"
	"github.com/bcnelson/bulk-vm-provisioner/internal/config"
	"github.com/bcnelson/bulk-vm-provisioner/internal/web"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Storage, profile and services
	a, err := app.Open(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	// Fail fast when a catalog site has no monitoring environments
	if err := a.CheckProfile(context.Background()); err != nil {
		log.Fatalf("Provisioning profile does not cover the catalog: %v", err)
	}

	var oidc *web.OIDCComponents
	if cfg.OIDC.Enabled {
		oidc, err = newOIDC(&cfg.OIDC)
		if err != nil {
			log.Fatalf("Failed to initialize OIDC: %v", err)
		}
		log.Printf("OIDC login enabled (issuer %s)", cfg.OIDC.IssuerURL)
	}

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}

	// Create router
	router := api.NewRouter(a.Store, a.Provisioning, api.Options{
		BootstrapKey: cfg.Auth.BootstrapAPIKey,
		MetricsPath:  metricsPath,
		Web:          web.NewRouter(a.Store, a.Provisioning, cfg.Auth.BootstrapAPIKey, oidc, a.Log.WithName("web")),
		Log:          a.Log.WithName("http"),
	})

	// Create HTTP server. A batch runs inside its request.
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("Starting Bulk VM Provisioner on http://%s", cfg.Server.Addr())
	log.Printf("Press Ctrl+C to stop")

	// Start server in goroutine
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

func newOIDC(cfg *config.OIDCConfig) (*web.OIDCComponents, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	provider, err := auth.NewOIDCProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}

	key, err := cfg.GetSessionSecretBytes()
	if err != nil {
		return nil, err
	}
	// Secure cookies whenever the callback is served over TLS
	secure := strings.HasPrefix(cfg.RedirectURL, "https://")

	sessions, err := auth.NewSessionManager(key, cfg.SessionDuration, secure)
	if err != nil {
		return nil, err
	}
	states, err := auth.NewStateStore(key, secure)
	if err != nil {
		return nil, err
	}

	return &web.OIDCComponents{
		Provider:  provider,
		Sessions:  sessions,
		States:    states,
		LogoutURL: cfg.LogoutURL,
	}, nil
}

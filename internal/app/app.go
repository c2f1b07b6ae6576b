// Package app wires configuration into the storage, profile and services
// shared by the server and the CLI.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"

	"github.com/bcnelson/bulk-vm-provisioner/internal/batch"
	"github.com/bcnelson/bulk-vm-provisioner/internal/config"
	"github.com/bcnelson/bulk-vm-provisioner/internal/ipam"
	"github.com/bcnelson/bulk-vm-provisioner/internal/logging"
	"github.com/bcnelson/bulk-vm-provisioner/internal/provision"
	"github.com/bcnelson/bulk-vm-provisioner/internal/service"
	"github.com/bcnelson/bulk-vm-provisioner/internal/storage"
	"github.com/bcnelson/bulk-vm-provisioner/internal/storage/sql"
)

// App holds the long-lived components.
type App struct {
	Config       *config.Config
	Log          logr.Logger
	Store        storage.Storage
	Profile      *config.Profile
	Provisioning *service.ProvisioningService
}

// Open opens storage and loads the provisioning profile. Close releases storage.
func Open(cfg *config.Config) (*App, error) {
	log, err := logging.New(os.Stderr, cfg.Log.Format, cfg.Log.Verbosity)
	if err != nil {
		return nil, err
	}

	profile, err := config.LoadProfile(cfg.Provisioning.ProfilePath)
	if err != nil {
		return nil, err
	}

	if cfg.Database.Driver == "sqlite3" {
		if err := ensureSQLiteDir(cfg.Database.DSN); err != nil {
			return nil, err
		}
	}
	store, err := sql.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}

	return &App{
		Config:       cfg,
		Log:          log,
		Store:        store,
		Profile:      profile,
		Provisioning: service.NewProvisioningService(store, profile, BatchOptions(cfg), log.WithName("provisioning")),
	}, nil
}

// Close closes storage.
func (a *App) Close() error {
	return a.Store.Close()
}

// CheckProfile verifies the profile against the catalog's sites.
func (a *App) CheckProfile(ctx context.Context) error {
	return a.Provisioning.CheckProfile(ctx)
}

// BatchOptions maps the provisioning config onto batch driver options.
func BatchOptions(cfg *config.Config) batch.Options {
	p := cfg.Provisioning
	return batch.Options{
		Provision: provision.Options{
			Addresses: ipam.Options{
				VRF:           p.VRF,
				PrivateDomain: p.PrivateDomain,
				PublicDomain:  p.PublicDomain,
			},
			BaselineTags: p.GetBaselineTags(),
			Compensate:   p.Compensate,
		},
		DefaultAlertType: p.DefaultAlertType,
	}
}

// ensureSQLiteDir creates the directory of a file-backed sqlite DSN.
func ensureSQLiteDir(dsn string) error {
	path, _, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
	if path == "" || path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	return nil
}

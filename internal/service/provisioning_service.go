package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/bcnelson/bulk-vm-provisioner/internal/batch"
	"github.com/bcnelson/bulk-vm-provisioner/internal/config"
	"github.com/bcnelson/bulk-vm-provisioner/internal/domain"
	"github.com/bcnelson/bulk-vm-provisioner/internal/storage"
	"github.com/bcnelson/bulk-vm-provisioner/internal/validation"
)

// ProvisioningService runs CSV batches against the catalog, one at a time.
type ProvisioningService struct {
	store   storage.Storage
	profile *config.Profile
	opts    batch.Options
	log     logr.Logger

	// mu is held for the duration of a batch. Rows must observe the writes
	// of earlier rows, so batches never interleave.
	mu sync.Mutex
}

// NewProvisioningService creates a new ProvisioningService.
func NewProvisioningService(store storage.Storage, profile *config.Profile, opts batch.Options, log logr.Logger) *ProvisioningService {
	return &ProvisioningService{
		store:   store,
		profile: profile,
		opts:    opts,
		log:     log,
	}
}

// Profile returns the provisioning profile in use.
func (s *ProvisioningService) Profile() *config.Profile {
	return s.profile
}

// RunBatch provisions the rows of req inside a storage transaction. The
// transaction is committed when req.Commit is set and rolled back otherwise,
// so a dry run reports the same outcomes without leaving anything behind.
// Either way the run is recorded afterwards. A second caller while a batch is
// running gets domain.ErrBatchInProgress.
func (s *ProvisioningService) RunBatch(ctx context.Context, req domain.BulkRequest) (*domain.BatchRun, error) {
	if !s.mu.TryLock() {
		return nil, domain.ErrBatchInProgress
	}
	defer s.mu.Unlock()

	if err := validation.ValidateDefaults(req.Defaults); err != nil {
		return nil, err
	}

	run := &domain.BatchRun{
		ID:          uuid.New().String(),
		Commit:      req.Commit,
		SubmittedBy: req.SubmittedBy,
		APIKeyID:    req.APIKeyID,
		StartedAt:   time.Now(),
	}
	log := s.log.WithValues("batch", run.ID, "commit", req.Commit)

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting batch transaction: %w", err)
	}

	driver := batch.NewDriver(tx, s.profile, s.opts, log)
	res, runErr := driver.Run(ctx, req.CSV, req.Defaults)

	// The transaction must be closed before the audit write: sqlite runs on a
	// single connection.
	if runErr != nil || !req.Commit {
		if err := tx.Rollback(); err != nil {
			log.Error(err, "rolling back batch")
		}
		if runErr != nil {
			return nil, runErr
		}
	} else if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing batch: %w", err)
	}

	run.Payload = res.Payload
	run.Rows = len(res.Outcomes)
	run.Succeeded = res.Succeeded
	run.Failed = res.Failed
	run.Outcomes = res.Outcomes
	run.FinishedAt = time.Now()
	if run.Outcomes == nil {
		run.Outcomes = domain.Outcomes{}
	}

	if err := s.store.CreateBatchRun(ctx, run); err != nil {
		return nil, fmt.Errorf("recording batch run: %w", err)
	}
	s.recordKeyUsage(ctx, log, run)

	log.Info("batch finished", "rows", run.Rows, "succeeded", run.Succeeded, "failed", run.Failed)
	return run, nil
}

// recordKeyUsage credits run to the API key that submitted it. The run is
// already recorded, so a failure here is only logged.
func (s *ProvisioningService) recordKeyUsage(ctx context.Context, log logr.Logger, run *domain.BatchRun) {
	if run.APIKeyID == "" || run.APIKeyID == domain.BootstrapAPIKeyID {
		return
	}
	err := s.store.RecordAPIKeyBatch(ctx, run.APIKeyID, run.ID, run.FinishedAt)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		log.V(1).Info("api key deleted during batch", "apiKey", run.APIKeyID)
	case err != nil:
		log.Error(err, "recording api key usage", "apiKey", run.APIKeyID)
	}
}

// CheckProfile verifies that every site hosting a cluster has a row in the
// profile's monitoring environment table.
func (s *ProvisioningService) CheckProfile(ctx context.Context) error {
	clusters, err := s.store.ListClusters(ctx)
	if err != nil {
		return fmt.Errorf("listing clusters: %w", err)
	}

	seen := make(map[string]bool)
	var sites []string
	for _, c := range clusters {
		if seen[c.SiteID] {
			continue
		}
		seen[c.SiteID] = true
		site, err := s.store.GetSite(ctx, c.SiteID)
		if err != nil {
			return fmt.Errorf("cluster %s: site: %w", c.Name, err)
		}
		sites = append(sites, site.Name)
	}
	return s.profile.CheckSites(sites)
}

package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bcnelson/bulk-vm-provisioner/internal/catalog"
	"github.com/bcnelson/bulk-vm-provisioner/internal/domain"
	"github.com/bcnelson/bulk-vm-provisioner/internal/storage"
)

// CatalogHandler exposes the inventory catalog.
type CatalogHandler struct {
	store storage.Storage
}

// NewCatalogHandler creates a new CatalogHandler.
func NewCatalogHandler(store storage.Storage) *CatalogHandler {
	return &CatalogHandler{store: store}
}

// Seed applies a YAML or JSON seed document in one transaction.
func (h *CatalogHandler) Seed(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, domain.ErrCodeInvalidInput, "invalid request body")
		return
	}
	seed, err := catalog.ParseSeed(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, domain.ErrCodeInvalidInput, err.Error())
		return
	}

	ctx := r.Context()
	tx, err := h.store.BeginTx(ctx)
	if err != nil {
		handleError(w, err)
		return
	}
	sum, err := catalog.Apply(ctx, tx, seed)
	if err != nil {
		_ = tx.Rollback()
		handleError(w, err)
		return
	}
	if err := tx.Commit(); err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sum)
}

// List lists one kind of catalog entity.
func (h *CatalogHandler) List(w http.ResponseWriter, r *http.Request) {
	list, ok := h.listers()[chi.URLParam(r, "kind")]
	if !ok {
		respondError(w, http.StatusNotFound, domain.ErrCodeResourceNotFound, "unknown catalog kind")
		return
	}
	items, err := list(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, items)
}

func (h *CatalogHandler) listers() map[string]func(context.Context) (any, error) {
	return map[string]func(context.Context) (any, error){
		"tenants":          lister(h.store.ListTenants),
		"sites":            lister(h.store.ListSites),
		"clusters":         lister(h.store.ListClusters),
		"roles":            lister(h.store.ListRoles),
		"platforms":        lister(h.store.ListPlatforms),
		"tags":             lister(h.store.ListTags),
		"vrfs":             lister(h.store.ListVRFs),
		"vlans":            lister(h.store.ListVLANs),
		"prefixes":         lister(h.store.ListPrefixes),
		"ip-addresses":     lister(h.store.ListIPAddresses),
		"virtual-machines": lister(h.store.ListVirtualMachines),
	}
}

func lister[T any](list func(context.Context) ([]*T, error)) func(context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		items, err := list(ctx)
		if err != nil {
			return nil, err
		}
		if items == nil {
			items = []*T{}
		}
		return items, nil
	}
}

// GetVirtualMachine returns a virtual machine by name with its primary
// address, interfaces and services.
func (h *CatalogHandler) GetVirtualMachine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vm, err := h.store.GetVirtualMachineByName(ctx, chi.URLParam(r, "name"))
	if err != nil {
		handleError(w, err)
		return
	}

	detail := &domain.VirtualMachineDetail{VirtualMachine: vm}
	if vm.PrimaryIP4ID != nil {
		if detail.PrimaryIP4, err = h.store.GetIPAddress(ctx, *vm.PrimaryIP4ID); err != nil {
			handleError(w, err)
			return
		}
	}
	if detail.Interfaces, err = h.store.ListVMInterfaces(ctx, vm.ID); err != nil {
		handleError(w, err)
		return
	}
	if detail.Services, err = h.store.ListServices(ctx, vm.ID); err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

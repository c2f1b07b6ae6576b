// Package provision composes candidate virtual machines from operator input
// and creates them in the catalog one step at a time.
package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/bcnelson/bulk-vm-provisioner/internal/config"
	"github.com/bcnelson/bulk-vm-provisioner/internal/domain"
	"github.com/bcnelson/bulk-vm-provisioner/internal/ipam"
)

// State is a position in the provisioning state machine.
type State string

const (
	StateComposed           State = "composed"
	StateBasePersisted      State = "base_persisted"
	StateAddressBound       State = "address_bound"
	StateTagged             State = "tagged"
	StateInterfaceBound     State = "interface_bound"
	StateServicesRegistered State = "services_registered"
	StateDone               State = "done"
	StateFailed             State = "failed"
)

// Step names the transition that moves a record out of a state.
type Step string

const (
	StepCreateVM         Step = "create_vm"
	StepAllocateAddress  Step = "allocate_address"
	StepAttachTags       Step = "attach_tags"
	StepBindInterface    Step = "bind_interface"
	StepRegisterServices Step = "register_services"
)

// StepError reports which step of a record failed.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Catalog is everything the orchestrator reads and writes.
type Catalog interface {
	ipam.Catalog
	TagStore
	GetPrefix(ctx context.Context, siteID, prefix string) (*domain.Prefix, error)
	CreateVirtualMachine(ctx context.Context, vm *domain.VirtualMachine) error
	UpdateVirtualMachine(ctx context.Context, vm *domain.VirtualMachine) error
	DeleteVirtualMachine(ctx context.Context, id string) error
	UpdateIPAddress(ctx context.Context, addr *domain.IPAddress) error
	DeleteIPAddress(ctx context.Context, id string) error
	CreateVMInterface(ctx context.Context, iface *domain.VMInterface) error
	DeleteVMInterface(ctx context.Context, id string) error
	CreateService(ctx context.Context, svc *domain.Service) error
	DeleteService(ctx context.Context, id string) error
}

// Options configure an Orchestrator.
type Options struct {
	Addresses    ipam.Options
	BaselineTags []string
	// Compensate deletes the objects a failed record created, newest first.
	// Off by default: a failed record is left partially created.
	Compensate bool
}

// Result describes what a Provision call created.
type Result struct {
	State          State
	FailedStep     Step
	VirtualMachine *domain.VirtualMachine
	Address        *domain.IPAddress
	Interface      *domain.VMInterface
	Services       []*domain.Service
	Tags           []string
	// Compensated lists the objects removed after a failure.
	Compensated     []string
	CompensationErr error
}

// Orchestrator runs the creation sequence for a composed record.
type Orchestrator struct {
	catalog   Catalog
	profile   *config.Profile
	addresses *ipam.Allocator
	opts      Options
	log       logr.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(catalog Catalog, profile *config.Profile, opts Options, log logr.Logger) *Orchestrator {
	return &Orchestrator{
		catalog:   catalog,
		profile:   profile,
		addresses: ipam.NewAllocator(catalog, opts.Addresses),
		opts:      opts,
		log:       log,
	}
}

type step struct {
	name Step
	next State
	run  func(context.Context, *Record, *Result) error
}

// Provision moves r from Composed to Done. The first failing step stops the
// sequence and is returned as a *StepError; the Result then reports the state
// reached and, when compensation is enabled, what was removed.
func (o *Orchestrator) Provision(ctx context.Context, r *Record) (*Result, error) {
	res := &Result{State: StateComposed}
	steps := []step{
		{StepCreateVM, StateBasePersisted, o.createVM},
		{StepAllocateAddress, StateAddressBound, o.bindAddress},
		{StepAttachTags, StateTagged, o.attachTags},
		{StepBindInterface, StateInterfaceBound, o.bindInterface},
		{StepRegisterServices, StateServicesRegistered, o.registerServices},
	}

	for _, s := range steps {
		start := time.Now()
		err := s.run(ctx, r, res)
		recordStepMetric(s.name, domain.ErrorKind(err), time.Since(start).Seconds())
		if err != nil {
			o.log.V(1).Info("step failed", "hostname", r.Hostname, "step", s.name, "state", res.State, "error", err.Error())
			res.FailedStep = s.name
			res.State = StateFailed
			if o.opts.Compensate {
				o.compensate(ctx, res)
			}
			recordRecordMetric(false)
			return res, &StepError{Step: s.name, Err: err}
		}
		res.State = s.next
		o.log.V(2).Info("step done", "hostname", r.Hostname, "state", res.State)
	}

	res.State = StateDone
	recordRecordMetric(true)
	return res, nil
}

func (o *Orchestrator) createVM(ctx context.Context, r *Record, res *Result) error {
	now := time.Now()
	vm := &domain.VirtualMachine{
		ID:         uuid.New().String(),
		Name:       r.Hostname,
		Status:     r.Status,
		ClusterID:  r.Cluster.ID,
		SiteID:     r.Site.ID,
		TenantID:   r.Tenant.ID,
		RoleID:     r.Role.ID,
		PlatformID: r.Platform.ID,
		VCPUs:      r.VCPUs,
		Memory:     r.Memory,
		Disk:       r.Disk,
		Comments:   r.Comments,
		Tags:       []string{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := o.catalog.CreateVirtualMachine(ctx, vm); err != nil {
		return domain.Persist("create", "virtual machine "+vm.Name, err)
	}
	res.VirtualMachine = vm
	return nil
}

func (o *Orchestrator) bindAddress(ctx context.Context, r *Record, res *Result) error {
	addr, err := o.addresses.Allocate(ctx, ipam.Request{
		Hostname: r.Hostname,
		Site:     r.Site,
		Tenant:   r.Tenant,
		VLAN:     r.VLAN,
		Explicit: r.Address,
	})
	if err != nil {
		return err
	}
	res.Address = addr

	res.VirtualMachine.PrimaryIP4ID = &addr.ID
	if err := o.catalog.UpdateVirtualMachine(ctx, res.VirtualMachine); err != nil {
		return domain.Persist("update", "virtual machine "+res.VirtualMachine.Name, err)
	}
	return nil
}

func (o *Orchestrator) attachTags(ctx context.Context, r *Record, res *Result) error {
	// Environment, datazone and backup tags were resolved during composition.
	if err := EnsureTags(ctx, o.catalog, o.opts.BaselineTags); err != nil {
		return err
	}
	if err := EnsureTags(ctx, o.catalog, r.ExtraTags); err != nil {
		return err
	}

	tags := TagSet(r, o.opts.BaselineTags)
	res.VirtualMachine.Tags = tags
	if err := o.catalog.UpdateVirtualMachine(ctx, res.VirtualMachine); err != nil {
		return domain.Persist("update", "virtual machine "+res.VirtualMachine.Name, err)
	}
	res.Tags = tags
	return nil
}

func (o *Orchestrator) bindInterface(ctx context.Context, r *Record, res *Result) error {
	vlanID, err := o.untaggedVLAN(ctx, r, res.Address.Address)
	if err != nil {
		return err
	}

	tmpl, err := o.profile.PrimaryInterface(r.Platform.Name, r.Role.Name)
	if err != nil {
		return err
	}
	mode, ok := domain.ParseInterfaceMode(tmpl.Mode)
	if !ok {
		return fmt.Errorf("interface %s: %w: unknown mode %q", tmpl.Name, domain.ErrInvalidInput, tmpl.Mode)
	}

	iface := &domain.VMInterface{
		ID:               uuid.New().String(),
		VirtualMachineID: res.VirtualMachine.ID,
		Name:             tmpl.Name,
		MTU:              tmpl.MTU,
		Mode:             mode,
		CreatedAt:        time.Now(),
	}
	if mode == domain.InterfaceModeAccess {
		iface.UntaggedVLANID = vlanID
	}
	if err := o.catalog.CreateVMInterface(ctx, iface); err != nil {
		return domain.Persist("create", "interface "+iface.Name, err)
	}
	res.Interface = iface

	// The address moves from the record to the interface.
	res.Address.AssignedObjectType = domain.AssignedVMInterface
	res.Address.AssignedObjectID = iface.ID
	if err := o.catalog.UpdateIPAddress(ctx, res.Address); err != nil {
		return domain.Persist("update", "ip address "+res.Address.Address, err)
	}
	return nil
}

// untaggedVLAN picks the VLAN an access interface carries: the VLAN of the
// address's prefix at the site, else the row's VLAN hint. An address outside
// every known prefix is bound without one.
func (o *Orchestrator) untaggedVLAN(ctx context.Context, r *Record, address string) (*string, error) {
	network, err := ipam.PrefixOf(address)
	if err != nil {
		return nil, err
	}
	prefix, err := o.catalog.GetPrefix(ctx, r.Site.ID, network)
	switch {
	case err == nil && prefix.VLANID != nil:
		return prefix.VLANID, nil
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("looking up prefix %s: %w", network, err)
	}
	if r.VLAN != nil {
		return &r.VLAN.ID, nil
	}
	return nil, nil
}

func (o *Orchestrator) registerServices(ctx context.Context, r *Record, res *Result) error {
	exporters := o.profile.Exporters(r.Platform.Name, r.Role.Name)
	if len(exporters) == 0 {
		return nil
	}
	promEnv, err := o.profile.MonitoringEnv(r.Site.Name, r.Env.Name)
	if err != nil {
		return err
	}

	for _, exp := range exporters {
		for _, tag := range exp.Tags {
			if _, err := o.catalog.GetTagByKey(ctx, tag); err != nil {
				return &domain.ResolutionError{Field: "prometheus_exporters." + exp.Name, Entity: "tag", Key: tag, Err: err}
			}
		}
		svc := &domain.Service{
			ID:               uuid.New().String(),
			VirtualMachineID: res.VirtualMachine.ID,
			Name:             exp.Name,
			Protocol:         exp.Protocol,
			Ports:            domain.IntList(exp.Ports),
			CustomFields: domain.CustomFields{
				"prom_location":     r.Site.Slug,
				"prom_env":          promEnv,
				"prom_class":        r.Role.Name,
				"prom_alert_type":   r.AlertType,
				"prom_metrics_path": exp.MetricsPath,
				"prom_ignore":       false,
			},
			IPAddressIDs: []string{res.Address.ID},
			Tags:         append([]string{}, exp.Tags...),
			CreatedAt:    time.Now(),
		}
		if err := o.catalog.CreateService(ctx, svc); err != nil {
			return domain.Persist("create", "service "+svc.Name, err)
		}
		res.Services = append(res.Services, svc)
	}
	return nil
}

// compensate deletes what res recorded as created, newest first. Tags and the
// prefix pool flag are shared with other records and stay.
func (o *Orchestrator) compensate(ctx context.Context, res *Result) {
	var errs []error
	undo := func(object, label string, del func() error) {
		err := del()
		recordCompensationMetric(object, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("deleting %s %s: %w", object, label, err))
			return
		}
		res.Compensated = append(res.Compensated, object+" "+label)
	}

	for i := len(res.Services) - 1; i >= 0; i-- {
		svc := res.Services[i]
		undo("service", svc.Name, func() error { return o.catalog.DeleteService(ctx, svc.ID) })
	}
	if res.Interface != nil {
		undo("interface", res.Interface.Name, func() error { return o.catalog.DeleteVMInterface(ctx, res.Interface.ID) })
	}
	if res.Address != nil {
		undo("ip address", res.Address.Address, func() error { return o.catalog.DeleteIPAddress(ctx, res.Address.ID) })
	}
	if res.VirtualMachine != nil {
		undo("virtual machine", res.VirtualMachine.Name, func() error { return o.catalog.DeleteVirtualMachine(ctx, res.VirtualMachine.ID) })
	}

	res.CompensationErr = errors.Join(errs...)
	if res.CompensationErr != nil {
		o.log.Error(res.CompensationErr, "compensation incomplete")
	}
}

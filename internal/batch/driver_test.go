package batch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcnelson/bulk-vm-provisioner/internal/catalog"
	"github.com/bcnelson/bulk-vm-provisioner/internal/config"
	"github.com/bcnelson/bulk-vm-provisioner/internal/domain"
	"github.com/bcnelson/bulk-vm-provisioner/internal/ipam"
	"github.com/bcnelson/bulk-vm-provisioner/internal/provision"
	"github.com/bcnelson/bulk-vm-provisioner/internal/storage/memory"
)

const fixtureSeed = `
tenants:
  - name: PatientSky Hosting
    slug: patientsky-hosting
sites:
  - name: odn1
clusters:
  - name: odn1-cl1
    site: odn1
roles:
  - name: "redirtp:v0.2.0"
platforms:
  - name: "base:v1.0.0-coreos"
  - name: "appliance:v2"
tags: [env_vlb, datazone_1, datazone_2, datazone_3, backup_general_1]
vrfs: [global]
vlans:
  - site: odn1
    vid: 61
    name: vlb
prefixes:
  - site: odn1
    prefix: 10.50.61.0/24
    vlan: 61
    vrf: global
    is_pool: true
`

const fixtureProfile = `
monitoring_envs:
  odn1:
    env_vlb: vlb-prod
defaults:
  prometheus_exporters:
    node_exporter: {ports: [9100], protocol: tcp, metrics_path: /metrics}
platforms:
  "base:v1.0.0-coreos":
    interfaces:
      nic0: {name: eth0, mtu: 1500, mode: Access}
`

var fixtureDefaults = domain.Defaults{
	Status:   "staged",
	Tenant:   "patientsky-hosting",
	Cluster:  "odn1-cl1",
	Datazone: domain.DatazoneRoundRobin,
	Env:      "vlb",
	Platform: "base:v1.0.0-coreos",
	Role:     "redirtp:v0.2.0",
	Backup:   "backup_general_1",
}

func newDriver(t *testing.T) (*Driver, *memory.Store) {
	t.Helper()
	store := memory.New()
	seed, err := catalog.ParseSeed([]byte(fixtureSeed))
	require.NoError(t, err)
	_, err = catalog.Apply(context.Background(), store, seed)
	require.NoError(t, err)

	profile, err := config.ParseProfile([]byte(fixtureProfile))
	require.NoError(t, err)

	d := NewDriver(store, profile, Options{
		Provision: provision.Options{
			Addresses:    ipam.Options{VRF: "global", PrivateDomain: "patientsky.zone", PublicDomain: "patientsky.dev"},
			BaselineTags: []string{"ansible", "zero_day"},
		},
	}, logr.Discard())
	return d, store
}

func TestRoundRobin(t *testing.T) {
	var rr RoundRobin
	got := []string{
		rr.Datazone("rr"),
		rr.Datazone("rr"),
		rr.Datazone("3"),
		rr.Datazone("rr"),
		rr.Datazone("rr"),
	}
	assert.Equal(t, []string{"1", "2", "3", "1", "2"}, got)
}

func TestInput(t *testing.T) {
	var rr RoundRobin
	defaults := fixtureDefaults
	defaults.BackupOffsite = "backup_offsite_1"

	in := Input(map[string]string{
		"tenant": "other",
		"env":    "",
		"vcpus":  "2",
	}, defaults, &rr)

	assert.Equal(t, "other", in.Tenant.Key())
	assert.Equal(t, "vlb", in.Env.Key())
	assert.Equal(t, "1", in.Datazone.Key())
	assert.Equal(t, "backup_offsite_1", in.BackupOffsite.Key())
	assert.Equal(t, "2", in.VCPUs)
	assert.Empty(t, in.Memory)

	in = Input(map[string]string{}, fixtureDefaults, &rr)
	assert.Equal(t, "2", in.Datazone.Key())
	assert.True(t, in.BackupOffsite.IsZero())
}

func TestRunEndToEnd(t *testing.T) {
	d, store := newDriver(t)
	ctx := context.Background()

	payload := "vcpus,memory,disk,ip_address,extra_tags\n" +
		`1,1024,10,10.50.61.10/24,"voip"` + "\n"

	res, err := d.Run(ctx, payload, fixtureDefaults)
	require.NoError(t, err)
	assert.Equal(t, payload, res.Payload)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 0, res.Failed)
	require.Len(t, res.Outcomes, 1)

	out := res.Outcomes[0]
	assert.True(t, out.Success)
	assert.Equal(t, 1, out.Line)
	assert.Equal(t, "odn1-vlb-redirtp-001", out.Hostname)
	assert.Equal(t,
		"Staged `odn1-vlb-redirtp-001` for `PatientSky Hosting`, `10.50.61.10/24`, in cluster `odn1-cl1`, env `vlb`, datazone `datazone_1`, backup `backup_general_1`",
		out.Message)

	vm, err := store.GetVirtualMachineByName(ctx, "odn1-vlb-redirtp-001")
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]string{"env_vlb", "datazone_1", "backup_general_1", "ansible", "zero_day", "voip"},
		vm.Tags)
}

func TestRunDatazoneRoundRobinAcrossRows(t *testing.T) {
	d, store := newDriver(t)
	ctx := context.Background()

	payload := strings.Join([]string{
		"vcpus,memory,disk,ip_address,datazone",
		"1,1024,10,10.50.61.10/24,",
		"1,1024,10,10.50.61.11/24,",
		"1,1024,10,10.50.61.12/24,3",
		"1,1024,10,10.50.61.13/24,",
	}, "\n")

	res, err := d.Run(ctx, payload, fixtureDefaults)
	require.NoError(t, err)
	require.Equal(t, 4, res.Succeeded)

	want := []string{"datazone_1", "datazone_2", "datazone_3", "datazone_1"}
	for i, out := range res.Outcomes {
		vm, err := store.GetVirtualMachineByName(ctx, out.Hostname)
		require.NoError(t, err)
		assert.Contains(t, vm.Tags, want[i], "row %d", i+1)
	}
	assert.Equal(t, "odn1-vlb-redirtp-004", res.Outcomes[3].Hostname)
}

func TestRunContinuesPastFailures(t *testing.T) {
	rowsTotal.Reset()
	d, store := newDriver(t)
	ctx := context.Background()

	payload := strings.Join([]string{
		"vcpus,memory,disk,ip_address,role,platform",
		"1,1024,10,10.50.61.10/24,,",
		"1,1024,10,10.50.61.11/24,nosuchrole,",
		"1,1024,10,10.60.0.10/24,,appliance:v2",
		"1,1024,10,10.50.61.10/24,,",
		"1,1024,10,10.50.61.12/24,,",
	}, "\n")

	res, err := d.Run(ctx, payload, fixtureDefaults)
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 5)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 3, res.Failed)

	tests := []struct {
		line    int
		success bool
		kind    string
		step    string
	}{
		{1, true, "", ""},
		{2, false, "resolution", ""},
		{3, false, "configuration_gap", string(provision.StepBindInterface)},
		{4, false, "duplicate_address", string(provision.StepAllocateAddress)},
		{5, true, "", ""},
	}
	for i, tt := range tests {
		out := res.Outcomes[i]
		assert.Equal(t, tt.line, out.Line)
		assert.Equal(t, tt.success, out.Success, "line %d: %s", tt.line, out.Message)
		assert.Equal(t, tt.kind, out.ErrorKind, "line %d", tt.line)
		assert.Equal(t, tt.step, out.Step, "line %d", tt.line)
	}

	failed := res.Outcomes[1]
	assert.True(t, strings.HasPrefix(failed.Message, "Error in CSV line 2, while creating VM"), failed.Message)
	assert.Contains(t, failed.Message, "1,1024,10,10.50.61.11/24,nosuchrole,")
	assert.Equal(t, "nosuchrole", failed.Row["role"])

	// Row 3 failed at the interface step; its record and address stay.
	_, err = store.GetVirtualMachineByName(ctx, res.Outcomes[2].Hostname)
	assert.NoError(t, err)
	found, err := store.FindIPAddresses(ctx, "10.60.0.10/24")
	require.NoError(t, err)
	assert.Len(t, found, 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(rowsTotal.WithLabelValues("success")))
	assert.Equal(t, 3.0, testutil.ToFloat64(rowsTotal.WithLabelValues("failure")))
}

func TestRunHeaderErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"empty column", "vcpus,,disk\n1,2,3"},
		{"repeated column", "vcpus,vcpus\n1,2"},
		{"unterminated quote", "\"vcpus,memory\n1,2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _ := newDriver(t)
			_, err := d.Run(context.Background(), tt.payload, fixtureDefaults)
			assert.True(t, errors.Is(err, domain.ErrInvalidInput), "got %v", err)
		})
	}
}

func TestRunEmptyPayload(t *testing.T) {
	d, _ := newDriver(t)
	res, err := d.Run(context.Background(), "", fixtureDefaults)
	require.NoError(t, err)
	assert.Empty(t, res.Outcomes)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	d, _ := newDriver(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := d.Run(ctx, "vcpus,memory,disk,ip_address\n1,1024,10,10.50.61.10/24", fixtureDefaults)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Empty(t, res.Outcomes)
}

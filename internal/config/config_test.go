package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcnelson/bulk-vm-provisioner/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "patientsky.zone", cfg.Provisioning.PrivateDomain)
	assert.Equal(t, "patientsky.dev", cfg.Provisioning.PublicDomain)
	assert.Equal(t, "global", cfg.Provisioning.VRF)
	assert.Equal(t, []string{"ansible", "zero_day"}, cfg.Provisioning.GetBaselineTags())
	assert.False(t, cfg.Provisioning.Compensate)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("PROVISION_BASELINE_TAGS", " ansible , zero_day,extra ")
	t.Setenv("PROVISION_COMPENSATE", "true")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"ansible", "zero_day", "extra"}, cfg.Provisioning.GetBaselineTags())
	assert.True(t, cfg.Provisioning.Compensate)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"unknown alert type", func(c *Config) { c.Provisioning.DefaultAlertType = "sometimes" }, true},
		{"empty vrf", func(c *Config) { c.Provisioning.VRF = "" }, true},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, true},
		{"oidc without issuer", func(c *Config) { c.OIDC.Enabled = true }, true},
		{"oidc complete", func(c *Config) {
			c.OIDC = OIDCConfig{
				Enabled:       true,
				IssuerURL:     "https://issuer.example.com",
				ClientID:      "client",
				ClientSecret:  "secret",
				RedirectURL:   "https://app.example.com/auth/callback",
				SessionSecret: "0123456789abcdef0123456789abcdef",
			}
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)
			tt.mutate(cfg)
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}

func TestDefaultProfileMonitoringTable(t *testing.T) {
	p, err := DefaultProfile()
	require.NoError(t, err)

	tests := []struct {
		site, env, want string
	}{
		{"cph1", "env_cmi", "cph-migration"},
		{"cph2", "env_prod", "cph2-prod"},
		{"sto1", "env_tst", "sto1"},
		{"osl1", "env_inf", "infrastructure"},
		{"osl2", "env_pno", "psno"},
		{"aeu1", "env_inf", "aeu1-inf"},
	}
	for _, tt := range tests {
		t.Run(tt.site+"/"+tt.env, func(t *testing.T) {
			got, err := p.MonitoringEnv(tt.site, tt.env)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMonitoringEnvGap(t *testing.T) {
	p, err := DefaultProfile()
	require.NoError(t, err)

	_, err = p.MonitoringEnv("odn1", "env_vlb")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConfigurationGap))

	var gap *domain.ConfigurationGapError
	require.True(t, errors.As(err, &gap))
	assert.Equal(t, domain.GapMonitoringEnv, gap.Kind)
	assert.Equal(t, "odn1", gap.Site)
	assert.Equal(t, "env_vlb", gap.Env)
}

func TestContextForOverrides(t *testing.T) {
	p, err := ParseProfile([]byte(`
defaults:
  interfaces:
    nic0: {name: eth0, mtu: 1500, mode: Access}
  prometheus_exporters:
    node_exporter: {ports: [9100], protocol: tcp, metrics_path: /metrics}
platforms:
  "base:v1.0.0-coreos":
    interfaces:
      nic0: {name: ens192, mtu: 9000, mode: Access}
roles:
  "redirtp:v0.2.0":
    prometheus_exporters:
      redis_exporter: {ports: [9121], protocol: tcp, metrics_path: /metrics, tags: [redis]}
      node_exporter: {ports: [9101], protocol: tcp, metrics_path: /node}
`))
	require.NoError(t, err)

	iface, err := p.PrimaryInterface("base:v1.0.0-coreos", "redirtp:v0.2.0")
	require.NoError(t, err)
	assert.Equal(t, InterfaceTemplate{Name: "ens192", MTU: 9000, Mode: "Access"}, iface)

	exporters := p.Exporters("base:v1.0.0-coreos", "redirtp:v0.2.0")
	require.Len(t, exporters, 2)
	assert.Equal(t, "node_exporter", exporters[0].Name)
	assert.Equal(t, []int{9101}, exporters[0].Ports)
	assert.Equal(t, "/node", exporters[0].MetricsPath)
	assert.Equal(t, "redis_exporter", exporters[1].Name)
	assert.Equal(t, []string{"redis"}, exporters[1].Tags)

	// Unknown platform and role fall back to defaults.
	iface, err = p.PrimaryInterface("other", "other")
	require.NoError(t, err)
	assert.Equal(t, "eth0", iface.Name)
}

func TestPrimaryInterfaceGap(t *testing.T) {
	p, err := ParseProfile([]byte(`monitoring_envs: {}`))
	require.NoError(t, err)

	_, err = p.PrimaryInterface("base", "web")
	assert.True(t, errors.Is(err, domain.ErrConfigurationGap))
}

func TestParseProfileRejectsInvalidTemplates(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty label", "monitoring_envs: {cph1: {env_dev: \"\"}}"},
		{"bad mode", "defaults: {interfaces: {nic0: {name: eth0, mode: trunk}}}"},
		{"missing interface name", "defaults: {interfaces: {nic0: {mtu: 1500}}}"},
		{"exporter without ports", "roles: {web: {prometheus_exporters: {x: {protocol: tcp}}}}"},
		{"exporter bad protocol", "roles: {web: {prometheus_exporters: {x: {ports: [1], protocol: icmp}}}}"},
		{"not yaml", "monitoring_envs: ["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseProfile([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestCheckSites(t *testing.T) {
	p, err := DefaultProfile()
	require.NoError(t, err)

	assert.NoError(t, p.CheckSites([]string{"cph1", "osl2"}))

	err = p.CheckSites([]string{"osl2", "odn1", "ber1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ber1, odn1")
}

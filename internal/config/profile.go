package config

import (
	_ "embed"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bcnelson/bulk-vm-provisioner/internal/domain"
)

// PrimaryInterfaceKey is the template key of the one interface every record gets.
const PrimaryInterfaceKey = "nic0"

//go:embed profile.yaml
var defaultProfile []byte

// Profile is the static provisioning configuration: the monitoring
// environment table and the per-platform/role config-context templates.
type Profile struct {
	MonitoringEnvs map[string]map[string]string `yaml:"monitoring_envs" json:"monitoring_envs"`
	Defaults       ConfigContext                `yaml:"defaults" json:"defaults"`
	Platforms      map[string]ConfigContext     `yaml:"platforms" json:"platforms"`
	Roles          map[string]ConfigContext     `yaml:"roles" json:"roles"`
}

// ConfigContext is the template applied to a virtual machine.
type ConfigContext struct {
	Interfaces          map[string]InterfaceTemplate `yaml:"interfaces" json:"interfaces"`
	PrometheusExporters map[string]ExporterTemplate  `yaml:"prometheus_exporters" json:"prometheus_exporters"`
}

// InterfaceTemplate describes an interface to create.
type InterfaceTemplate struct {
	Name string `yaml:"name" json:"name"`
	MTU  int    `yaml:"mtu" json:"mtu"`
	Mode string `yaml:"mode" json:"mode"`
}

// ExporterTemplate describes a monitoring service to register.
type ExporterTemplate struct {
	Ports       []int    `yaml:"ports" json:"ports"`
	Protocol    string   `yaml:"protocol" json:"protocol"`
	MetricsPath string   `yaml:"metrics_path" json:"metrics_path"`
	Tags        []string `yaml:"tags" json:"tags"`
}

// Exporter is a named exporter template.
type Exporter struct {
	Name string
	ExporterTemplate
}

// DefaultProfile returns the embedded profile.
func DefaultProfile() (*Profile, error) {
	return ParseProfile(defaultProfile)
}

// LoadProfile reads a profile from path, or the embedded profile when path is empty.
func LoadProfile(path string) (*Profile, error) {
	if path == "" {
		return DefaultProfile()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile: %w", err)
	}
	return ParseProfile(data)
}

// ParseProfile decodes and validates a YAML profile.
func ParseProfile(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile: %w", err)
	}
	return &p, nil
}

// Validate checks every template and label in the profile.
func (p *Profile) Validate() error {
	for site, envs := range p.MonitoringEnvs {
		for env, label := range envs {
			if label == "" {
				return fmt.Errorf("monitoring_envs.%s.%s: empty label", site, env)
			}
		}
	}
	if err := p.Defaults.validate("defaults"); err != nil {
		return err
	}
	for name, cc := range p.Platforms {
		if err := cc.validate("platforms." + name); err != nil {
			return err
		}
	}
	for name, cc := range p.Roles {
		if err := cc.validate("roles." + name); err != nil {
			return err
		}
	}
	return nil
}

func (c ConfigContext) validate(path string) error {
	for name, iface := range c.Interfaces {
		if iface.Name == "" {
			return fmt.Errorf("%s.interfaces.%s: name is required", path, name)
		}
		if iface.MTU < 0 {
			return fmt.Errorf("%s.interfaces.%s: mtu must not be negative", path, name)
		}
		if _, ok := domain.ParseInterfaceMode(iface.Mode); !ok {
			return fmt.Errorf("%s.interfaces.%s: unknown mode %q", path, name, iface.Mode)
		}
	}
	for name, exp := range c.PrometheusExporters {
		if len(exp.Ports) == 0 {
			return fmt.Errorf("%s.prometheus_exporters.%s: at least one port is required", path, name)
		}
		for _, port := range exp.Ports {
			if port < 1 || port > 65535 {
				return fmt.Errorf("%s.prometheus_exporters.%s: port %d out of range", path, name, port)
			}
		}
		switch exp.Protocol {
		case "tcp", "udp":
		default:
			return fmt.Errorf("%s.prometheus_exporters.%s: protocol must be tcp or udp", path, name)
		}
	}
	return nil
}

// CheckSites returns an error naming every site absent from the monitoring table.
func (p *Profile) CheckSites(sites []string) error {
	var missing []string
	for _, site := range sites {
		if _, ok := p.MonitoringEnvs[site]; !ok {
			missing = append(missing, site)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("sites missing from monitoring_envs: %s", strings.Join(missing, ", "))
	}
	return nil
}

// MonitoringEnv translates an environment tag name at a site into its monitoring label.
func (p *Profile) MonitoringEnv(site, envTag string) (string, error) {
	label, ok := p.MonitoringEnvs[site][envTag]
	if !ok {
		return "", &domain.ConfigurationGapError{Kind: domain.GapMonitoringEnv, Site: site, Env: envTag}
	}
	return label, nil
}

// ContextFor merges the defaults, platform and role templates.
func (p *Profile) ContextFor(platform, role string) ConfigContext {
	merged := ConfigContext{
		Interfaces:          map[string]InterfaceTemplate{},
		PrometheusExporters: map[string]ExporterTemplate{},
	}
	for _, cc := range []ConfigContext{p.Defaults, p.Platforms[platform], p.Roles[role]} {
		maps.Copy(merged.Interfaces, cc.Interfaces)
		maps.Copy(merged.PrometheusExporters, cc.PrometheusExporters)
	}
	return merged
}

// PrimaryInterface returns the nic0 template for a platform and role.
func (p *Profile) PrimaryInterface(platform, role string) (InterfaceTemplate, error) {
	iface, ok := p.ContextFor(platform, role).Interfaces[PrimaryInterfaceKey]
	if !ok {
		return InterfaceTemplate{}, &domain.ConfigurationGapError{
			Kind: domain.GapInterfaceTemplate, Platform: platform, Role: role,
		}
	}
	return iface, nil
}

// Exporters returns the exporter templates for a platform and role, sorted by name.
func (p *Profile) Exporters(platform, role string) []Exporter {
	templates := p.ContextFor(platform, role).PrometheusExporters
	out := make([]Exporter, 0, len(templates))
	for _, name := range slices.Sorted(maps.Keys(templates)) {
		out = append(out, Exporter{Name: name, ExporterTemplate: templates[name]})
	}
	return out
}

package validation

import (
	"errors"
	"testing"

	"github.com/bcnelson/bulk-vm-provisioner/internal/domain"
)

func TestValidateHostname(t *testing.T) {
	tests := []struct {
		name     string
		hostname string
		wantErr  bool
	}{
		{"generated name", "odn1-vlb-redirtp-001", false},
		{"single letter", "a", false},
		{"starts with number", "1host", false},
		{"empty", "", true},
		{"starts with hyphen", "-host", true},
		{"ends with hyphen", "host-", true},
		{"contains dot", "host.example", true},
		{"contains underscore", "host_1", true},
		{"too long", "a123456789012345678901234567890123456789012345678901234567890123", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHostname(tt.hostname)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateHostname(%q) error = %v, wantErr %v", tt.hostname, err, tt.wantErr)
			}
		})
	}
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		want    string
		wantErr bool
	}{
		{"ipv4 with length", "10.50.61.10/24", "10.50.61.10/24", false},
		{"ipv6 with length", "2001:db8::10/64", "2001:db8::10/64", false},
		{"missing length", "10.50.61.10", "", true},
		{"empty", "", "", true},
		{"garbage", "not-an-ip/24", "", true},
		{"length out of range", "10.0.0.1/33", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAddress(tt.addr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAddress(%q) error = %v, wantErr %v", tt.addr, err, tt.wantErr)
			}
			if !tt.wantErr && got.String() != tt.want {
				t.Errorf("ParseAddress(%q) = %s, want %s", tt.addr, got, tt.want)
			}
		})
	}
}

func TestParsePositiveInt(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    int
		wantMsg string
	}{
		{"valid", "1024", 1024, ""},
		{"surrounding space", " 2 ", 2, ""},
		{"empty", "", 0, "is required"},
		{"zero", "0", 0, "must be positive"},
		{"negative", "-4", 0, "must be positive"},
		{"not a number", "four", 0, "must be an integer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePositiveInt("memory", tt.value)
			if tt.wantMsg == "" {
				if err != nil || got != tt.want {
					t.Errorf("ParsePositiveInt(%q) = %d, %v; want %d", tt.value, got, err, tt.want)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("ParsePositiveInt(%q) error = %v, want ValidationError", tt.value, err)
			}
			if verr.Field != "memory" || verr.Message != tt.wantMsg {
				t.Errorf("ParsePositiveInt(%q) error = %+v, want message %q", tt.value, verr, tt.wantMsg)
			}
		})
	}
}

func TestValidateDatazone(t *testing.T) {
	tests := []struct {
		datazone string
		wantErr  bool
	}{
		{"rr", false},
		{"1", false},
		{"2", false},
		{"3", false},
		{"0", true},
		{"", true},
		{"RR", true},
	}

	for _, tt := range tests {
		t.Run(tt.datazone, func(t *testing.T) {
			err := ValidateDatazone(tt.datazone)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDatazone(%q) error = %v, wantErr %v", tt.datazone, err, tt.wantErr)
			}
		})
	}
}

func TestValidateTagName(t *testing.T) {
	tests := []struct {
		name    string
		tag     string
		wantErr bool
	}{
		{"simple", "voip", false},
		{"underscore", "cluster_id_voip_galera_001", false},
		{"env tag", "env_vlb", false},
		{"empty", "", true},
		{"blank", "   ", true},
		{"comma", "a,b", true},
		{"control character", "a\tb", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTagName(tt.tag)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTagName(%q) error = %v, wantErr %v", tt.tag, err, tt.wantErr)
			}
		})
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"redirtp:v0.2.0", "redirtp-v0-2-0"},
		{"base:v1.0.0-coreos", "base-v1-0-0-coreos"},
		{"PatientSky Hosting", "patientsky-hosting"},
		{"backup_general_1", "backup_general_1"},
		{"--edge--", "edge"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Slugify(tt.in)
			if got != tt.want {
				t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if err := ValidateSlug(got); err != nil {
				t.Errorf("Slugify(%q) produced invalid slug: %v", tt.in, err)
			}
		})
	}
}

func TestValidateDefaults(t *testing.T) {
	if err := ValidateDefaults(domain.Defaults{Status: "staged", Datazone: "rr", AlertType: "24-7-voip"}); err != nil {
		t.Errorf("ValidateDefaults() unexpected error = %v", err)
	}

	err := ValidateDefaults(domain.Defaults{Status: "running", Datazone: "x", AlertType: "never"})
	var errs ValidationErrors
	if !errors.As(err, &errs) {
		t.Fatalf("ValidateDefaults() error = %v, want ValidationErrors", err)
	}
	if len(errs) != 3 {
		t.Errorf("ValidateDefaults() returned %d errors, want 3", len(errs))
	}
}

// Package validation provides validation functions for provisioning input.
// Hostname rules follow RFC 1123 labels; addresses must carry a prefix length
// because the containing network is derived from it.
package validation

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"unicode"

	"github.com/bcnelson/bulk-vm-provisioner/internal/domain"
)

// isAlpha returns true if the byte is an ASCII letter.
func isAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// isNum returns true if the byte is an ASCII digit.
func isNum(b byte) bool {
	return b >= '0' && b <= '9'
}

// isAlphaNum returns true if the byte is an ASCII letter or digit.
func isAlphaNum(b byte) bool {
	return isAlpha(b) || isNum(b)
}

// ValidateHostname validates a virtual machine name.
// Hostnames are a single DNS label: at most 63 letters, numbers, or hyphens,
// starting and ending with a letter or number.
func ValidateHostname(name string) error {
	if name == "" {
		return fmt.Errorf("hostname must not be empty")
	}
	if len(name) > 63 {
		return fmt.Errorf("hostname must be at most 63 characters")
	}
	if !isAlphaNum(name[0]) || !isAlphaNum(name[len(name)-1]) {
		return fmt.Errorf("hostname must start and end with a letter or number")
	}
	for _, b := range []byte(name) {
		if !isAlphaNum(b) && b != '-' {
			return fmt.Errorf("hostnames can only contain letters, numbers, or hyphens")
		}
	}
	return nil
}

// ValidateAddress validates an interface address such as 10.50.61.10/24.
func ValidateAddress(addr string) error {
	_, err := ParseAddress(addr)
	return err
}

// ParseAddress parses an interface address, keeping the host bits.
func ParseAddress(addr string) (netip.Prefix, error) {
	if addr == "" {
		return netip.Prefix{}, fmt.Errorf("address must not be empty")
	}
	if !strings.Contains(addr, "/") {
		return netip.Prefix{}, fmt.Errorf("address %q must include a prefix length", addr)
	}
	p, err := netip.ParsePrefix(addr)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("address %q is not a valid CIDR address", addr)
	}
	return p, nil
}

// ParsePositiveInt parses a strictly positive integer field.
func ParsePositiveInt(field, value string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		if value == "" {
			return 0, NewValidationError(field, value, "is required")
		}
		return 0, NewValidationError(field, value, "must be an integer")
	}
	if n <= 0 {
		return 0, NewValidationError(field, value, "must be positive")
	}
	return n, nil
}

// ValidateStatus accepts an empty status or one of the VM statuses.
func ValidateStatus(status string) error {
	switch domain.Status(status) {
	case "", domain.StatusStaged, domain.StatusPlanned:
		return nil
	}
	return fmt.Errorf("status must be %q or %q", domain.StatusStaged, domain.StatusPlanned)
}

// ValidateAlertType accepts one of the on-call routing classes.
func ValidateAlertType(alertType string) error {
	if !domain.IsAlertType(alertType) {
		return fmt.Errorf("alert type must be one of %s", strings.Join(domain.AlertTypes, ", "))
	}
	return nil
}

// ValidateDatazone accepts the round-robin sentinel or a positive zone number.
func ValidateDatazone(datazone string) error {
	if datazone == domain.DatazoneRoundRobin {
		return nil
	}
	if n, err := strconv.Atoi(datazone); err != nil || n <= 0 {
		return fmt.Errorf("datazone must be %q or a positive number", domain.DatazoneRoundRobin)
	}
	return nil
}

// ValidateTagName validates a free-form tag name.
// Commas are rejected because tag lists are comma-separated.
func ValidateTagName(tag string) error {
	if strings.TrimSpace(tag) == "" {
		return fmt.Errorf("tag must not be empty")
	}
	if len(tag) > 100 {
		return fmt.Errorf("tag must be at most 100 characters")
	}
	for _, r := range tag {
		if r == ',' || !unicode.IsPrint(r) {
			return fmt.Errorf("tag %q contains an invalid character", tag)
		}
	}
	return nil
}

// ValidateSlug validates a URL-friendly identifier.
func ValidateSlug(slug string) error {
	if slug == "" {
		return fmt.Errorf("slug must not be empty")
	}
	for _, b := range []byte(slug) {
		if !(b >= 'a' && b <= 'z') && !isNum(b) && b != '-' && b != '_' {
			return fmt.Errorf("slugs can only contain lowercase letters, numbers, hyphens, or underscores")
		}
	}
	return nil
}

// Slugify derives a slug from a display name, e.g. "redirtp:v0.2.0" -> "redirtp-v0-2-0".
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// ValidateDefaults checks the batch-level defaults an operator submitted.
func ValidateDefaults(d domain.Defaults) error {
	var errs ValidationErrors
	if err := ValidateStatus(d.Status); err != nil {
		errs.Add("defaults.status", d.Status, err.Error())
	}
	if d.AlertType != "" {
		if err := ValidateAlertType(d.AlertType); err != nil {
			errs.Add("defaults.prom_alert_type", d.AlertType, err.Error())
		}
	}
	if d.Datazone != "" {
		if err := ValidateDatazone(d.Datazone); err != nil {
			errs.Add("defaults.datazone", d.Datazone, err.Error())
		}
	}
	if errs.HasErrors() {
		return errs
	}
	return nil
}

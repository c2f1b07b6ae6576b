package domain

import "strings"

// Status is the lifecycle status of a virtual machine.
type Status string

const (
	StatusStaged  Status = "staged"
	StatusPlanned Status = "planned"
)

// ParseStatus maps "staged" to StatusStaged and anything else to StatusPlanned.
func ParseStatus(s string) Status {
	if s == string(StatusStaged) {
		return StatusStaged
	}
	return StatusPlanned
}

// Label returns the capitalised status used in operator messages.
func (s Status) Label() string {
	switch s {
	case StatusStaged:
		return "Staged"
	case StatusPlanned:
		return "Planned"
	default:
		return string(s)
	}
}

// DefaultAlertType is used when neither the row nor the batch names an alert type.
const DefaultAlertType = "24-7-devops"

// AlertTypes lists the on-call routing classes accepted for monitoring entries.
var AlertTypes = []string{
	"24-7-devops",
	"37-5-devops",
	"24-7-voip",
	"37-5-voip",
}

// IsAlertType reports whether s is one of AlertTypes.
func IsAlertType(s string) bool {
	for _, t := range AlertTypes {
		if t == s {
			return true
		}
	}
	return false
}

// InterfaceMode is the 802.1Q mode of an interface.
type InterfaceMode string

const (
	InterfaceModeAccess    InterfaceMode = "access"
	InterfaceModeTagged    InterfaceMode = "tagged"
	InterfaceModeTaggedAll InterfaceMode = "tagged-all"
)

// ParseInterfaceMode accepts the mode names used in configuration templates,
// which are case-insensitive ("Access" and "access" are the same mode).
func ParseInterfaceMode(s string) (InterfaceMode, bool) {
	switch InterfaceMode(strings.ToLower(s)) {
	case InterfaceModeAccess:
		return InterfaceModeAccess, true
	case InterfaceModeTagged:
		return InterfaceModeTagged, true
	case InterfaceModeTaggedAll:
		return InterfaceModeTaggedAll, true
	case "":
		return "", true
	}
	return "", false
}

package model

import "fmt"

// TunnelMode is a global setting owned by the orchestration layer.
// Profiles do not carry it.
type TunnelMode string

const (
	ModeFullDevice    TunnelMode = "fullDevice"
	ModePerAppManaged TunnelMode = "perAppManaged"
)

// ParseTunnelMode accepts the two mode names exactly as persisted.
func ParseTunnelMode(s string) (TunnelMode, error) {
	switch TunnelMode(s) {
	case ModeFullDevice, ModePerAppManaged:
		return TunnelMode(s), nil
	default:
		return "", fmt.Errorf("unknown tunnel mode %q (want %s or %s)", s, ModeFullDevice, ModePerAppManaged)
	}
}

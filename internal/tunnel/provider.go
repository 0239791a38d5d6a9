package tunnel

import (
	"encoding/json"
	"errors"
	"fmt"

	"tunnelcore/internal/model"
	"tunnelcore/internal/xray"
)

// Keys of the provider configuration blob handed to the packet tunnel.
const (
	KeyProfileData = "profileData"
	KeyXrayJSON    = "xrayJSON"
	KeyTunnelMode  = "tunnelMode"
)

var ErrMissingProfile = errors.New("provider configuration has no profile")

// ProviderConfiguration is everything the tunnel provider needs to run, in a
// shape that survives both JSON and property list encoding.
type ProviderConfiguration map[string]interface{}

// RuntimeConfig is the provider-side view of a ProviderConfiguration.
type RuntimeConfig struct {
	Profile model.Profile
	Mode    model.TunnelMode
}

// MakeConfiguration bundles the profile, its engine document and the global
// mode. The profile must carry its real secret.
func MakeConfiguration(profile model.Profile, mode model.TunnelMode) (ProviderConfiguration, error) {
	profileData, err := json.Marshal(profile)
	if err != nil {
		return nil, fmt.Errorf("failed to encode profile: %w", err)
	}
	doc, err := xray.BuildConfig(profile)
	if err != nil {
		return nil, err
	}
	return ProviderConfiguration{
		KeyProfileData: string(profileData),
		KeyXrayJSON:    doc,
		KeyTunnelMode:  string(mode),
	}, nil
}

// DecodeRuntimeConfig reverses MakeConfiguration. An absent or unknown mode
// falls back to full device.
func DecodeRuntimeConfig(cfg ProviderConfiguration) (*RuntimeConfig, error) {
	raw, ok := cfg[KeyProfileData].(string)
	if !ok || raw == "" {
		return nil, ErrMissingProfile
	}

	var profile model.Profile
	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}

	mode := model.ModeFullDevice
	if s, ok := cfg[KeyTunnelMode].(string); ok {
		if parsed, err := model.ParseTunnelMode(s); err == nil {
			mode = parsed
		}
	}
	return &RuntimeConfig{Profile: profile, Mode: mode}, nil
}

package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"tunnelcore/internal/xray/parser"

	"github.com/google/uuid"
)

var ErrInvalidProfile = errors.New("invalid profile")

// DefaultDNSServers returns the resolvers a new profile starts with.
func DefaultDNSServers() []string {
	return []string{"1.1.1.1", "8.8.8.8"}
}

// Profile is a named endpoint plus client-side policy.
type Profile struct {
	ID              uuid.UUID       `json:"id"`
	Name            string          `json:"name"`
	Endpoint        parser.Endpoint `json:"endpoint"`
	DNSServers      []string        `json:"dnsServers"`
	PerAppBundleIDs []string        `json:"perAppBundleIDs"`
	OnDemandEnabled bool            `json:"onDemandEnabled"`
	BypassLAN       bool            `json:"bypassLAN"`
}

// NewProfile assigns a fresh id and the documented defaults.
func NewProfile(name string, endpoint parser.Endpoint) Profile {
	return Profile{
		ID:              uuid.New(),
		Name:            name,
		Endpoint:        endpoint,
		DNSServers:      DefaultDNSServers(),
		PerAppBundleIDs: []string{},
		BypassLAN:       true,
	}
}

// VPNUUID is the upper-cased id used to join MDM documents to this profile.
func (p *Profile) VPNUUID() string {
	return strings.ToUpper(p.ID.String())
}

// SetBundleIDs normalizes ids and stores them, rejecting the whole set if any
// entry is malformed.
func (p *Profile) SetBundleIDs(ids []string) error {
	normalized := NormalizeBundleIDs(ids)
	if err := ValidateBundleIDs(normalized); err != nil {
		return err
	}
	p.PerAppBundleIDs = normalized
	return nil
}

// Validate checks the invariants every consumer relies on.
func (p *Profile) Validate() error {
	if p.ID == uuid.Nil {
		return fmt.Errorf("%w: id is required", ErrInvalidProfile)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProfile)
	}
	if p.Endpoint.Host == "" {
		return fmt.Errorf("%w: endpoint host is required", ErrInvalidProfile)
	}
	if p.Endpoint.Port < 1 || p.Endpoint.Port > 65535 {
		return fmt.Errorf("%w: endpoint port %d out of range", ErrInvalidProfile, p.Endpoint.Port)
	}
	return ValidateBundleIDs(p.PerAppBundleIDs)
}

// UnmarshalJSON fills defaults for fields older records may lack.
func (p *Profile) UnmarshalJSON(data []byte) error {
	type alias Profile
	var raw struct {
		alias
		DNSServers      *[]string `json:"dnsServers"`
		PerAppBundleIDs *[]string `json:"perAppBundleIDs"`
		OnDemandEnabled *bool     `json:"onDemandEnabled"`
		BypassLAN       *bool     `json:"bypassLAN"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*p = Profile(raw.alias)
	p.DNSServers = DefaultDNSServers()
	if raw.DNSServers != nil {
		p.DNSServers = *raw.DNSServers
	}
	p.PerAppBundleIDs = []string{}
	if raw.PerAppBundleIDs != nil {
		p.PerAppBundleIDs = *raw.PerAppBundleIDs
	}
	if raw.OnDemandEnabled != nil {
		p.OnDemandEnabled = *raw.OnDemandEnabled
	}
	p.BypassLAN = true
	if raw.BypassLAN != nil {
		p.BypassLAN = *raw.BypassLAN
	}
	return nil
}

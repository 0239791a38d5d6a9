// Package app composes the core packages into the operations the CLI exposes
// and enforces the checks that must hold before any side effect.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tunnelcore/internal/autobind"
	"tunnelcore/internal/config"
	"tunnelcore/internal/logger"
	"tunnelcore/internal/mdm"
	"tunnelcore/internal/model"
	"tunnelcore/internal/store"
	"tunnelcore/internal/tunnel"
	"tunnelcore/internal/xray"
	"tunnelcore/internal/xray/parser"

	"github.com/google/uuid"
)

var (
	ErrExportRequiresPerApp  = errors.New("MDM export is only available in perAppManaged mode")
	ErrNoBundleIDs           = errors.New("at least one app bundle id is required for MDM export")
	ErrSecretMissing         = errors.New("profile secret is missing, re-import the vmess link and save again")
	ErrPerAppConnect         = errors.New("perAppManaged mode cannot start a device-wide tunnel: install the per-app VPN profile through MDM and bind apps by VPNUUID")
	ErrAutoBindNotConfigured = errors.New("autobind.endpoint is not configured")
	ErrNoLink                = errors.New("no vmess link found in input")
)

// ProfileRepository is the profile persistence the service needs.
type ProfileRepository interface {
	All(ctx context.Context) ([]model.Profile, error)
	Get(ctx context.Context, id uuid.UUID) (model.Profile, error)
	Upsert(ctx context.Context, p model.Profile) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// TunnelController drives whatever runs the tunnel: the OS VPN manager on a
// device or the in-process engine here.
type TunnelController interface {
	Install(ctx context.Context, profile model.Profile, mode model.TunnelMode) error
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Status(ctx context.Context) (tunnel.Status, error)
}

type Service struct {
	cfg         *config.Config
	profiles    ProfileRepository
	controller  TunnelController
	diagnostics *tunnel.Diagnostics
	builder     *mdm.Builder
	binder      *autobind.Client
	now         func() time.Time
}

type Deps struct {
	Profiles    ProfileRepository
	Controller  TunnelController
	Diagnostics *tunnel.Diagnostics
	// Binder is optional; nil disables Bind.
	Binder *autobind.Client
}

func New(cfg *config.Config, deps Deps) *Service {
	return &Service{
		cfg:         cfg,
		profiles:    deps.Profiles,
		controller:  deps.Controller,
		diagnostics: deps.Diagnostics,
		builder: mdm.NewBuilder(mdm.Options{
			ProviderBundleID: cfg.Tunnel.ProviderBundleID,
			IdentifierPrefix: cfg.MDM.IdentifierPrefix,
			Organization:     cfg.MDM.Organization,
		}),
		binder: deps.Binder,
		now:    time.Now,
	}
}

// Mode is the global tunnel mode.
func (s *Service) Mode() model.TunnelMode {
	return s.cfg.Tunnel.Mode
}

// ProfileInput is what a user supplies to create or edit a profile.
type ProfileInput struct {
	// ID selects the profile to overwrite; nil creates a new one.
	ID        *uuid.UUID
	Link      string
	Name      string
	DNSCSV    string
	AppsCSV   string
	OnDemand  bool
	BypassLAN bool
}

// AssembleProfile validates input and builds a profile without saving it.
// The link may be embedded in surrounding text.
func (s *Service) AssembleProfile(in ProfileInput) (model.Profile, error) {
	link, ok := xray.ExtractVMessLink(in.Link)
	if !ok {
		link = strings.TrimSpace(in.Link)
	}
	if link == "" {
		return model.Profile{}, ErrNoLink
	}

	endpoint, err := parser.Parse(link)
	if err != nil {
		return model.Profile{}, err
	}

	bundleIDs, err := model.ParseBundleIDs(in.AppsCSV)
	if err != nil {
		return model.Profile{}, err
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = parser.Value(endpoint.Remark)
	}
	if name == "" {
		name = "vmess-" + endpoint.Host
	}

	profile := model.NewProfile(name, *endpoint)
	if in.ID != nil {
		profile.ID = *in.ID
	}
	if dns := model.ParseCSV(in.DNSCSV); len(dns) > 0 {
		profile.DNSServers = dns
	} else {
		profile.DNSServers = append([]string(nil), s.cfg.Tunnel.DefaultDNS...)
	}
	profile.PerAppBundleIDs = bundleIDs
	profile.OnDemandEnabled = in.OnDemand
	profile.BypassLAN = in.BypassLAN
	return profile, nil
}

func (s *Service) SaveProfile(ctx context.Context, in ProfileInput) (model.Profile, error) {
	profile, err := s.AssembleProfile(in)
	if err != nil {
		return model.Profile{}, err
	}
	if err := s.profiles.Upsert(ctx, profile); err != nil {
		return model.Profile{}, err
	}
	logger.Log.Infof("Saved profile %q (%s) for %s:%d, user id %s",
		profile.Name, profile.ID, profile.Endpoint.Host, profile.Endpoint.Port, profile.Endpoint.RedactedID())
	return profile, nil
}

func (s *Service) Profiles(ctx context.Context) ([]model.Profile, error) {
	return s.profiles.All(ctx)
}

func (s *Service) DeleteProfile(ctx context.Context, id uuid.UUID) error {
	return s.profiles.Delete(ctx, id)
}

// ResolveProfile accepts a saved profile id, or a link which becomes an
// unsaved profile with default settings.
func (s *Service) ResolveProfile(ctx context.Context, ref string) (model.Profile, error) {
	if id, err := uuid.Parse(strings.TrimSpace(ref)); err == nil {
		return s.profiles.Get(ctx, id)
	}
	return s.AssembleProfile(ProfileInput{Link: ref, BypassLAN: true})
}

// EngineConfig returns the engine document for profile. A redacted profile
// is refused since the document would carry the placeholder as user id.
func (s *Service) EngineConfig(profile model.Profile) (string, error) {
	if store.IsRedacted(profile) {
		return "", ErrSecretMissing
	}
	return xray.BuildConfig(profile)
}

// Export builds the MDM documents for a saved profile.
func (s *Service) Export(ctx context.Context, id uuid.UUID) (*mdm.ExportBundle, model.Profile, error) {
	if s.Mode() != model.ModePerAppManaged {
		return nil, model.Profile{}, ErrExportRequiresPerApp
	}
	profile, err := s.profiles.Get(ctx, id)
	if err != nil {
		return nil, model.Profile{}, err
	}
	if len(profile.PerAppBundleIDs) == 0 {
		return nil, profile, ErrNoBundleIDs
	}
	if store.IsRedacted(profile) {
		return nil, profile, ErrSecretMissing
	}

	bundle, err := s.builder.Build(profile, s.Mode())
	if err != nil {
		return nil, profile, err
	}
	logger.Log.Infof("Exported per-app VPN %s for %d app(s)", bundle.VPNUUID, len(profile.PerAppBundleIDs))
	return bundle, profile, nil
}

// Bind exports the profile and posts it to the auto-bind endpoint.
func (s *Service) Bind(ctx context.Context, id uuid.UUID) (*autobind.Response, error) {
	if s.binder == nil {
		return nil, ErrAutoBindNotConfigured
	}
	bundle, profile, err := s.Export(ctx, id)
	if err != nil {
		return nil, err
	}
	req := autobind.NewRequest(profile, bundle, s.cfg.Tunnel.ProviderBundleID, s.cfg.AutoBind.DeviceIdentifier, s.now())
	resp, err := s.binder.Bind(ctx, req)
	if err != nil {
		return resp, err
	}
	logger.Log.Infof("Auto-bind accepted for %s (request %s)", bundle.VPNUUID, resp.ID())
	return resp, nil
}

// Connect installs profile into the controller and starts the tunnel.
func (s *Service) Connect(ctx context.Context, profile model.Profile) error {
	if store.IsRedacted(profile) {
		return ErrSecretMissing
	}
	if s.Mode() == model.ModePerAppManaged {
		return ErrPerAppConnect
	}
	if err := s.controller.Install(ctx, profile, s.Mode()); err != nil {
		return fmt.Errorf("failed to install tunnel configuration: %w", err)
	}
	return s.controller.Connect(ctx)
}

func (s *Service) Disconnect(ctx context.Context) error {
	return s.controller.Disconnect(ctx)
}

type StatusReport struct {
	Mode      model.TunnelMode
	Status    tunnel.Status
	LastError string
}

// Status reports the tunnel state and the last start error if it is recent.
func (s *Service) Status(ctx context.Context) (StatusReport, error) {
	report := StatusReport{Mode: s.Mode()}
	st, err := s.controller.Status(ctx)
	if err != nil {
		return report, err
	}
	report.Status = st
	if s.diagnostics != nil && st != tunnel.StatusConnected {
		msg, ok, err := s.diagnostics.LastStartError(ctx)
		if err != nil {
			logger.Log.Warnf("Failed to read diagnostics: %v", err)
		} else if ok {
			report.LastError = msg
		}
	}
	return report, nil
}

// Package mdm derives the documents a device management system needs to
// install a per-app VPN and bind applications to it.
package mdm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"tunnelcore/internal/model"
	"tunnelcore/internal/tunnel"

	"github.com/google/uuid"
	"howett.net/plist"
)

const (
	PayloadTypeAppLayerVPN   = "com.apple.vpn.managed.applayer"
	PayloadTypeConfiguration = "Configuration"

	RequestTypeSettings       = "Settings"
	RequestTypeInstallProfile = "InstallProfile"

	settingsItemApplicationAttributes = "ApplicationAttributes"
	providerTypePacketTunnel          = "packet-tunnel"
)

var ErrBuildFailed = errors.New("mdm payload build failed")

// ExportBundle holds the four documents of one export. VPNUUID joins them.
type ExportBundle struct {
	VPNUUID                          string
	MobileConfigXML                  []byte
	SettingsCommandJSON              []byte
	SettingsDeviceCommandPlist       []byte
	InstallProfileDeviceCommandPlist []byte
}

type Options struct {
	// ProviderBundleID identifies the packet tunnel provider extension.
	ProviderBundleID string
	IdentifierPrefix string
	Organization     string
}

type Builder struct {
	opts    Options
	newUUID func() (uuid.UUID, error)
}

func NewBuilder(opts Options) *Builder {
	return &Builder{opts: opts, newUUID: uuid.NewRandom}
}

// Property list documents. Fields are declared in key order.

type vpnSettings struct {
	OnDemandEnabled          int    `plist:"OnDemandEnabled,omitempty"`
	ProviderBundleIdentifier string `plist:"ProviderBundleIdentifier"`
	ProviderType             string `plist:"ProviderType"`
	RemoteAddress            string `plist:"RemoteAddress"`
}

type vpnPayload struct {
	PayloadDisplayName string                       `plist:"PayloadDisplayName"`
	PayloadIdentifier  string                       `plist:"PayloadIdentifier"`
	PayloadType        string                       `plist:"PayloadType"`
	PayloadUUID        string                       `plist:"PayloadUUID"`
	PayloadVersion     int                          `plist:"PayloadVersion"`
	UserDefinedName    string                       `plist:"UserDefinedName"`
	VPN                vpnSettings                  `plist:"VPN"`
	VPNSubType         string                       `plist:"VPNSubType"`
	VPNType            string                       `plist:"VPNType"`
	VPNUUID            string                       `plist:"VPNUUID"`
	VendorConfig       tunnel.ProviderConfiguration `plist:"VendorConfig"`
}

type configurationProfile struct {
	PayloadContent      []vpnPayload `plist:"PayloadContent"`
	PayloadDisplayName  string       `plist:"PayloadDisplayName"`
	PayloadIdentifier   string       `plist:"PayloadIdentifier"`
	PayloadOrganization string       `plist:"PayloadOrganization,omitempty"`
	PayloadType         string       `plist:"PayloadType"`
	PayloadUUID         string       `plist:"PayloadUUID"`
	PayloadVersion      int          `plist:"PayloadVersion"`
}

type applicationAttributes struct {
	VPNUUID string `json:"VPNUUID" plist:"VPNUUID"`
}

type settingsItem struct {
	Attributes applicationAttributes `json:"Attributes" plist:"Attributes"`
	Identifier string                `json:"Identifier" plist:"Identifier"`
	Item       string                `json:"Item" plist:"Item"`
}

type settingsCommand struct {
	RequestType string         `json:"RequestType" plist:"RequestType"`
	Settings    []settingsItem `json:"Settings" plist:"Settings"`
}

type installProfileCommand struct {
	Payload     []byte `plist:"Payload"`
	RequestType string `plist:"RequestType"`
}

type deviceCommand struct {
	Command     interface{} `plist:"Command"`
	CommandUUID string      `plist:"CommandUUID"`
}

// Build produces the export for profile under mode. The caller has already
// checked that profile.PerAppBundleIDs is non-empty. Any failure aborts the
// whole export.
func (b *Builder) Build(profile model.Profile, mode model.TunnelMode) (*ExportBundle, error) {
	payloadUUID, err := b.freshUUID()
	if err != nil {
		return nil, err
	}
	rootUUID, err := b.freshUUID()
	if err != nil {
		return nil, err
	}
	vpnUUID := profile.VPNUUID()

	vendorConfig, err := tunnel.MakeConfiguration(profile, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuildFailed, err)
	}

	vpn := vpnPayload{
		PayloadDisplayName: fmt.Sprintf("Per-App VPN (%s)", profile.Name),
		PayloadIdentifier:  fmt.Sprintf("%s.vpn.%s", b.opts.IdentifierPrefix, payloadUUID),
		PayloadType:        PayloadTypeAppLayerVPN,
		PayloadUUID:        vpnUUID,
		PayloadVersion:     1,
		UserDefinedName:    profile.Name,
		VPN: vpnSettings{
			ProviderBundleIdentifier: b.opts.ProviderBundleID,
			ProviderType:             providerTypePacketTunnel,
			RemoteAddress:            profile.Endpoint.Host,
		},
		VPNSubType:   b.opts.ProviderBundleID,
		VPNType:      "VPN",
		VPNUUID:      vpnUUID,
		VendorConfig: vendorConfig,
	}
	if profile.OnDemandEnabled {
		vpn.VPN.OnDemandEnabled = 1
	}

	root := configurationProfile{
		PayloadContent:      []vpnPayload{vpn},
		PayloadDisplayName:  strings.TrimSpace(b.opts.Organization + " Per-App VPN"),
		PayloadIdentifier:   fmt.Sprintf("%s.profile.%s", b.opts.IdentifierPrefix, payloadUUID),
		PayloadOrganization: b.opts.Organization,
		PayloadType:         PayloadTypeConfiguration,
		PayloadUUID:         rootUUID,
		PayloadVersion:      1,
	}

	mobileConfig, err := plist.MarshalIndent(root, plist.XMLFormat, "\t")
	if err != nil {
		return nil, fmt.Errorf("%w: configuration profile: %v", ErrBuildFailed, err)
	}

	items := make([]settingsItem, 0, len(profile.PerAppBundleIDs))
	for _, id := range profile.PerAppBundleIDs {
		items = append(items, settingsItem{
			Attributes: applicationAttributes{VPNUUID: vpnUUID},
			Identifier: id,
			Item:       settingsItemApplicationAttributes,
		})
	}
	settings := settingsCommand{RequestType: RequestTypeSettings, Settings: items}

	settingsJSON, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: settings command: %v", ErrBuildFailed, err)
	}

	settingsPlist, err := plist.MarshalIndent(deviceCommand{
		Command:     settings,
		CommandUUID: fmt.Sprintf("%s.settings.%s", b.opts.IdentifierPrefix, payloadUUID),
	}, plist.XMLFormat, "\t")
	if err != nil {
		return nil, fmt.Errorf("%w: settings device command: %v", ErrBuildFailed, err)
	}

	installPlist, err := plist.MarshalIndent(deviceCommand{
		Command: installProfileCommand{
			Payload:     mobileConfig,
			RequestType: RequestTypeInstallProfile,
		},
		CommandUUID: fmt.Sprintf("%s.installprofile.%s", b.opts.IdentifierPrefix, payloadUUID),
	}, plist.XMLFormat, "\t")
	if err != nil {
		return nil, fmt.Errorf("%w: install profile device command: %v", ErrBuildFailed, err)
	}

	return &ExportBundle{
		VPNUUID:                          vpnUUID,
		MobileConfigXML:                  mobileConfig,
		SettingsCommandJSON:              settingsJSON,
		SettingsDeviceCommandPlist:       settingsPlist,
		InstallProfileDeviceCommandPlist: installPlist,
	}, nil
}

func (b *Builder) freshUUID() (string, error) {
	id, err := b.newUUID()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBuildFailed, err)
	}
	return strings.ToUpper(id.String()), nil
}

// Package autobind hands an MDM export to a remote API that performs the
// app binding on the management system's side.
package autobind

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tunnelcore/internal/mdm"
	"tunnelcore/internal/model"
)

const (
	ActionBindPerAppVPN = "bindPerAppVPN"

	DefaultTimeout = 15 * time.Second

	maxErrorBody = 4 << 10
)

var (
	ErrInvalidEndpoint = errors.New("auto-bind endpoint must be an http or https URL")
	ErrMissingDevice   = errors.New("device identifier is required")
)

type TransportKind string

const (
	KindNetwork TransportKind = "network"
	KindTimeout TransportKind = "timeout"
	KindStatus  TransportKind = "status"
	KindDecode  TransportKind = "decode"
)

// TransportError means the request did not produce a usable answer.
type TransportError struct {
	Kind       TransportKind
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	switch e.Kind {
	case KindStatus:
		if e.Body != "" {
			return fmt.Sprintf("auto-bind server returned HTTP %d: %s", e.StatusCode, e.Body)
		}
		return fmt.Sprintf("auto-bind server returned HTTP %d", e.StatusCode)
	case KindTimeout:
		return "auto-bind request timed out"
	case KindDecode:
		return fmt.Sprintf("auto-bind response is not valid JSON: %v", e.Err)
	default:
		return fmt.Sprintf("auto-bind request failed: %v", e.Err)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// RejectedError means the server understood the request and declined it.
type RejectedError struct {
	Message   string
	RequestID string
}

func (e *RejectedError) Error() string {
	msg := "auto-bind request rejected"
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.RequestID != "" {
		msg += " (request " + e.RequestID + ")"
	}
	return msg
}

// Request is the JSON body posted to the auto-bind endpoint.
type Request struct {
	Action                           string   `json:"action"`
	ProfileName                      string   `json:"profileName"`
	VPNUUID                          string   `json:"vpnUUID"`
	TunnelBundleID                   string   `json:"tunnelBundleID"`
	DeviceIdentifier                 string   `json:"deviceIdentifier"`
	BundleIDs                        []string `json:"bundleIDs"`
	MobileConfigXML                  string   `json:"mobileConfigXML"`
	SettingsCommandJSON              string   `json:"settingsCommandJSON"`
	InstallProfileDeviceCommandPlist string   `json:"installProfileDeviceCommandPlist"`
	SettingsDeviceCommandPlist       string   `json:"settingsDeviceCommandPlist"`
	RequestedAt                      string   `json:"requestedAt"`
}

// NewRequest packages an export for profile.
func NewRequest(profile model.Profile, export *mdm.ExportBundle, tunnelBundleID, deviceIdentifier string, now time.Time) Request {
	bundleIDs := append([]string{}, profile.PerAppBundleIDs...)
	return Request{
		Action:                           ActionBindPerAppVPN,
		ProfileName:                      profile.Name,
		VPNUUID:                          export.VPNUUID,
		TunnelBundleID:                   tunnelBundleID,
		DeviceIdentifier:                 deviceIdentifier,
		BundleIDs:                        bundleIDs,
		MobileConfigXML:                  string(export.MobileConfigXML),
		SettingsCommandJSON:              string(export.SettingsCommandJSON),
		InstallProfileDeviceCommandPlist: string(export.InstallProfileDeviceCommandPlist),
		SettingsDeviceCommandPlist:       string(export.SettingsDeviceCommandPlist),
		RequestedAt:                      now.UTC().Format(time.RFC3339),
	}
}

// Response is the server's answer. Both requestID spellings are accepted.
type Response struct {
	Accepted  *bool  `json:"accepted,omitempty"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"requestID,omitempty"`
	RequestId string `json:"requestId,omitempty"`
}

// ID returns whichever request id spelling the server used.
func (r *Response) ID() string {
	if r.RequestID != "" {
		return r.RequestID
	}
	return r.RequestId
}

type Config struct {
	Endpoint   string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New returns a client with defaults applied.
func New(cfg Config) *Client {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{cfg: cfg, httpClient: client}
}

func validateEndpoint(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ErrInvalidEndpoint
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return nil
	default:
		return ErrInvalidEndpoint
	}
}

// Bind posts req and interprets the answer. Validation failures return before
// any network traffic. An explicit accepted:false is a RejectedError; every
// other failure is a TransportError.
func (c *Client) Bind(ctx context.Context, req Request) (*Response, error) {
	if err := validateEndpoint(c.cfg.Endpoint); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.DeviceIdentifier) == "" {
		return nil, ErrMissingDevice
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal auto-bind request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSpace(c.cfg.Endpoint), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build auto-bind request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.cfg.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := strings.TrimSpace(string(data))
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, &TransportError{Kind: KindStatus, StatusCode: resp.StatusCode, Body: snippet}
	}

	var parsed Response
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &parsed); err != nil {
			return nil, &TransportError{Kind: KindDecode, StatusCode: resp.StatusCode, Err: err}
		}
	}
	if parsed.Accepted != nil && !*parsed.Accepted {
		return &parsed, &RejectedError{Message: parsed.Message, RequestID: parsed.ID()}
	}
	return &parsed, nil
}

func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TransportError{Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TransportError{Kind: KindTimeout, Err: err}
	}
	return &TransportError{Kind: KindNetwork, Err: err}
}

package tunnel

import (
	"context"
	"errors"
	"io"
	"sync"

	"tunnelcore/internal/logger"
	"tunnelcore/internal/model"
	"tunnelcore/internal/xray"
)

const (
	DomainProviderConfig = "tunnelcore.providerConfig"
	DomainEngine         = "tunnelcore.engine"
)

var ErrNotInstalled = errors.New("no tunnel configuration installed")

type Status int

const (
	StatusInvalid Status = iota
	StatusDisconnected
	StatusConnecting
	StatusConnected
	StatusDisconnecting
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusDisconnecting:
		return "disconnecting"
	default:
		return "invalid"
	}
}

// startFunc runs an engine document and returns a handle that stops it.
type startFunc func(doc string) (io.Closer, error)

func startEngine(doc string) (io.Closer, error) {
	instance, err := xray.Start(doc)
	if err != nil {
		return nil, err
	}
	return instance, nil
}

// LocalController runs the engine in this process. It plays the role the OS
// VPN manager plays on a device: install stores a provider configuration,
// connect decodes it the way the provider would and starts the engine.
type LocalController struct {
	mu       sync.Mutex
	diag     *Diagnostics
	start    startFunc
	config   ProviderConfiguration
	instance io.Closer
	status   Status
}

func NewLocalController(diag *Diagnostics) *LocalController {
	return &LocalController{diag: diag, start: startEngine}
}

func (c *LocalController) Install(ctx context.Context, profile model.Profile, mode model.TunnelMode) error {
	cfg, err := MakeConfiguration(profile, mode)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.config = cfg
	if c.status == StatusInvalid {
		c.status = StatusDisconnected
	}
	logger.Log.Debugf("Installed tunnel configuration for %s (%s)", profile.Name, mode)
	return nil
}

func (c *LocalController) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.config == nil {
		return ErrNotInstalled
	}
	if c.status == StatusConnected {
		return nil
	}
	c.status = StatusConnecting

	err := c.startLocked()
	if err != nil {
		c.status = StatusDisconnected
		if c.diag != nil {
			if dErr := c.diag.RecordStartError(ctx, err); dErr != nil {
				logger.Log.Warnf("Failed to record start error: %v", dErr)
			}
		}
		return err
	}

	c.status = StatusConnected
	if c.diag != nil {
		if dErr := c.diag.Clear(ctx); dErr != nil {
			logger.Log.Warnf("Failed to clear start error: %v", dErr)
		}
	}
	return nil
}

func (c *LocalController) startLocked() error {
	rt, err := DecodeRuntimeConfig(c.config)
	if err != nil {
		return &StartError{Domain: DomainProviderConfig, Code: 1, Err: err}
	}

	doc, err := xray.BuildConfig(rt.Profile)
	if err != nil {
		return &StartError{Domain: DomainEngine, Code: 1, Err: err}
	}

	instance, err := c.start(doc)
	if err != nil {
		return &StartError{Domain: DomainEngine, Code: 2, Err: err}
	}
	c.instance = instance
	logger.Log.Infof("Engine started for %s:%d, SOCKS on %s:%d",
		rt.Profile.Endpoint.Host, rt.Profile.Endpoint.Port, xray.InboundHost, xray.InboundPort)
	return nil
}

func (c *LocalController) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.instance == nil {
		if c.config != nil {
			c.status = StatusDisconnected
		}
		return nil
	}

	c.status = StatusDisconnecting
	err := c.instance.Close()
	c.instance = nil
	c.status = StatusDisconnected
	return err
}

func (c *LocalController) Status(ctx context.Context) (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status, nil
}

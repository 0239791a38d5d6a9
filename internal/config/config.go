package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"tunnelcore/internal/model"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Secrets  SecretsConfig  `yaml:"secrets"`
	Tunnel   TunnelConfig   `yaml:"tunnel"`
	MDM      MDMConfig      `yaml:"mdm"`
	AutoBind AutoBindConfig `yaml:"autobind"`
	Probe    ProbeConfig    `yaml:"probe"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type SecretsConfig struct {
	Backend       string `yaml:"backend"` // keyring, file, memory
	Service       string `yaml:"service"`
	FilePath      string `yaml:"file_path"`
	PassphraseEnv string `yaml:"passphrase_env"`
}

type TunnelConfig struct {
	// Mode is global: it decides whether the app runs the tunnel itself or
	// hands per-app routing to a management system.
	Mode             model.TunnelMode `yaml:"mode"`
	ProviderBundleID string           `yaml:"provider_bundle_id"`
	DefaultDNS       []string         `yaml:"default_dns"`
}

type MDMConfig struct {
	IdentifierPrefix string `yaml:"identifier_prefix"`
	Organization     string `yaml:"organization"`
}

type AutoBindConfig struct {
	Endpoint         string        `yaml:"endpoint"`
	DeviceIdentifier string        `yaml:"device_identifier"`
	Timeout          time.Duration `yaml:"timeout"`
	TokenEnv         string        `yaml:"token_env"`
}

type ProbeConfig struct {
	Timeout          time.Duration `yaml:"timeout"`
	Workers          int           `yaml:"workers"`
	GeoIPASNPath     string        `yaml:"geoip_asn_path"`
	GeoIPCountryPath string        `yaml:"geoip_country_path"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var cfg Config
	cfg.Database.Path = "tunnelcore.db"
	cfg.Secrets.Backend = "keyring"
	cfg.Secrets.Service = "com.tunnelcore.vmess"
	cfg.Secrets.FilePath = "secrets.vault"
	cfg.Secrets.PassphraseEnv = "TUNNELCORE_VAULT_KEY"
	cfg.Tunnel.Mode = model.ModeFullDevice
	cfg.Tunnel.ProviderBundleID = "com.tunnelcore.PacketTunnel"
	cfg.Tunnel.DefaultDNS = model.DefaultDNSServers()
	cfg.MDM.IdentifierPrefix = "com.tunnelcore"
	cfg.MDM.Organization = "tunnelcore"
	cfg.AutoBind.Timeout = 15 * time.Second
	cfg.Probe.Timeout = 4 * time.Second
	cfg.Probe.Workers = 8
	return &cfg
}

// Load reads the YAML file at path on top of Default. A missing file is not
// an error; the CLI works with defaults alone.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = "config.yaml"
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks values that have no sensible fallback.
func (c *Config) Validate() error {
	if _, err := model.ParseTunnelMode(string(c.Tunnel.Mode)); err != nil {
		return err
	}
	switch c.Secrets.Backend {
	case "keyring", "file", "memory":
	default:
		return fmt.Errorf("unknown secrets backend %q", c.Secrets.Backend)
	}
	if c.AutoBind.Timeout <= 0 {
		return fmt.Errorf("autobind.timeout must be positive, got %s", c.AutoBind.Timeout)
	}
	if c.Probe.Timeout <= 0 {
		return fmt.Errorf("probe.timeout must be positive, got %s", c.Probe.Timeout)
	}
	if c.Probe.Workers <= 0 {
		c.Probe.Workers = 1
	}
	if len(c.Tunnel.DefaultDNS) == 0 {
		c.Tunnel.DefaultDNS = model.DefaultDNSServers()
	}
	return nil
}

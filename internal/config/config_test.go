package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"tunnelcore/internal/model"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_MissingDefaultFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Errorf("Load() = %+v, want defaults %+v", cfg, Default())
	}
}

func TestLoad_DefaultFileInWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("tunnel:\n  mode: perAppManaged\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Tunnel.Mode != model.ModePerAppManaged {
		t.Errorf("Tunnel.Mode = %v, want %v", cfg.Tunnel.Mode, model.ModePerAppManaged)
	}
}

func TestLoad_MissingExplicitFileIsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.yaml")
	if _, err := Load(path); err == nil {
		t.Errorf("Load(%q) error = nil, want error", path)
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name: "durations and overrides",
			yaml: `
database:
  path: /var/lib/tunnelcore.db
tunnel:
  mode: perAppManaged
  provider_bundle_id: com.example.vpn.tunnel
  default_dns: [9.9.9.9]
autobind:
  endpoint: https://mdm.example.com/bind
  timeout: 30s
probe:
  timeout: 1500ms
  workers: 3
`,
			check: func(t *testing.T, cfg *Config) {
				if cfg.Database.Path != "/var/lib/tunnelcore.db" {
					t.Errorf("Database.Path = %q", cfg.Database.Path)
				}
				if cfg.Tunnel.Mode != model.ModePerAppManaged {
					t.Errorf("Tunnel.Mode = %v, want %v", cfg.Tunnel.Mode, model.ModePerAppManaged)
				}
				if cfg.AutoBind.Timeout != 30*time.Second {
					t.Errorf("AutoBind.Timeout = %v, want 30s", cfg.AutoBind.Timeout)
				}
				if cfg.Probe.Timeout != 1500*time.Millisecond {
					t.Errorf("Probe.Timeout = %v, want 1.5s", cfg.Probe.Timeout)
				}
				if cfg.Probe.Workers != 3 {
					t.Errorf("Probe.Workers = %v, want 3", cfg.Probe.Workers)
				}
				if !reflect.DeepEqual(cfg.Tunnel.DefaultDNS, []string{"9.9.9.9"}) {
					t.Errorf("Tunnel.DefaultDNS = %v, want [9.9.9.9]", cfg.Tunnel.DefaultDNS)
				}
				// Keys absent from the file keep their defaults.
				if cfg.Secrets.Backend != "keyring" {
					t.Errorf("Secrets.Backend = %q, want keyring", cfg.Secrets.Backend)
				}
			},
		},
		{
			name: "empty dns list falls back to defaults",
			yaml: "tunnel:\n  default_dns: []\n",
			check: func(t *testing.T, cfg *Config) {
				if !reflect.DeepEqual(cfg.Tunnel.DefaultDNS, model.DefaultDNSServers()) {
					t.Errorf("Tunnel.DefaultDNS = %v, want %v", cfg.Tunnel.DefaultDNS, model.DefaultDNSServers())
				}
			},
		},
		{
			name: "non-positive workers become one",
			yaml: "probe:\n  workers: 0\n",
			check: func(t *testing.T, cfg *Config) {
				if cfg.Probe.Workers != 1 {
					t.Errorf("Probe.Workers = %v, want 1", cfg.Probe.Workers)
				}
			},
		},
		{name: "unknown tunnel mode", yaml: "tunnel:\n  mode: splitTunnel\n", wantErr: "unknown tunnel mode"},
		{name: "unknown secrets backend", yaml: "secrets:\n  backend: vault\n", wantErr: "unknown secrets backend"},
		{name: "zero autobind timeout", yaml: "autobind:\n  timeout: 0s\n", wantErr: "autobind.timeout"},
		{name: "negative probe timeout", yaml: "probe:\n  timeout: -1s\n", wantErr: "probe.timeout"},
		{name: "bad duration", yaml: "probe:\n  timeout: soon\n", wantErr: "failed to parse"},
		{name: "bad yaml", yaml: "tunnel: [\n", wantErr: "failed to parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tt.yaml))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Load() error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

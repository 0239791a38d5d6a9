package app

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"tunnelcore/internal/autobind"
	"tunnelcore/internal/config"
	"tunnelcore/internal/model"
	"tunnelcore/internal/secrets"
	"tunnelcore/internal/store"
	"tunnelcore/internal/tunnel"
	"tunnelcore/internal/xray/parser"

	"github.com/google/uuid"
)

const testUserID = "b831381d-6324-4d53-ad4f-8cda48b30811"

func testLink(t *testing.T, fields map[string]interface{}) string {
	t.Helper()
	b, err := json.Marshal(fields)
	if err != nil {
		t.Fatal(err)
	}
	return "vmess://" + base64.StdEncoding.EncodeToString(b)
}

type fakeController struct {
	installed *model.Profile
	mode      model.TunnelMode
	connected bool
	status    tunnel.Status
}

func (f *fakeController) Install(_ context.Context, p model.Profile, mode model.TunnelMode) error {
	f.installed = &p
	f.mode = mode
	return nil
}

func (f *fakeController) Connect(context.Context) error {
	f.connected = true
	f.status = tunnel.StatusConnected
	return nil
}

func (f *fakeController) Disconnect(context.Context) error {
	f.connected = false
	f.status = tunnel.StatusDisconnected
	return nil
}

func (f *fakeController) Status(context.Context) (tunnel.Status, error) {
	return f.status, nil
}

type harness struct {
	svc        *Service
	cfg        *config.Config
	sec        *secrets.Memory
	records    *store.MemoryRecords
	controller *fakeController
}

func newHarness(t *testing.T, mode model.TunnelMode, binder *autobind.Client) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.Tunnel.Mode = mode
	cfg.AutoBind.DeviceIdentifier = "device-123"

	h := &harness{
		cfg:        cfg,
		sec:        secrets.NewMemory(),
		records:    store.NewMemoryRecords(),
		controller: &fakeController{},
	}
	h.svc = New(cfg, Deps{
		Profiles:    store.NewProfileStore(h.records, h.sec),
		Controller:  h.controller,
		Diagnostics: tunnel.NewDiagnostics(h.records, time.Minute),
		Binder:      binder,
	})
	return h
}

func (h *harness) save(t *testing.T, apps string) model.Profile {
	t.Helper()
	p, err := h.svc.SaveProfile(context.Background(), ProfileInput{
		Link:      testLink(t, map[string]interface{}{"add": "edge.example.com", "port": 443, "id": testUserID, "ps": "Edge"}),
		AppsCSV:   apps,
		BypassLAN: true,
	})
	if err != nil {
		t.Fatalf("SaveProfile() error = %v", err)
	}
	return p
}

func TestAssembleProfile(t *testing.T) {
	h := newHarness(t, model.ModeFullDevice, nil)

	tests := []struct {
		name     string
		in       ProfileInput
		wantName string
		wantDNS  []string
		wantApps []string
	}{
		{
			name:     "remark becomes name, default dns",
			in:       ProfileInput{Link: testLink(t, map[string]interface{}{"add": "h.example", "port": 1, "id": testUserID, "ps": "Tokyo"})},
			wantName: "Tokyo",
			wantDNS:  []string{"1.1.1.1", "8.8.8.8"},
			wantApps: []string{},
		},
		{
			name:     "host fallback name",
			in:       ProfileInput{Link: testLink(t, map[string]interface{}{"add": "h.example", "port": 1, "id": testUserID})},
			wantName: "vmess-h.example",
			wantDNS:  []string{"1.1.1.1", "8.8.8.8"},
			wantApps: []string{},
		},
		{
			name: "explicit fields and link inside text",
			in: ProfileInput{
				Link:    "share: " + testLink(t, map[string]interface{}{"add": "h.example", "port": 1, "id": testUserID, "ps": "R"}) + " thanks",
				Name:    " Work ",
				DNSCSV:  "9.9.9.9, 149.112.112.112",
				AppsCSV: "com.a.mail, COM.A.MAIL, com.b.chat",
			},
			wantName: "Work",
			wantDNS:  []string{"9.9.9.9", "149.112.112.112"},
			wantApps: []string{"com.a.mail", "com.b.chat"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := h.svc.AssembleProfile(tt.in)
			if err != nil {
				t.Fatalf("AssembleProfile() error = %v", err)
			}
			if p.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", p.Name, tt.wantName)
			}
			if !reflect.DeepEqual(p.DNSServers, tt.wantDNS) {
				t.Errorf("DNSServers = %v, want %v", p.DNSServers, tt.wantDNS)
			}
			if !reflect.DeepEqual(p.PerAppBundleIDs, tt.wantApps) {
				t.Errorf("PerAppBundleIDs = %v, want %v", p.PerAppBundleIDs, tt.wantApps)
			}
		})
	}
}

func TestAssembleProfile_Errors(t *testing.T) {
	h := newHarness(t, model.ModeFullDevice, nil)
	link := testLink(t, map[string]interface{}{"add": "h", "port": 1, "id": testUserID})

	if _, err := h.svc.AssembleProfile(ProfileInput{Link: "  "}); !errors.Is(err, ErrNoLink) {
		t.Errorf("empty link error = %v, want ErrNoLink", err)
	}
	if _, err := h.svc.AssembleProfile(ProfileInput{Link: "https://example.com"}); !errors.Is(err, parser.ErrInvalidScheme) {
		t.Errorf("wrong scheme error = %v, want ErrInvalidScheme", err)
	}
	var bad *model.InvalidBundleIDError
	if _, err := h.svc.AssembleProfile(ProfileInput{Link: link, AppsCSV: "com.ok.app, broken"}); !errors.As(err, &bad) {
		t.Errorf("bad bundle id error = %v, want InvalidBundleIDError", err)
	}
}

func TestExport_Preconditions(t *testing.T) {
	ctx := context.Background()

	full := newHarness(t, model.ModeFullDevice, nil)
	p := full.save(t, "com.a.mail")
	if _, _, err := full.svc.Export(ctx, p.ID); !errors.Is(err, ErrExportRequiresPerApp) {
		t.Errorf("Export() in full device mode error = %v, want ErrExportRequiresPerApp", err)
	}

	perApp := newHarness(t, model.ModePerAppManaged, nil)
	noApps := perApp.save(t, "")
	if _, _, err := perApp.svc.Export(ctx, noApps.ID); !errors.Is(err, ErrNoBundleIDs) {
		t.Errorf("Export() without apps error = %v, want ErrNoBundleIDs", err)
	}

	lost := perApp.save(t, "com.a.mail")
	if err := perApp.sec.Delete(store.SecretKey(lost.ID)); err != nil {
		t.Fatal(err)
	}
	if _, _, err := perApp.svc.Export(ctx, lost.ID); !errors.Is(err, ErrSecretMissing) {
		t.Errorf("Export() with lost secret error = %v, want ErrSecretMissing", err)
	}

	if _, _, err := perApp.svc.Export(ctx, uuid.New()); !errors.Is(err, store.ErrProfileNotFound) {
		t.Errorf("Export() of unknown id error = %v, want ErrProfileNotFound", err)
	}

	ok := perApp.save(t, "com.a.mail,com.b.chat")
	bundle, _, err := perApp.svc.Export(ctx, ok.ID)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if bundle.VPNUUID != ok.VPNUUID() {
		t.Errorf("VPNUUID = %q, want %q", bundle.VPNUUID, ok.VPNUUID())
	}
}

func TestConnect(t *testing.T) {
	ctx := context.Background()

	perApp := newHarness(t, model.ModePerAppManaged, nil)
	p := perApp.save(t, "")
	if err := perApp.svc.Connect(ctx, p); !errors.Is(err, ErrPerAppConnect) {
		t.Errorf("Connect() in per-app mode error = %v, want ErrPerAppConnect", err)
	}
	if perApp.controller.installed != nil {
		t.Errorf("Connect() installed a configuration despite the mode check")
	}

	full := newHarness(t, model.ModeFullDevice, nil)
	p = full.save(t, "")
	if err := full.svc.Connect(ctx, store.Redact(p)); !errors.Is(err, ErrSecretMissing) {
		t.Errorf("Connect(redacted) error = %v, want ErrSecretMissing", err)
	}
	if err := full.svc.Connect(ctx, p); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !full.controller.connected || full.controller.mode != model.ModeFullDevice || full.controller.installed.ID != p.ID {
		t.Errorf("controller state = %+v", full.controller)
	}

	report, err := full.svc.Status(ctx)
	if err != nil || report.Status != tunnel.StatusConnected {
		t.Errorf("Status() = %+v, %v", report, err)
	}
}

func TestStatus_ReportsRecentStartError(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, model.ModeFullDevice, nil)
	h.controller.status = tunnel.StatusDisconnected

	diag := tunnel.NewDiagnostics(h.records, time.Minute)
	if err := diag.RecordStartError(ctx, &tunnel.StartError{Domain: tunnel.DomainEngine, Code: 2, Err: errors.New("port busy")}); err != nil {
		t.Fatal(err)
	}

	report, err := h.svc.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.LastError != "port busy [tunnelcore.engine:2]" {
		t.Errorf("LastError = %q", report.LastError)
	}
}

func TestResolveProfile(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, model.ModeFullDevice, nil)
	saved := h.save(t, "")

	got, err := h.svc.ResolveProfile(ctx, saved.ID.String())
	if err != nil || got.ID != saved.ID {
		t.Errorf("ResolveProfile(id) = %v, %v", got.ID, err)
	}

	link := testLink(t, map[string]interface{}{"add": "adhoc.example", "port": 8080, "id": testUserID})
	got, err = h.svc.ResolveProfile(ctx, link)
	if err != nil || got.Endpoint.Host != "adhoc.example" {
		t.Errorf("ResolveProfile(link) = %+v, %v", got, err)
	}
	if all, _ := h.svc.Profiles(ctx); len(all) != 1 {
		t.Errorf("ResolveProfile(link) saved the ad-hoc profile")
	}
}

func TestEngineConfig_RefusesRedacted(t *testing.T) {
	h := newHarness(t, model.ModeFullDevice, nil)
	p := h.save(t, "")
	if _, err := h.svc.EngineConfig(store.Redact(p)); !errors.Is(err, ErrSecretMissing) {
		t.Errorf("EngineConfig(redacted) error = %v, want ErrSecretMissing", err)
	}
	if _, err := h.svc.EngineConfig(p); err != nil {
		t.Errorf("EngineConfig() error = %v", err)
	}
}

func TestBind(t *testing.T) {
	ctx := context.Background()

	var body autobind.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{"accepted":true,"requestID":"r-1"}`))
	}))
	defer server.Close()

	unconfigured := newHarness(t, model.ModePerAppManaged, nil)
	p := unconfigured.save(t, "com.a.mail")
	if _, err := unconfigured.svc.Bind(ctx, p.ID); !errors.Is(err, ErrAutoBindNotConfigured) {
		t.Errorf("Bind() without client error = %v, want ErrAutoBindNotConfigured", err)
	}

	h := newHarness(t, model.ModePerAppManaged, autobind.New(autobind.Config{Endpoint: server.URL, HTTPClient: server.Client()}))
	p = h.save(t, "com.a.mail")
	resp, err := h.svc.Bind(ctx, p.ID)
	if err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if resp.ID() != "r-1" {
		t.Errorf("request id = %q, want r-1", resp.ID())
	}
	if body.VPNUUID != p.VPNUUID() || body.DeviceIdentifier != "device-123" || len(body.BundleIDs) != 1 {
		t.Errorf("posted body = %+v", body)
	}
}

package parser

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
)

const testUserID = "b831381d-6324-4d53-ad4f-8cda48b30811"

func encodeLink(t *testing.T, scheme string, payload map[string]interface{}) string {
	t.Helper()
	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	return scheme + base64.RawURLEncoding.EncodeToString(b)
}

func TestParse_WebSocketTLSExample(t *testing.T) {
	link := encodeLink(t, Scheme, map[string]interface{}{
		"add":  "1.2.3.4",
		"port": "443",
		"id":   testUserID,
		"net":  "ws",
		"tls":  "tls",
		"sni":  "x.com",
		"path": "/ws",
	})

	e, err := Parse(link)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if e.Port != 443 {
		t.Errorf("Port = %v, want 443", e.Port)
	}
	if e.Network != "ws" {
		t.Errorf("Network = %v, want ws", e.Network)
	}
	if e.TLS != "tls" {
		t.Errorf("TLS = %v, want tls", e.TLS)
	}
	if Value(e.SNI) != "x.com" {
		t.Errorf("SNI = %v, want x.com", Value(e.SNI))
	}
	if Value(e.Path) != "/ws" {
		t.Errorf("Path = %v, want /ws", Value(e.Path))
	}
	if e.HostHeader != nil {
		t.Errorf("HostHeader = %q, want absent", *e.HostHeader)
	}
}

func TestParse_Defaults(t *testing.T) {
	link := encodeLink(t, Scheme, map[string]interface{}{
		"add":  "example.com",
		"port": 8443,
		"id":   testUserID,
		"sni":  "",
		"host": "",
		"path": "",
		"ps":   "",
	})

	e, err := Parse(link)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if e.AlterID != 0 {
		t.Errorf("AlterID = %v, want 0", e.AlterID)
	}
	if e.Security != "auto" {
		t.Errorf("Security = %v, want auto", e.Security)
	}
	if e.Network != "tcp" {
		t.Errorf("Network = %v, want tcp", e.Network)
	}
	if e.TLS != "" {
		t.Errorf("TLS = %v, want empty", e.TLS)
	}
	if e.SNI != nil || e.HostHeader != nil || e.Path != nil || e.Remark != nil {
		t.Error("empty optional fields should be absent")
	}
}

func TestParse_TypoSchemeAlias(t *testing.T) {
	link := encodeLink(t, SchemeTypo, map[string]interface{}{
		"add":  "1.2.3.4",
		"port": 443,
		"id":   testUserID,
		"aid":  "2",
		"ps":   "home",
	})

	e, err := Parse(link)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if e.AlterID != 2 {
		t.Errorf("AlterID = %v, want 2", e.AlterID)
	}
	if Value(e.Remark) != "home" {
		t.Errorf("Remark = %v, want home", Value(e.Remark))
	}
}

func TestParse_PaddedStandardAlphabet(t *testing.T) {
	b, _ := json.Marshal(map[string]interface{}{"add": "h", "port": 1, "id": testUserID})
	link := Scheme + base64.StdEncoding.EncodeToString(b) + "\n"

	if _, err := Parse(link); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
}

func TestParse_NumericForms(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		port    int
		alterID int
	}{
		{"integer", `{"add":"1.2.3.4","port":443,"id":"` + testUserID + `","aid":0}`, 443, 0},
		{"integral float", `{"add":"1.2.3.4","port":443.0,"id":"` + testUserID + `","aid":64.0}`, 443, 64},
		{"exponent", `{"add":"1.2.3.4","port":4.43e2,"id":"` + testUserID + `"}`, 443, 0},
		{"string", `{"add":"1.2.3.4","port":" 8443 ","id":"` + testUserID + `","aid":"2"}`, 8443, 2},
		{"trailing whitespace", "{\"add\":\"1.2.3.4\",\"port\":80,\"id\":\"" + testUserID + "\"}\n ", 80, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := Parse(Scheme + base64.RawURLEncoding.EncodeToString([]byte(tt.payload)))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if e.Port != tt.port {
				t.Errorf("Port = %v, want %v", e.Port, tt.port)
			}
			if e.AlterID != tt.alterID {
				t.Errorf("AlterID = %v, want %v", e.AlterID, tt.alterID)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	valid := map[string]interface{}{"add": "1.2.3.4", "port": 443, "id": testUserID}
	with := func(key string, value interface{}) map[string]interface{} {
		m := map[string]interface{}{}
		for k, v := range valid {
			m[k] = v
		}
		if value == nil {
			delete(m, key)
		} else {
			m[key] = value
		}
		return m
	}

	tests := []struct {
		name  string
		link  string
		kind  error
		field string
	}{
		{"http scheme", "http://example.com", ErrInvalidScheme, ""},
		{"vless scheme", encodeLink(t, "vless://", valid), ErrInvalidScheme, ""},
		{"bad base64", Scheme + "!!!not-base64!!!", ErrInvalidBase64, ""},
		{"json array", Scheme + base64.RawURLEncoding.EncodeToString([]byte(`[1,2]`)), ErrInvalidJSON, ""},
		{"json garbage", Scheme + base64.RawURLEncoding.EncodeToString([]byte(`{"add":`)), ErrInvalidJSON, ""},
		{"trailing data", Scheme + base64.RawURLEncoding.EncodeToString([]byte(`{"add":"1.2.3.4","port":443,"id":"`+testUserID+`"} trailing`)), ErrInvalidJSON, ""},
		{"second object", Scheme + base64.RawURLEncoding.EncodeToString([]byte(`{"add":"1.2.3.4","port":443,"id":"`+testUserID+`"}{}`)), ErrInvalidJSON, ""},
		{"missing add", encodeLink(t, Scheme, with("add", nil)), ErrMissingField, "add"},
		{"empty add", encodeLink(t, Scheme, with("add", "")), ErrMissingField, "add"},
		{"missing id", encodeLink(t, Scheme, with("id", nil)), ErrMissingField, "id"},
		{"non uuid id", encodeLink(t, Scheme, with("id", "not-a-uuid")), ErrInvalidUserID, "id"},
		{"bare hex id", encodeLink(t, Scheme, with("id", "b831381d63244d53ad4f8cda48b30811")), ErrInvalidUserID, "id"},
		{"missing port", encodeLink(t, Scheme, with("port", nil)), ErrMissingField, "port"},
		{"port zero", encodeLink(t, Scheme, with("port", 0)), ErrInvalidPort, "port"},
		{"port too large", encodeLink(t, Scheme, with("port", 65536)), ErrInvalidPort, "port"},
		{"port text", encodeLink(t, Scheme, with("port", "https")), ErrInvalidPort, "port"},
		{"port fractional", encodeLink(t, Scheme, with("port", 44.5)), ErrInvalidPort, "port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.link)
			if !errors.Is(err, tt.kind) {
				t.Fatalf("Parse() error = %v, want %v", err, tt.kind)
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("Parse() error type = %T, want *ParseError", err)
			}
			if pe.Field != tt.field {
				t.Errorf("Field = %q, want %q", pe.Field, tt.field)
			}
		})
	}
}

func TestLink_RoundTrip(t *testing.T) {
	endpoints := []Endpoint{
		{Host: "1.2.3.4", Port: 1, ID: testUserID, Security: "auto", Network: "tcp"},
		{Host: "edge.example.com", Port: 65535, ID: "6F9619FF-8B86-D011-B42D-00C04FC964FF", AlterID: 64,
			Security: "aes-128-gcm", Network: "ws", TLS: "tls",
			SNI: Optional("edge.example.com"), HostHeader: Optional("cdn.example.com"),
			Path: Optional("/ray?ed=2048"), Remark: Optional("東京 #1")},
		{Host: "h2.example.com", Port: 443, ID: testUserID, Security: "none", Network: "grpc", Path: Optional("svc")},
	}

	for _, want := range endpoints {
		t.Run(want.Host, func(t *testing.T) {
			got, err := Parse(want.Link())
			if err != nil {
				t.Fatalf("Parse(Link()) error = %v", err)
			}
			if got.Host != want.Host || got.Port != want.Port || got.ID != want.ID ||
				got.AlterID != want.AlterID || got.Security != want.Security ||
				got.Network != want.Network || got.TLS != want.TLS {
				t.Errorf("Parse(Link()) = %+v, want %+v", got, want)
			}
			for name, pair := range map[string][2]*string{
				"sni":        {got.SNI, want.SNI},
				"hostHeader": {got.HostHeader, want.HostHeader},
				"path":       {got.Path, want.Path},
				"remark":     {got.Remark, want.Remark},
			} {
				if (pair[0] == nil) != (pair[1] == nil) || Value(pair[0]) != Value(pair[1]) {
					t.Errorf("%s = %v, want %v", name, Value(pair[0]), Value(pair[1]))
				}
			}
		})
	}
}

func TestFingerprint_IgnoresRemark(t *testing.T) {
	a := Endpoint{Host: "Example.com", Port: 443, ID: testUserID, Network: "ws", Remark: Optional("a")}
	b := Endpoint{Host: "example.com", Port: 443, ID: testUserID, Security: "auto", Network: "ws", Remark: Optional("b")}

	if a.Fingerprint() != b.Fingerprint() {
		t.Error("Fingerprint() should ignore remark, host case and default security")
	}

	b.Port = 8443
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("Fingerprint() should change with port")
	}
}

func TestRedactedID(t *testing.T) {
	e := Endpoint{ID: testUserID}
	if got := e.RedactedID(); got[:8] != "b831381d" || got == testUserID {
		t.Errorf("RedactedID() = %v", got)
	}
}

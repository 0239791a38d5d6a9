package xray

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"tunnelcore/internal/model"
	"tunnelcore/internal/xray/parser"
)

const testUserID = "b831381d-6324-4d53-ad4f-8cda48b30811"

func testProfile(endpoint parser.Endpoint) model.Profile {
	return model.NewProfile("test", endpoint)
}

func decodeDoc(t *testing.T, doc string) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(doc), &out); err != nil {
		t.Fatalf("engine document is not JSON: %v", err)
	}
	return out
}

func proxyStream(t *testing.T, doc map[string]interface{}) map[string]interface{} {
	t.Helper()
	outbounds := doc["outbounds"].([]interface{})
	proxy := outbounds[0].(map[string]interface{})
	if proxy["tag"] != OutboundProxy {
		t.Fatalf("first outbound tag = %v, want %s", proxy["tag"], OutboundProxy)
	}
	return proxy["streamSettings"].(map[string]interface{})
}

func TestBuildConfig_WebSocketTLS(t *testing.T) {
	link := "vmess://" + encodeLink(t, map[string]interface{}{
		"add": "1.2.3.4", "port": "443", "id": testUserID,
		"net": "ws", "tls": "tls", "sni": "x.com", "path": "/ws",
	})
	endpoint, err := parser.Parse(link)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	out, err := BuildConfig(testProfile(*endpoint))
	if err != nil {
		t.Fatalf("BuildConfig() error = %v", err)
	}
	stream := proxyStream(t, decodeDoc(t, out))

	if stream["security"] != "tls" {
		t.Errorf("streamSettings.security = %v, want tls", stream["security"])
	}
	ws := stream["wsSettings"].(map[string]interface{})
	if ws["path"] != "/ws" {
		t.Errorf("wsSettings.path = %v, want /ws", ws["path"])
	}
	if _, ok := ws["headers"]; ok {
		t.Errorf("wsSettings.headers present without a host header")
	}
	tls := stream["tlsSettings"].(map[string]interface{})
	if tls["serverName"] != "x.com" {
		t.Errorf("tlsSettings.serverName = %v, want x.com", tls["serverName"])
	}
	if tls["allowInsecure"] != false {
		t.Errorf("tlsSettings.allowInsecure = %v, want false", tls["allowInsecure"])
	}
}

func TestBuildConfig_PlainTCP(t *testing.T) {
	out, err := BuildConfig(testProfile(parser.Endpoint{
		Host: "example.com", Port: 80, ID: testUserID,
		Security: "auto", Network: "tcp",
	}))
	if err != nil {
		t.Fatalf("BuildConfig() error = %v", err)
	}
	stream := proxyStream(t, decodeDoc(t, out))

	if stream["security"] != "none" {
		t.Errorf("streamSettings.security = %v, want none", stream["security"])
	}
	for _, key := range []string{"tlsSettings", "wsSettings"} {
		if _, ok := stream[key]; ok {
			t.Errorf("streamSettings.%s present for plain tcp", key)
		}
	}
}

func TestBuildConfig_ServerNameOnlyWithSNI(t *testing.T) {
	out, err := BuildConfig(testProfile(parser.Endpoint{
		Host: "example.com", Port: 443, ID: testUserID,
		Security: "auto", Network: "tcp", TLS: "tls",
	}))
	if err != nil {
		t.Fatalf("BuildConfig() error = %v", err)
	}
	tls := proxyStream(t, decodeDoc(t, out))["tlsSettings"].(map[string]interface{})
	if _, ok := tls["serverName"]; ok {
		t.Errorf("tlsSettings.serverName = %v, want absent", tls["serverName"])
	}
}

func TestBuildConfig_PrivateRangesAlwaysDirect(t *testing.T) {
	for _, bypass := range []bool{true, false} {
		profile := testProfile(parser.Endpoint{
			Host: "example.com", Port: 443, ID: testUserID, Security: "auto", Network: "tcp",
		})
		profile.BypassLAN = bypass

		out, err := BuildConfig(profile)
		if err != nil {
			t.Fatalf("BuildConfig() error = %v", err)
		}
		routing := decodeDoc(t, out)["routing"].(map[string]interface{})
		rules := routing["rules"].([]interface{})
		if len(rules) != 1 {
			t.Fatalf("bypassLAN=%v: len(rules) = %d, want 1", bypass, len(rules))
		}
		rule := rules[0].(map[string]interface{})
		if rule["outboundTag"] != OutboundDirect {
			t.Errorf("bypassLAN=%v: rule outboundTag = %v, want direct", bypass, rule["outboundTag"])
		}

		var ips []string
		for _, ip := range rule["ip"].([]interface{}) {
			ips = append(ips, ip.(string))
		}
		if !reflect.DeepEqual(ips, PrivateNetworkCIDRs) {
			t.Errorf("bypassLAN=%v: rule ip = %v, want %v", bypass, ips, PrivateNetworkCIDRs)
		}
	}
}

func TestBuildConfig_Sections(t *testing.T) {
	profile := testProfile(parser.Endpoint{
		Host: "example.com", Port: 8443, ID: testUserID, AlterID: 2, Security: "aes-128-gcm", Network: "tcp",
	})
	profile.DNSServers = []string{"9.9.9.9"}

	out, err := BuildConfig(profile)
	if err != nil {
		t.Fatalf("BuildConfig() error = %v", err)
	}
	doc := decodeDoc(t, out)

	for _, key := range []string{"log", "inbounds", "outbounds", "routing", "dns"} {
		if _, ok := doc[key]; !ok {
			t.Errorf("document is missing %q", key)
		}
	}

	inbound := doc["inbounds"].([]interface{})[0].(map[string]interface{})
	if inbound["listen"] != "127.0.0.1" || inbound["port"] != float64(10808) || inbound["protocol"] != "socks" {
		t.Errorf("inbound = %v, want loopback socks on 10808", inbound)
	}

	outbounds := doc["outbounds"].([]interface{})
	var tags []string
	for _, o := range outbounds {
		tags = append(tags, o.(map[string]interface{})["tag"].(string))
	}
	if want := []string{"proxy", "direct", "block"}; !reflect.DeepEqual(tags, want) {
		t.Errorf("outbound tags = %v, want %v", tags, want)
	}

	vnext := outbounds[0].(map[string]interface{})["settings"].(map[string]interface{})["vnext"].([]interface{})[0].(map[string]interface{})
	user := vnext["users"].([]interface{})[0].(map[string]interface{})
	if user["id"] != testUserID || user["alterId"] != float64(2) || user["security"] != "aes-128-gcm" {
		t.Errorf("vnext user = %v", user)
	}

	servers := doc["dns"].(map[string]interface{})["servers"].([]interface{})
	if len(servers) != 1 || servers[0] != "9.9.9.9" {
		t.Errorf("dns.servers = %v, want [9.9.9.9]", servers)
	}
}

func TestBuildConfig_Deterministic(t *testing.T) {
	profile := testProfile(parser.Endpoint{
		Host: "example.com", Port: 443, ID: testUserID, Security: "auto", Network: "ws",
		TLS: "tls", SNI: parser.Optional("example.com"), HostHeader: parser.Optional("cdn.example.com"),
	})

	first, err := BuildConfig(profile)
	if err != nil {
		t.Fatalf("BuildConfig() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		again, _ := BuildConfig(profile)
		if again != first {
			t.Fatalf("BuildConfig() is not deterministic")
		}
	}
	if strings.Index(first, `"dns"`) > strings.Index(first, `"inbounds"`) {
		t.Errorf("top-level keys are not sorted")
	}
}

func TestBuildConfigOnPort_RejectsBadPort(t *testing.T) {
	profile := testProfile(parser.Endpoint{Host: "h", Port: 1, ID: testUserID})
	if _, err := BuildConfigOnPort(profile, 0); err == nil {
		t.Errorf("BuildConfigOnPort(0) error = nil, want error")
	}
}

func TestValidate(t *testing.T) {
	out, err := BuildConfig(testProfile(parser.Endpoint{
		Host: "example.com", Port: 443, ID: testUserID, Security: "auto", Network: "ws",
		TLS: "tls", SNI: parser.Optional("example.com"), Path: parser.Optional("/ws"),
	}))
	if err != nil {
		t.Fatalf("BuildConfig() error = %v", err)
	}
	if err := Validate(out); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	if err := Validate("{not json"); !errors.Is(err, ErrInvalidDocument) {
		t.Errorf("Validate(garbage) error = %v, want ErrInvalidDocument", err)
	}
}

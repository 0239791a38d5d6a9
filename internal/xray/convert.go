package xray

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"tunnelcore/internal/model"
	"tunnelcore/internal/xray/parser"
)

const (
	InboundTag  = "socks-in"
	InboundHost = "127.0.0.1"
	InboundPort = 10808

	OutboundProxy  = "proxy"
	OutboundDirect = "direct"
	OutboundBlock  = "block"
)

var ErrInvalidDocument = errors.New("invalid engine document")

// PrivateNetworkCIDRs are always routed to the direct outbound, whatever the
// profile's bypassLAN flag says. bypassLAN is applied by the OS tunnel.
var PrivateNetworkCIDRs = []string{
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.0.0.0/24",
	"192.0.2.0/24",
	"192.168.0.0/16",
	"198.18.0.0/15",
	"198.51.100.0/24",
	"203.0.113.0/24",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
}

// BuildConfig compiles a profile into the engine JSON document. Keys are
// emitted in sorted order so identical profiles give identical bytes.
func BuildConfig(profile model.Profile) (string, error) {
	return BuildConfigOnPort(profile, InboundPort)
}

// BuildConfigOnPort is BuildConfig with the local SOCKS inbound moved to port.
func BuildConfigOnPort(profile model.Profile, port int) (string, error) {
	if port < 1 || port > 65535 {
		return "", fmt.Errorf("inbound port %d out of range", port)
	}
	b, err := json.MarshalIndent(buildDocument(profile, port), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode engine document: %w", err)
	}
	return string(b), nil
}

func buildDocument(profile model.Profile, port int) map[string]interface{} {
	dns := profile.DNSServers
	if dns == nil {
		dns = []string{}
	}

	return map[string]interface{}{
		"log": map[string]interface{}{
			"loglevel": "warning",
		},
		"inbounds": []interface{}{
			map[string]interface{}{
				"tag":      InboundTag,
				"port":     port,
				"listen":   InboundHost,
				"protocol": "socks",
				"settings": map[string]interface{}{
					"udp":  true,
					"auth": "noauth",
				},
			},
		},
		"outbounds": []interface{}{
			map[string]interface{}{
				"tag":            OutboundProxy,
				"protocol":       "vmess",
				"settings":       buildVMess(&profile.Endpoint),
				"streamSettings": buildStreamSettings(&profile.Endpoint),
			},
			map[string]interface{}{
				"tag":      OutboundDirect,
				"protocol": "freedom",
			},
			map[string]interface{}{
				"tag":      OutboundBlock,
				"protocol": "blackhole",
			},
		},
		"routing": map[string]interface{}{
			"domainStrategy": "AsIs",
			"rules": []interface{}{
				map[string]interface{}{
					"type":        "field",
					"ip":          append([]string(nil), PrivateNetworkCIDRs...),
					"outboundTag": OutboundDirect,
				},
			},
		},
		"dns": map[string]interface{}{
			"servers": dns,
		},
	}
}

// --- JSON Builders ---

func buildVMess(e *parser.Endpoint) map[string]interface{} {
	return map[string]interface{}{
		"vnext": []interface{}{
			map[string]interface{}{
				"address": e.Host,
				"port":    e.Port,
				"users": []interface{}{
					map[string]interface{}{
						"id":       e.ID,
						"alterId":  e.AlterID,
						"security": e.Security,
					},
				},
			},
		},
	}
}

func buildStreamSettings(e *parser.Endpoint) map[string]interface{} {
	sc := map[string]interface{}{
		"network": e.Network,
	}

	if e.Network == "ws" {
		ws := map[string]interface{}{}
		if e.Path != nil {
			ws["path"] = *e.Path
		}
		if e.HostHeader != nil {
			ws["headers"] = map[string]interface{}{"Host": *e.HostHeader}
		}
		sc["wsSettings"] = ws
	}

	if strings.EqualFold(e.TLS, "tls") {
		tls := map[string]interface{}{"allowInsecure": false}
		if e.SNI != nil {
			tls["serverName"] = *e.SNI
		}
		sc["security"] = "tls"
		sc["tlsSettings"] = tls
	} else {
		sc["security"] = "none"
	}

	return sc
}

// Validate compiles doc with xray-core's own config loader, catching
// documents the engine would refuse at start.
func Validate(doc string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: engine config panic: %v", ErrInvalidDocument, r)
		}
	}()

	_, err = compile(doc)
	return err
}

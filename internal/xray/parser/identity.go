package parser

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Fingerprint identifies the server an endpoint points at, ignoring the
// remark. Two imports of the same server yield the same fingerprint.
func (e *Endpoint) Fingerprint() string {
	var parts []string

	parts = append(parts, strings.ToLower(e.Host))
	parts = append(parts, fmt.Sprintf("%d", e.Port))
	parts = append(parts, strings.ToLower(e.ID))

	// "auto" and empty mean the same thing to the engine.
	security := strings.ToLower(e.Security)
	if security == "" {
		security = DefaultSecurity
	}
	parts = append(parts, security)

	network := strings.ToLower(e.Network)
	if network == "" {
		network = DefaultNetwork
	}
	parts = append(parts, network)

	parts = append(parts, strings.ToLower(e.TLS))
	parts = append(parts, strings.ToLower(Value(e.SNI)))
	parts = append(parts, strings.ToLower(Value(e.HostHeader)))
	parts = append(parts, Value(e.Path))

	signature := strings.Join(parts, "|")
	hash := sha256.Sum256([]byte(signature))
	return hex.EncodeToString(hash[:])
}

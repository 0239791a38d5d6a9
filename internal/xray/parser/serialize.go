package parser

import (
	"encoding/base64"
	"encoding/json"
)

// Link converts an Endpoint back into its vmess:// share form, using the
// URL-safe alphabet without padding.
func (e *Endpoint) Link() string {
	v := vmessJSON{
		V:    "2",
		Ps:   Value(e.Remark),
		Add:  e.Host,
		Port: e.Port,
		Id:   e.ID,
		Aid:  e.AlterID,
		Scy:  e.Security,
		Net:  e.Network,
		Tls:  e.TLS,
		Sni:  Value(e.SNI),
		Host: Value(e.HostHeader),
		Path: Value(e.Path),
	}

	b, _ := json.Marshal(v)
	return Scheme + base64.RawURLEncoding.EncodeToString(b)
}

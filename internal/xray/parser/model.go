package parser

// Endpoint is the decoded form of one vmess:// share link.
// Optional fields are nil when the link did not carry them; an empty string
// in the link is treated the same as an absent key.
type Endpoint struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	ID       string `json:"id"` // VMess user id, the secret
	AlterID  int    `json:"alterId"`
	Security string `json:"security"`
	Network  string `json:"network"` // tcp, ws, others passed through
	TLS      string `json:"tls"`     // "" or "tls"

	SNI        *string `json:"sni,omitempty"`
	HostHeader *string `json:"hostHeader,omitempty"`
	Path       *string `json:"path,omitempty"`
	Remark     *string `json:"remark,omitempty"`
}

const (
	DefaultSecurity = "auto"
	DefaultNetwork  = "tcp"
)

// vmessJSON mirrors the wire payload. Port and aid arrive as numbers or
// numeric strings depending on the client that produced the link.
type vmessJSON struct {
	V    string      `json:"v,omitempty"`
	Ps   string      `json:"ps,omitempty"`
	Add  string      `json:"add"`
	Port interface{} `json:"port"`
	Id   string      `json:"id"`
	Aid  interface{} `json:"aid,omitempty"`
	Scy  string      `json:"scy,omitempty"`
	Net  string      `json:"net,omitempty"`
	Tls  string      `json:"tls,omitempty"`
	Sni  string      `json:"sni,omitempty"`
	Host string      `json:"host,omitempty"`
	Path string      `json:"path,omitempty"`
}

// Value returns the dereferenced optional, or "" when absent.
func Value(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Optional maps "" to absent.
func Optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// RedactedID keeps the first UUID group so logs can tell endpoints apart.
func (e Endpoint) RedactedID() string {
	if len(e.ID) < 8 {
		return "********"
	}
	return e.ID[:8] + "-****-****-****-************"
}

package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"
)

const (
	Scheme = "vmess://"
	// Some share sheets emit this misspelling; it is accepted as an alias.
	SchemeTypo = "vemss://"
)

// Parse decodes a vmess:// link into an Endpoint.
func Parse(raw string) (*Endpoint, error) {
	raw = FixIllegalUrl(raw)

	var encoded string
	switch {
	case strings.HasPrefix(raw, Scheme):
		encoded = raw[len(Scheme):]
	case strings.HasPrefix(raw, SchemeTypo):
		encoded = raw[len(SchemeTypo):]
	default:
		return nil, fail(ErrInvalidScheme, "", nil)
	}
	encoded = strings.TrimSpace(encoded)

	payload, err := DecodeBase64URLSafe(encoded)
	if err != nil {
		return nil, fail(ErrInvalidBase64, "", err)
	}

	var object map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&object); err != nil || object == nil {
		return nil, fail(ErrInvalidJSON, "", err)
	}
	// The payload must be exactly one object.
	if _, err := dec.Token(); err != io.EOF {
		return nil, fail(ErrInvalidJSON, "", errors.New("trailing data after object"))
	}

	host, err := requiredString(object, "add")
	if err != nil {
		return nil, err
	}
	id, err := requiredString(object, "id")
	if err != nil {
		return nil, err
	}
	if !IsUserID(id) {
		return nil, fail(ErrInvalidUserID, "id", nil)
	}

	portValue, ok := object["port"]
	if !ok || portValue == nil {
		return nil, fail(ErrMissingField, "port", nil)
	}
	port, ok := toInt(portValue)
	if !ok || port < 1 || port > 65535 {
		return nil, fail(ErrInvalidPort, "port", nil)
	}

	e := &Endpoint{
		Host:     host,
		Port:     port,
		ID:       id,
		Security: DefaultSecurity,
		Network:  DefaultNetwork,
	}

	if aid, ok := toInt(object["aid"]); ok {
		e.AlterID = aid
	}
	if v := optionalString(object, "scy"); v != "" {
		e.Security = v
	}
	if v := optionalString(object, "net"); v != "" {
		e.Network = v
	}
	e.TLS = optionalString(object, "tls")
	e.SNI = Optional(optionalString(object, "sni"))
	e.HostHeader = Optional(optionalString(object, "host"))
	e.Path = Optional(optionalString(object, "path"))
	e.Remark = Optional(optionalString(object, "ps"))

	return e, nil
}

func requiredString(object map[string]interface{}, key string) (string, error) {
	v, ok := object[key].(string)
	if !ok || v == "" {
		return "", fail(ErrMissingField, key, nil)
	}
	return v, nil
}

func optionalString(object map[string]interface{}, key string) string {
	v, _ := object[key].(string)
	return v
}

// toInt accepts a JSON integer, an integral float such as 443.0, or a string
// holding an integer.
func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := strconv.Atoi(n.String()); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
			return 0, false
		}
		return int(f), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	default:
		return 0, false
	}
}

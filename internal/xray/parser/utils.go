package parser

import (
	"encoding/base64"
	"strings"

	"github.com/google/uuid"
)

// DecodeBase64URLSafe maps the URL-safe alphabet onto the standard one and
// restores missing '=' padding before decoding.
func DecodeBase64URLSafe(s string) ([]byte, error) {
	s = strings.NewReplacer("-", "+", "_", "/").Replace(s)
	if n := (4 - len(s)%4) % 4; n != 0 {
		s += strings.Repeat("=", n)
	}
	return base64.StdEncoding.DecodeString(s)
}

// IsUserID reports whether s is a UUID in its canonical 36 character form.
// uuid.Parse alone also accepts braces, urn: prefixes and bare hex.
func IsUserID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// FixIllegalUrl cleans up line breaks pasted into the middle of a link.
func FixIllegalUrl(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	return s
}

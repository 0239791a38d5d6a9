package model

import (
	"fmt"
	"regexp"
	"strings"
)

var bundleIDPattern = regexp.MustCompile(`^[A-Za-z0-9-]+(\.[A-Za-z0-9-]+)+$`)

// InvalidBundleIDError names the first rejected bundle id.
type InvalidBundleIDError struct {
	BundleID string
}

func (e *InvalidBundleIDError) Error() string {
	return fmt.Sprintf("invalid bundle id %q: expected reverse-DNS form like com.example.app", e.BundleID)
}

// IsValidBundleID reports whether id has the reverse-DNS bundle id shape.
func IsValidBundleID(id string) bool {
	return bundleIDPattern.MatchString(id)
}

// NormalizeBundleIDs drops case-insensitive duplicates, keeping the first
// spelling and the input order.
func NormalizeBundleIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	normalized := make([]string, 0, len(ids))
	for _, id := range ids {
		key := strings.ToLower(id)
		if seen[key] {
			continue
		}
		seen[key] = true
		normalized = append(normalized, id)
	}
	return normalized
}

// ValidateBundleIDs rejects the first id that does not have the bundle id shape.
func ValidateBundleIDs(ids []string) error {
	for _, id := range ids {
		if !IsValidBundleID(id) {
			return &InvalidBundleIDError{BundleID: id}
		}
	}
	return nil
}

// ParseCSV splits a comma separated list, trimming blanks and dropping empty items.
func ParseCSV(input string) []string {
	var out []string
	for _, part := range strings.Split(input, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ParseBundleIDs turns user input into a normalized, validated bundle id set.
func ParseBundleIDs(csv string) ([]string, error) {
	ids := NormalizeBundleIDs(ParseCSV(csv))
	if err := ValidateBundleIDs(ids); err != nil {
		return nil, err
	}
	return ids, nil
}

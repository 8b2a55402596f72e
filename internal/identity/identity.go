// Package identity validates the identifiers a client supplies in its
// setup frame.
package identity

import (
	"strings"
)

// Identifier shapes accepted on the wire. User IDs arrive from the
// client verbatim and become durable document keys, so they are kept
// to a conservative character set.
const maxIDLength = 128

func isIDRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '.' || r == '_' || r == ':' || r == '-':
		return true
	default:
		return false
	}
}

func isValidID(id string) bool {
	if id == "" || len(id) > maxIDLength {
		return false
	}
	for _, r := range id {
		if !isIDRune(r) {
			return false
		}
	}
	return true
}

// SanitizeUserID trims and validates a user ID. It returns empty when
// the ID cannot be used as a storage key.
func SanitizeUserID(id string) string {
	id = strings.TrimSpace(id)
	if !isValidID(id) {
		return ""
	}
	return id
}

// SanitizeRunID trims and validates a run ID, falling back to
// "default" for anything unusable. Run IDs are only used for logging.
func SanitizeRunID(id string) string {
	id = strings.TrimSpace(id)
	if !isValidID(id) {
		return "default"
	}
	return id
}

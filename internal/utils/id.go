package utils

import (
	"crypto/sha256"
	"encoding/base64"
	"sort"
	"strings"

	"github.com/oklog/ulid/v2"
)

// GenerateStableID returns a new lexicographically sortable ULID.
func GenerateStableID() string {
	return ulid.Make().String()
}

// GenerateBusinessKey creates a deterministic, versioned hash for deduplication.
// Field order does not matter; values are trimmed and lower-cased before hashing.
//
// Example:
//
//	key := GenerateBusinessKey("E1", map[string]string{"period": id, "end": "2024-06-15"})
//	// → "E1_<43 url-safe base64 chars>"
func GenerateBusinessKey(version string, fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var canonical strings.Builder
	for _, k := range keys {
		canonical.WriteString(k + "=" + strings.ToLower(strings.TrimSpace(fields[k])) + "|")
	}

	hash := sha256.Sum256([]byte(canonical.String()))
	encoded := base64.RawURLEncoding.EncodeToString(hash[:])

	return version + "_" + encoded
}

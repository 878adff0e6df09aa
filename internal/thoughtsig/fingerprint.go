package thoughtsig

import (
	"encoding/json"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// FingerprintText hashes trimmed text. Whitespace-only input yields no
// fingerprint, which callers treat as "do not cache".
func FingerprintText(text string) (uint64, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0, false
	}
	return xxhash.Sum64String(trimmed), true
}

// FingerprintJSON hashes a structured value in canonical form: object keys
// sorted recursively, array order preserved. encoding/json provides exactly
// that on a decoded value (map keys marshal sorted).
func FingerprintJSON(raw []byte) (uint64, bool) {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return 0, false
	}
	canonical, err := json.Marshal(value)
	if err != nil {
		return 0, false
	}
	return xxhash.Sum64(canonical), true
}

package securestore

import "strings"

// Normalizer transforms a value into the canonical form hashed into a
// blind index. The same normalizer must be applied on write and on search;
// mixing normalizers breaks lookups.
type Normalizer func(string) string

// NormalizeFold is the default: lowercase plus trimmed whitespace, so
// equality search is case- and padding-insensitive.
var NormalizeFold Normalizer = func(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeNone is the identity normalizer for exact, case-sensitive
// matching.
var NormalizeNone Normalizer = func(s string) string {
	return s
}

// NormalizePhone keeps ASCII digits only, for format-agnostic phone
// number lookups.
var NormalizePhone Normalizer = func(s string) string {
	var digits strings.Builder
	digits.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	return digits.String()
}

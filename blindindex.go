package securestore

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	// minKeywordSourceLen is the source-string length above which keyword
	// tokens are derived. Shorter strings tokenize into near-unique
	// fragments and would explode index cardinality for no search value.
	minKeywordSourceLen = 10

	// minKeywordTokenLen is the word length above which an individual
	// token is indexed. Short connective words are skipped.
	minKeywordTokenLen = 3
)

// BlindIndexer derives deterministic keyed hashes from field values using
// a token key: a whole-value search hash for equality lookups and per-word
// keyword tokens for free-text lookups. Neither reveals the plaintext;
// both are many-to-one, so collisions yield false positives rather than
// wrong data.
type BlindIndexer struct {
	tokenKey  []byte
	normalize Normalizer
}

// NewBlindIndexer builds an indexer over tokenKey, normalizing values with
// NormalizeFold unless a different Normalizer is supplied. A missing token
// key is a fatal configuration error: hashes computed with the wrong key
// would be silently unmatchable.
func NewBlindIndexer(tokenKey []byte, normalize ...Normalizer) (*BlindIndexer, error) {
	if len(tokenKey) == 0 {
		return nil, ErrNoTokenKey
	}
	n := NormalizeFold
	if len(normalize) > 0 && normalize[0] != nil {
		n = normalize[0]
	}
	return &BlindIndexer{tokenKey: tokenKey, normalize: n}, nil
}

// SearchHash returns the hex HMAC-SHA256 of the normalized (case-folded,
// trimmed) value. Equal logical values always produce equal hashes,
// regardless of which document or field they came from — the scheme's
// core equality-search property.
func (b *BlindIndexer) SearchHash(value string) string {
	return b.keyedHash(b.normalize(value))
}

// KeywordTokens splits value on whitespace and hashes each token longer
// than three characters with the same keyed function as SearchHash.
// Sources of ten characters or fewer return nil: they are not
// token-indexed.
func (b *BlindIndexer) KeywordTokens(value string) []string {
	if len(value) <= minKeywordSourceLen {
		return nil
	}
	var tokens []string
	for _, word := range strings.Fields(strings.ToLower(value)) {
		if len(word) <= minKeywordTokenLen {
			continue
		}
		tokens = append(tokens, b.keyedHash(word))
	}
	return tokens
}

func (b *BlindIndexer) keyedHash(s string) string {
	h := hmac.New(sha256.New, b.tokenKey)
	h.Write([]byte(s))
	return hex.EncodeToString(h.Sum(nil))
}

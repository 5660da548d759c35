package securestore

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Codec orchestrates the field cipher and blind indexer across a
// document's declared field set: encrypt-and-index on write,
// decrypt-or-repair on read.
type Codec struct {
	profile  *Profile
	cipher   *FieldCipher
	indexer  *BlindIndexer
	material *KeyMaterial
}

// NewCodec wires a codec for one profile. A nil profile yields a
// passthrough codec.
func NewCodec(profile *Profile, cipher *FieldCipher, indexer *BlindIndexer, material *KeyMaterial) *Codec {
	return &Codec{profile: profile, cipher: cipher, indexer: indexer, material: material}
}

// canonicalize produces the string form that gets sealed and hashed:
// strings pass through, everything else is JSON-serialized.
func canonicalize(value any) (string, error) {
	if s, ok := value.(string); ok {
		return s, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// PrepareForWrite returns a storable copy of doc with configured encrypted
// fields sealed and blind indexes attached. Non-configured fields are
// copied verbatim.
//
// Already-sealed values are never re-encrypted; on a partial update their
// stale _hash/_keywordTokens siblings are dropped from the payload so a
// raw ciphertext update does not leave a mismatched blind index attached.
//
// A seal failure on one field never corrupts the rest of the document:
// failures are collected and surfaced as a single aggregate error.
func (c *Codec) PrepareForWrite(doc Document, partial bool) (Document, error) {
	if c.profile == nil || doc == nil {
		return copyDocument(doc), nil
	}
	out := copyDocument(doc)
	var errs []error
	for _, field := range c.profile.EncryptedFields() {
		value, present := out[field]
		if !present || value == nil {
			continue
		}
		if s, ok := value.(string); ok && IsSealed(s) {
			// Already processed. The caller is responsible for re-deriving
			// indexes if the underlying value actually changed.
			if partial {
				delete(out, hashField(field))
				delete(out, tokensField(field))
			}
			continue
		}
		canonical, err := canonicalize(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %v", ErrEncryptFailed, field, err))
			continue
		}
		sealed, err := c.cipher.Seal(canonical, c.material)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %v", ErrEncryptFailed, field, err))
			continue
		}
		out[field] = sealed
		if c.profile.Searchable(field) {
			out[hashField(field)] = c.indexer.SearchHash(canonical)
			if tokens := c.indexer.KeywordTokens(canonical); tokens != nil {
				out[tokensField(field)] = tokens
			}
		}
	}
	return out, errors.Join(errs...)
}

// Materialize converts a stored document into its caller-facing form.
//
// Sealed fields are opened and JSON-parsed (falling back to the raw
// string); sealed values that do not open are returned as stored. A field
// holding legacy plaintext is returned to the caller unchanged while its
// sealed form and recomputed blind indexes are collected into the repair
// payload (a $set document) the caller may persist asynchronously.
//
// Every _hash/_keywordTokens sibling is stripped: blind indexes are
// internal and must never leak to callers. Materialize never fails; worst
// case a field's stored value is passed through as-is.
func (c *Codec) Materialize(doc Document) (Document, Document) {
	if c.profile == nil || doc == nil {
		return copyDocument(doc), nil
	}
	out := copyDocument(doc)
	var repair Document
	for _, field := range c.profile.EncryptedFields() {
		value, present := out[field]
		if !present || value == nil {
			continue
		}
		s, isString := value.(string)
		if isString && IsSealed(s) {
			plaintext, err := c.cipher.Open(s, c.material)
			if err != nil {
				// Wrong key or corrupted envelope; leave the stored value
				// for the caller to see.
				continue
			}
			out[field] = parsePlaintext(plaintext)
			continue
		}
		// Legacy plaintext: heal it in storage without touching the value
		// returned to the caller. Foreign ciphertext-shaped strings are
		// left alone rather than double-encrypted.
		if isString && LooksEncrypted(s) {
			continue
		}
		canonical, err := canonicalize(value)
		if err != nil {
			continue
		}
		sealed, err := c.cipher.Seal(canonical, c.material)
		if err != nil {
			continue
		}
		if repair == nil {
			repair = Document{}
		}
		repair[field] = sealed
		if c.profile.Searchable(field) {
			repair[hashField(field)] = c.indexer.SearchHash(canonical)
			if tokens := c.indexer.KeywordTokens(canonical); tokens != nil {
				repair[tokensField(field)] = tokens
			}
		}
	}
	for _, field := range c.profile.SearchableFields() {
		delete(out, hashField(field))
		delete(out, tokensField(field))
	}
	return out, repair
}

// parsePlaintext restores structured values that were JSON-serialized by
// canonicalize, falling back to the raw string.
func parsePlaintext(plaintext string) any {
	var parsed any
	if err := json.Unmarshal([]byte(plaintext), &parsed); err != nil {
		return plaintext
	}
	// A bare JSON string round-trips to itself; other scalars and
	// containers come back as their structured form.
	return parsed
}

// copyDocument returns a shallow copy of doc. Field values are shared;
// the codec only ever replaces whole fields, never mutates them in place.
func copyDocument(doc Document) Document {
	if doc == nil {
		return nil
	}
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}

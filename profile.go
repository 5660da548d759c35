package securestore

import "sort"

// FieldPolicy is the per-field encryption behavior resolved at
// configuration time.
type FieldPolicy struct {
	Encrypted  bool
	Searchable bool
}

// Profile declares, once per logical record type, which fields are
// encrypted, which subset of those is searchable, and which logical key
// name governs them. Immutable after construction.
type Profile struct {
	keyName string
	fields  map[string]FieldPolicy
}

// NewProfile validates and builds a profile. Searchable fields must be a
// subset of encrypted fields, and the key name must fit the ciphertext
// envelope (1..255 bytes).
func NewProfile(keyName string, encrypted, searchable []string) (*Profile, error) {
	if keyName == "" || len(keyName) > 255 {
		return nil, ErrInvalidProfile
	}
	fields := make(map[string]FieldPolicy, len(encrypted))
	for _, f := range encrypted {
		fields[f] = FieldPolicy{Encrypted: true}
	}
	for _, f := range searchable {
		p, ok := fields[f]
		if !ok {
			return nil, ErrInvalidProfile
		}
		p.Searchable = true
		fields[f] = p
	}
	return &Profile{keyName: keyName, fields: fields}, nil
}

// KeyName returns the logical key name governing the profile's fields.
func (p *Profile) KeyName() string { return p.keyName }

// Encrypted reports whether field is configured for encryption.
func (p *Profile) Encrypted(field string) bool {
	return p != nil && p.fields[field].Encrypted
}

// Searchable reports whether field carries blind indexes.
func (p *Profile) Searchable(field string) bool {
	return p != nil && p.fields[field].Searchable
}

// EncryptedFields returns the encrypted field names in sorted order.
func (p *Profile) EncryptedFields() []string {
	if p == nil {
		return nil
	}
	out := make([]string, 0, len(p.fields))
	for f := range p.fields {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// SearchableFields returns the searchable field names in sorted order.
func (p *Profile) SearchableFields() []string {
	if p == nil {
		return nil
	}
	var out []string
	for f, pol := range p.fields {
		if pol.Searchable {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}

// hashField and tokensField name the internal blind-index siblings of a
// searchable field. They are persisted alongside the ciphertext and must
// never be returned to callers.
func hashField(field string) string   { return field + "_hash" }
func tokensField(field string) string { return field + "_keywordTokens" }

package securestore

import (
	"context"
	"errors"
	"sort"
	"strconv"

	"github.com/rs/zerolog"
)

// identityIndexName is the immutable primary identity index every
// collection carries. It is excluded from synchronization.
const identityIndexName = "_id_"

// IndexKey is one field of an index key pattern.
type IndexKey struct {
	Field string
	// Direction is 1 for ascending, -1 for descending.
	Direction int
}

// IndexSpec declares one database index.
type IndexSpec struct {
	Name   string
	Key    []IndexKey
	Unique bool
	Sparse bool
}

// sameKey reports whether two specs cover the same key pattern.
func (s IndexSpec) sameKey(other IndexSpec) bool {
	if len(s.Key) != len(other.Key) {
		return false
	}
	for i, k := range s.Key {
		if other.Key[i] != k {
			return false
		}
	}
	return true
}

// IndexOptions is the explicit object form of a declared index.
type IndexOptions struct {
	Unique    bool
	Sparse    bool
	Direction int
}

// BuildDesiredSpecs interprets the compact declarative index map and
// appends the blind-index specs the profile's searchable fields require.
//
// Declared forms, keyed by field name:
//
//	true          unique + sparse single-field ascending index
//	1 / -1        non-unique index with that sort direction
//	IndexOptions  explicit unique/sparse/direction
//
// A numeric-string key is a positional declaration whose value supplies
// the field name (array-like declarative input); it maps to a plain
// ascending index. Unrecognized values are skipped.
func BuildDesiredSpecs(declared map[string]any, profile *Profile) []IndexSpec {
	var specs []IndexSpec
	for _, key := range sortedKeys(declared) {
		field := key
		value := declared[key]
		if _, err := strconv.Atoi(key); err == nil {
			name, ok := value.(string)
			if !ok {
				continue
			}
			field = name
			value = 1
		}
		spec := IndexSpec{Name: field, Key: []IndexKey{{Field: field, Direction: 1}}}
		switch v := value.(type) {
		case bool:
			if !v {
				continue
			}
			spec.Unique = true
			spec.Sparse = true
		case int:
			if v != 1 && v != -1 {
				continue
			}
			spec.Key[0].Direction = v
		case IndexOptions:
			spec.Unique = v.Unique
			spec.Sparse = v.Sparse
			if v.Direction == -1 {
				spec.Key[0].Direction = -1
			}
		default:
			continue
		}
		specs = append(specs, spec)
	}
	for _, field := range profile.SearchableFields() {
		specs = append(specs,
			IndexSpec{Name: hashField(field), Key: []IndexKey{{Field: hashField(field), Direction: 1}}},
			IndexSpec{Name: tokensField(field), Key: []IndexKey{{Field: tokensField(field), Direction: 1}}},
		)
	}
	return specs
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// indexSynchronizer reconciles desired index specs against a collection's
// existing indexes.
type indexSynchronizer struct {
	coll Collection
	log  zerolog.Logger
}

// Sync converges the collection's indexes toward desired: create missing,
// drop-and-recreate same-named indexes whose key pattern changed, drop
// extraneous non-identity indexes. Running it twice back-to-back with no
// external interference performs zero operations the second time.
//
// Convergence is best-effort, not all-or-nothing: individual create/drop
// failures — including already-exists/not-found races with a concurrent
// synchronizer — are logged and skipped.
func (s *indexSynchronizer) Sync(ctx context.Context, desired []IndexSpec) error {
	existing, err := s.coll.ListIndexes(ctx)
	if err != nil {
		return err
	}
	byName := make(map[string]IndexSpec, len(existing))
	for _, spec := range existing {
		byName[spec.Name] = spec
	}

	wanted := make(map[string]bool, len(desired))
	for _, spec := range desired {
		wanted[spec.Name] = true
		current, ok := byName[spec.Name]
		if ok && current.sameKey(spec) {
			continue
		}
		if ok {
			// The identity index is immutable; leave it as the database
			// defines it rather than colliding on the recreate.
			if spec.Name == identityIndexName {
				continue
			}
			s.drop(ctx, spec.Name)
		}
		s.create(ctx, spec)
	}

	for _, spec := range existing {
		if spec.Name == identityIndexName || wanted[spec.Name] {
			continue
		}
		s.drop(ctx, spec.Name)
	}
	return nil
}

func (s *indexSynchronizer) create(ctx context.Context, spec IndexSpec) {
	if err := s.coll.CreateIndex(ctx, spec); err != nil {
		level := zerolog.WarnLevel
		if errors.Is(err, ErrIndexExists) {
			// Concurrent synchronizer got there first.
			level = zerolog.DebugLevel
		}
		s.log.WithLevel(level).
			Str("collection", s.coll.Name()).
			Str("index", spec.Name).
			Err(err).
			Msg("index create skipped")
	}
}

func (s *indexSynchronizer) drop(ctx context.Context, name string) {
	if err := s.coll.DropIndex(ctx, name); err != nil {
		level := zerolog.WarnLevel
		if errors.Is(err, ErrIndexNotFound) {
			level = zerolog.DebugLevel
		}
		s.log.WithLevel(level).
			Str("collection", s.coll.Name()).
			Str("index", name).
			Err(err).
			Msg("index drop skipped")
	}
}

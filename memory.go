package securestore

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryCollection is an in-process Collection implementation with
// Mongo-style predicate and update semantics. It backs the package's
// tests and works for small embedded deployments; it keeps index
// metadata for the synchronizer but answers every query by scan.
type MemoryCollection struct {
	name string

	mu      sync.RWMutex
	docs    []Document
	indexes map[string]IndexSpec
}

// NewMemoryCollection creates an empty collection carrying the implicit
// identity index.
func NewMemoryCollection(name string) *MemoryCollection {
	return &MemoryCollection{
		name: name,
		indexes: map[string]IndexSpec{
			identityIndexName: {
				Name: identityIndexName,
				Key:  []IndexKey{{Field: "_id", Direction: 1}},
			},
		},
	}
}

// Name implements Collection.
func (c *MemoryCollection) Name() string { return c.name }

// InsertOne implements Collection. A missing _id is assigned a UUID.
func (c *MemoryCollection) InsertOne(_ context.Context, doc Document) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.insertLocked(doc), nil
}

// InsertMany implements Collection.
func (c *MemoryCollection) InsertMany(_ context.Context, docs []Document) ([]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]any, len(docs))
	for i, doc := range docs {
		ids[i] = c.insertLocked(doc)
	}
	return ids, nil
}

func (c *MemoryCollection) insertLocked(doc Document) any {
	stored := deepCopyDocument(doc)
	id, ok := stored["_id"]
	if !ok {
		id = uuid.NewString()
		stored["_id"] = id
	}
	c.docs = append(c.docs, stored)
	return id
}

// UpdateOne implements Collection.
func (c *MemoryCollection) UpdateOne(_ context.Context, filter, update Document) (*UpdateResult, error) {
	return c.update(filter, update, 1)
}

// UpdateMany implements Collection.
func (c *MemoryCollection) UpdateMany(_ context.Context, filter, update Document) (*UpdateResult, error) {
	return c.update(filter, update, -1)
}

func (c *MemoryCollection) update(filter, update Document, limit int) (*UpdateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := &UpdateResult{}
	for i, doc := range c.docs {
		if limit >= 0 && res.Matched >= int64(limit) {
			break
		}
		if !matchDocument(doc, filter) {
			continue
		}
		res.Matched++
		next, err := applyUpdate(doc, update)
		if err != nil {
			return nil, err
		}
		if !reflect.DeepEqual(doc, next) {
			res.Modified++
		}
		c.docs[i] = next
	}
	return res, nil
}

// Find implements Collection.
func (c *MemoryCollection) Find(_ context.Context, filter Document, opts *FindOptions) ([]Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var results []Document
	for _, doc := range c.docs {
		if matchDocument(doc, filter) {
			results = append(results, deepCopyDocument(doc))
		}
	}
	if opts != nil {
		applySort(results, opts.Sort)
		if opts.Skip > 0 {
			if opts.Skip >= int64(len(results)) {
				results = nil
			} else {
				results = results[opts.Skip:]
			}
		}
		if opts.Limit > 0 && int64(len(results)) > opts.Limit {
			results = results[:opts.Limit]
		}
		if len(opts.Projection) > 0 {
			for i, doc := range results {
				results[i] = projectDocument(doc, opts.Projection)
			}
		}
	}
	return results, nil
}

// FindOne implements Collection. Returns ErrNotFound when nothing matches.
func (c *MemoryCollection) FindOne(ctx context.Context, filter Document, opts *FindOptions) (Document, error) {
	limited := FindOptions{Limit: 1}
	if opts != nil {
		limited = *opts
		limited.Limit = 1
	}
	results, err := c.Find(ctx, filter, &limited)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, ErrNotFound
	}
	return results[0], nil
}

// CountDocuments implements Collection.
func (c *MemoryCollection) CountDocuments(_ context.Context, filter Document) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var n int64
	for _, doc := range c.docs {
		if matchDocument(doc, filter) {
			n++
		}
	}
	return n, nil
}

// Distinct implements Collection.
func (c *MemoryCollection) Distinct(_ context.Context, field string, filter Document) ([]any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var values []any
	for _, doc := range c.docs {
		if !matchDocument(doc, filter) {
			continue
		}
		v, ok := doc[field]
		if !ok {
			continue
		}
		seen := false
		for _, prev := range values {
			if valuesEqual(prev, v) {
				seen = true
				break
			}
		}
		if !seen {
			values = append(values, v)
		}
	}
	return values, nil
}

// Aggregate implements Collection for the pipeline stages the store
// adapter relies on: $match, $sort, $limit, $count.
func (c *MemoryCollection) Aggregate(ctx context.Context, pipeline []Document) ([]Document, error) {
	c.mu.RLock()
	current := make([]Document, 0, len(c.docs))
	for _, doc := range c.docs {
		current = append(current, deepCopyDocument(doc))
	}
	c.mu.RUnlock()

	for _, stage := range pipeline {
		switch {
		case stage["$match"] != nil:
			filter, ok := toDocument(stage["$match"])
			if !ok {
				return nil, fmt.Errorf("securestore: malformed $match stage")
			}
			var kept []Document
			for _, doc := range current {
				if matchDocument(doc, filter) {
					kept = append(kept, doc)
				}
			}
			current = kept
		case stage["$sort"] != nil:
			spec, ok := toDocument(stage["$sort"])
			if !ok {
				return nil, fmt.Errorf("securestore: malformed $sort stage")
			}
			var fields []SortField
			for _, f := range sortedKeys(spec) {
				dir, _ := toFloat(spec[f])
				fields = append(fields, SortField{Field: f, Desc: dir < 0})
			}
			applySort(current, fields)
		case stage["$limit"] != nil:
			n, ok := toFloat(stage["$limit"])
			if !ok {
				return nil, fmt.Errorf("securestore: malformed $limit stage")
			}
			if int64(len(current)) > int64(n) {
				current = current[:int64(n)]
			}
		case stage["$count"] != nil:
			field, ok := stage["$count"].(string)
			if !ok {
				return nil, fmt.Errorf("securestore: malformed $count stage")
			}
			return []Document{{field: int64(len(current))}}, nil
		default:
			return nil, fmt.Errorf("securestore: unsupported aggregation stage %v", sortedKeys(stage))
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return current, nil
}

// ListIndexes implements Collection.
func (c *MemoryCollection) ListIndexes(_ context.Context) ([]IndexSpec, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	specs := make([]IndexSpec, 0, len(c.indexes))
	for _, name := range sortedIndexNames(c.indexes) {
		specs = append(specs, c.indexes[name])
	}
	return specs, nil
}

// CreateIndex implements Collection.
func (c *MemoryCollection) CreateIndex(_ context.Context, spec IndexSpec) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.indexes[spec.Name]; exists {
		return fmt.Errorf("%w: %s", ErrIndexExists, spec.Name)
	}
	c.indexes[spec.Name] = spec
	return nil
}

// DropIndex implements Collection.
func (c *MemoryCollection) DropIndex(_ context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.indexes[name]; !exists {
		return fmt.Errorf("%w: %s", ErrIndexNotFound, name)
	}
	delete(c.indexes, name)
	return nil
}

func sortedIndexNames(m map[string]IndexSpec) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ────────────────────────────────────────────────────────────────────────
// Predicate evaluation
// ────────────────────────────────────────────────────────────────────────

// matchDocument evaluates a Mongo-style predicate against doc.
func matchDocument(doc, filter Document) bool {
	for key, cond := range filter {
		switch key {
		case "$or":
			branches, ok := toBranches(cond)
			if !ok || !anyMatch(doc, branches) {
				return false
			}
		case "$and":
			branches, ok := toBranches(cond)
			if !ok {
				return false
			}
			for _, b := range branches {
				if !matchDocument(doc, b) {
					return false
				}
			}
		case "$nor":
			branches, ok := toBranches(cond)
			if !ok || anyMatch(doc, branches) {
				return false
			}
		default:
			if !matchField(doc, key, cond) {
				return false
			}
		}
	}
	return true
}

func anyMatch(doc Document, branches []Document) bool {
	for _, b := range branches {
		if matchDocument(doc, b) {
			return true
		}
	}
	return false
}

func toBranches(v any) ([]Document, bool) {
	switch arr := v.(type) {
	case []Document:
		return arr, true
	case []any:
		out := make([]Document, 0, len(arr))
		for _, e := range arr {
			d, ok := toDocument(e)
			if !ok {
				return nil, false
			}
			out = append(out, d)
		}
		return out, true
	default:
		return nil, false
	}
}

func toDocument(v any) (Document, bool) {
	switch d := v.(type) {
	case Document:
		return d, true
	default:
		return nil, false
	}
}

func matchField(doc Document, field string, cond any) bool {
	value, present := doc[field]
	if ops, ok := toDocument(cond); ok && hasOperator(ops) {
		return matchOperators(value, present, ops)
	}
	if !present {
		return cond == nil
	}
	return valuesEqual(value, cond) || arrayContains(value, cond)
}

func hasOperator(d Document) bool {
	for k := range d {
		if len(k) > 0 && k[0] == '$' {
			return true
		}
	}
	return false
}

func matchOperators(value any, present bool, ops Document) bool {
	for op, operand := range ops {
		switch op {
		case "$exists":
			want, _ := operand.(bool)
			if present != want {
				return false
			}
		case "$eq":
			if !present || !(valuesEqual(value, operand) || arrayContains(value, operand)) {
				return false
			}
		case "$ne":
			if present && (valuesEqual(value, operand) || arrayContains(value, operand)) {
				return false
			}
		case "$in":
			arr, ok := operand.([]any)
			if !ok || !present {
				return false
			}
			found := false
			for _, e := range arr {
				if valuesEqual(value, e) || arrayContains(value, e) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		case "$gt", "$gte", "$lt", "$lte":
			if !present || !compareOrdered(value, operand, op) {
				return false
			}
		default:
			// Unknown operator: no match rather than a crash.
			return false
		}
	}
	return true
}

// valuesEqual compares with numeric cross-type tolerance (int vs float64,
// the usual JSON decoding split).
func valuesEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		bf, bok := toFloat(b)
		return bok && af == bf
	}
	return reflect.DeepEqual(a, b)
}

// arrayContains mirrors the document-database convention that an equality
// predicate against an array field matches any element.
func arrayContains(value, element any) bool {
	switch arr := value.(type) {
	case []any:
		for _, e := range arr {
			if valuesEqual(e, element) {
				return true
			}
		}
	case []string:
		s, ok := element.(string)
		if !ok {
			return false
		}
		for _, e := range arr {
			if e == s {
				return true
			}
		}
	}
	return false
}

func compareOrdered(value, operand any, op string) bool {
	if vf, ok := toFloat(value); ok {
		of, ok := toFloat(operand)
		if !ok {
			return false
		}
		switch op {
		case "$gt":
			return vf > of
		case "$gte":
			return vf >= of
		case "$lt":
			return vf < of
		case "$lte":
			return vf <= of
		}
	}
	vs, vok := value.(string)
	os, ook := operand.(string)
	if vok && ook {
		switch op {
		case "$gt":
			return vs > os
		case "$gte":
			return vs >= os
		case "$lt":
			return vs < os
		case "$lte":
			return vs <= os
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// ────────────────────────────────────────────────────────────────────────
// Updates
// ────────────────────────────────────────────────────────────────────────

// applyUpdate applies $set/$unset/$inc/$push operators, or treats update
// as a full replacement (preserving _id) when it carries no operators.
func applyUpdate(doc, update Document) (Document, error) {
	if !hasOperator(update) {
		next := deepCopyDocument(update)
		next["_id"] = doc["_id"]
		return next, nil
	}
	next := deepCopyDocument(doc)
	for op, operand := range update {
		fields, ok := toDocument(operand)
		if !ok {
			return nil, fmt.Errorf("securestore: malformed update operator %s", op)
		}
		switch op {
		case "$set":
			for f, v := range fields {
				next[f] = v
			}
		case "$unset":
			for f := range fields {
				delete(next, f)
			}
		case "$inc":
			for f, v := range fields {
				delta, ok := toFloat(v)
				if !ok {
					return nil, fmt.Errorf("securestore: non-numeric $inc on %s", f)
				}
				current, _ := toFloat(next[f])
				next[f] = current + delta
			}
		case "$push":
			for f, v := range fields {
				arr, _ := next[f].([]any)
				next[f] = append(arr, v)
			}
		default:
			return nil, fmt.Errorf("securestore: unsupported update operator %s", op)
		}
	}
	return next, nil
}

// ────────────────────────────────────────────────────────────────────────
// Sort / projection / copies
// ────────────────────────────────────────────────────────────────────────

func applySort(docs []Document, fields []SortField) {
	if len(fields) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, f := range fields {
			cmp := compareForSort(docs[i][f.Field], docs[j][f.Field])
			if cmp == 0 {
				continue
			}
			if f.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func compareForSort(a, b any) int {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		switch {
		case as < bs:
			return -1
		case as > bs:
			return 1
		}
		return 0
	}
	// Missing or incomparable values sort first.
	if a == nil && b != nil {
		return -1
	}
	if a != nil && b == nil {
		return 1
	}
	return 0
}

func projectDocument(doc Document, projection map[string]int) Document {
	include := false
	for _, mode := range projection {
		if mode != 0 {
			include = true
			break
		}
	}
	out := Document{}
	if include {
		for f, mode := range projection {
			if mode == 0 {
				continue
			}
			if v, ok := doc[f]; ok {
				out[f] = v
			}
		}
		if _, excluded := projection["_id"]; !excluded {
			if v, ok := doc["_id"]; ok {
				out["_id"] = v
			}
		}
		return out
	}
	for f, v := range doc {
		if _, drop := projection[f]; drop {
			continue
		}
		out[f] = v
	}
	return out
}

// deepCopyDocument copies doc including nested documents and arrays so
// callers can never mutate stored state.
func deepCopyDocument(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case Document:
		return deepCopyDocument(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	case []Document:
		out := make([]Document, len(t))
		for i, e := range t {
			out[i] = deepCopyDocument(e)
		}
		return out
	default:
		return v
	}
}

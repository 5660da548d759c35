package securestore

import "context"

// Document is an arbitrary mapping of field names to values, the unit of
// storage and query throughout the package.
type Document = map[string]any

// SortField orders query results by one field.
type SortField struct {
	Field string
	// Desc sorts descending when true.
	Desc bool
}

// FindOptions carries the optional knobs of Find/FindOne.
type FindOptions struct {
	Sort  []SortField
	Limit int64
	Skip  int64
	// Projection selects fields: value 1 includes (whitelist mode),
	// value 0 excludes (blacklist mode). Empty means all fields.
	Projection map[string]int
}

// UpdateResult reports how many documents an update touched.
type UpdateResult struct {
	Matched  int64
	Modified int64
}

// Collection is the generic document-collection handle the store adapter
// is built around. Implementations wrap a real document database; the
// package ships MemoryCollection for tests and embedded use.
//
// Index conflict errors must be distinguishable: CreateIndex on a taken
// name returns ErrIndexExists (possibly wrapped) and DropIndex on a
// missing name returns ErrIndexNotFound, so concurrent synchronizers can
// treat the races as benign.
type Collection interface {
	Name() string

	InsertOne(ctx context.Context, doc Document) (any, error)
	InsertMany(ctx context.Context, docs []Document) ([]any, error)

	UpdateOne(ctx context.Context, filter, update Document) (*UpdateResult, error)
	UpdateMany(ctx context.Context, filter, update Document) (*UpdateResult, error)

	Find(ctx context.Context, filter Document, opts *FindOptions) ([]Document, error)
	FindOne(ctx context.Context, filter Document, opts *FindOptions) (Document, error)

	CountDocuments(ctx context.Context, filter Document) (int64, error)
	Distinct(ctx context.Context, field string, filter Document) ([]any, error)
	Aggregate(ctx context.Context, pipeline []Document) ([]Document, error)

	ListIndexes(ctx context.Context) ([]IndexSpec, error)
	CreateIndex(ctx context.Context, spec IndexSpec) error
	DropIndex(ctx context.Context, name string) error
}

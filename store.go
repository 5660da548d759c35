package securestore

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Store is the public surface consumed by domain callers: a document
// collection wrapped with transparent field encryption, blind-index query
// rewriting, self-repair, and declarative index synchronization.
//
// All collaborators — the collection handle, key provider, cipher — are
// explicitly constructed and injected; the store holds no process-wide
// state. One Store instance serves one collection and one encryption
// profile.
type Store struct {
	coll     Collection
	profile  *Profile
	keys     KeyProvider
	cipher   *FieldCipher
	indexer  *BlindIndexer
	material *KeyMaterial
	codec    *Codec
	rewriter *queryRewriter
	declared map[string]any
	log      zerolog.Logger

	synced  atomic.Bool
	syncMu  sync.Mutex
	repairs sync.WaitGroup
}

// Option configures a Store.
type Option func(*Store)

// WithProfile declares which fields are encrypted, which subset is
// searchable, and which logical key name governs them.
func WithProfile(p *Profile) Option {
	return func(s *Store) { s.profile = p }
}

// WithKeys sets the key provider the profile's key name is resolved
// against.
func WithKeys(kp KeyProvider) Option {
	return func(s *Store) { s.keys = kp }
}

// WithIndexes declares the desired index map synchronized lazily before
// the first index-dependent operation. See BuildDesiredSpecs for the
// accepted forms.
func WithIndexes(declared map[string]any) Option {
	return func(s *Store) { s.declared = declared }
}

// WithLogger routes index-sync and self-repair outcomes somewhere
// observable. Default is zerolog.Nop().
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// WithCipher overrides the field cipher (e.g. to tune the compression
// threshold).
func WithCipher(c *FieldCipher) Option {
	return func(s *Store) { s.cipher = c }
}

// NewStore wires a store around coll. When a profile is configured, key
// material is resolved eagerly: a key provider failure here is fatal,
// because writing documents without key material would make them
// unreadable later.
func NewStore(coll Collection, opts ...Option) (*Store, error) {
	s := &Store{
		coll:   coll,
		cipher: NewFieldCipher(),
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.profile != nil {
		if s.keys == nil {
			return nil, ErrNoKeyMaterial
		}
		material, err := s.keys.Get(s.profile.KeyName())
		if err != nil {
			return nil, err
		}
		indexer, err := NewBlindIndexer(material.TokenKey)
		if err != nil {
			return nil, err
		}
		s.material = material
		s.indexer = indexer
	}
	s.codec = NewCodec(s.profile, s.cipher, s.indexer, s.material)
	s.rewriter = &queryRewriter{profile: s.profile, indexer: s.indexer}
	return s, nil
}

// ────────────────────────────────────────────────────────────────────────
// Index synchronization
// ────────────────────────────────────────────────────────────────────────

// EnsureIndexes runs index synchronization if it has not run yet for this
// instance. It is called automatically before every operation that
// depends on index-backed search.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if s.synced.Load() {
		return nil
	}
	return s.SyncIndexes(ctx)
}

// SyncIndexes forces a synchronization run regardless of the lazy flag.
// Individual create/drop failures are logged and skipped; only listing
// failures propagate.
func (s *Store) SyncIndexes(ctx context.Context) error {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	desired := BuildDesiredSpecs(s.declared, s.profile)
	sync := &indexSynchronizer{coll: s.coll, log: s.log}
	if err := sync.Sync(ctx, desired); err != nil {
		s.log.Warn().
			Str("collection", s.coll.Name()).
			Err(err).
			Msg("index sync failed")
		return err
	}
	s.synced.Store(true)
	return nil
}

// ────────────────────────────────────────────────────────────────────────
// Writes
// ────────────────────────────────────────────────────────────────────────

// InsertOne encrypts configured fields, attaches blind indexes, and
// inserts the document. Returns the stored document's identity.
func (s *Store) InsertOne(ctx context.Context, doc Document) (any, error) {
	if err := s.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	stored, err := s.codec.PrepareForWrite(doc, false)
	if err != nil {
		return nil, err
	}
	return s.coll.InsertOne(ctx, stored)
}

// InsertMany encrypts and inserts a batch of documents.
func (s *Store) InsertMany(ctx context.Context, docs []Document) ([]any, error) {
	if err := s.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	stored := make([]Document, len(docs))
	for i, doc := range docs {
		prepared, err := s.codec.PrepareForWrite(doc, false)
		if err != nil {
			return nil, err
		}
		stored[i] = prepared
	}
	return s.coll.InsertMany(ctx, stored)
}

// UpdateOne rewrites the filter against blind indexes and encrypts any
// configured fields in the update payload. A $set payload is treated as a
// partial write; an operator-free replacement document as a full write.
func (s *Store) UpdateOne(ctx context.Context, filter, update Document) (*UpdateResult, error) {
	if err := s.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	prepared, err := s.prepareUpdate(update)
	if err != nil {
		return nil, err
	}
	return s.coll.UpdateOne(ctx, s.rewriter.Rewrite(filter), prepared)
}

// UpdateMany is the multi-document form of UpdateOne.
func (s *Store) UpdateMany(ctx context.Context, filter, update Document) (*UpdateResult, error) {
	if err := s.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	prepared, err := s.prepareUpdate(update)
	if err != nil {
		return nil, err
	}
	return s.coll.UpdateMany(ctx, s.rewriter.Rewrite(filter), prepared)
}

// prepareUpdate encrypts configured fields inside an update document.
// Operators other than $set pass through: increments and pushes against
// encrypted fields are not supported and would not match ciphertext.
func (s *Store) prepareUpdate(update Document) (Document, error) {
	if update == nil {
		return nil, nil
	}
	if set, ok := update["$set"].(Document); ok {
		preparedSet, err := s.codec.PrepareForWrite(set, true)
		if err != nil {
			return nil, err
		}
		out := copyDocument(update)
		out["$set"] = preparedSet
		return out, nil
	}
	if hasOperator(update) {
		return copyDocument(update), nil
	}
	return s.codec.PrepareForWrite(update, false)
}

// ────────────────────────────────────────────────────────────────────────
// Reads
// ────────────────────────────────────────────────────────────────────────

// Find rewrites the query, fetches matching documents, and materializes
// each one: fields are decrypted (or self-repaired) and internal index
// fields stripped. Results never contain blind-index fields.
func (s *Store) Find(ctx context.Context, query Document, opts *FindOptions) ([]Document, error) {
	if err := s.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	stored, err := s.coll.Find(ctx, s.rewriter.Rewrite(query), opts)
	if err != nil {
		return nil, err
	}
	results := make([]Document, len(stored))
	for i, doc := range stored {
		results[i] = s.materialize(doc)
	}
	return results, nil
}

// FindOne is the single-document form of Find. Returns ErrNotFound when
// nothing matches.
func (s *Store) FindOne(ctx context.Context, query Document, opts *FindOptions) (Document, error) {
	if err := s.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	stored, err := s.coll.FindOne(ctx, s.rewriter.Rewrite(query), opts)
	if err != nil {
		return nil, err
	}
	return s.materialize(stored), nil
}

// materialize decrypts a stored document and, when legacy plaintext was
// found in an encrypted field, issues a detached best-effort repair write.
// The caller's result is fully built before the repair is issued, so a
// repair failure can never fail the read.
func (s *Store) materialize(stored Document) Document {
	result, repair := s.codec.Materialize(stored)
	if repair == nil {
		return result
	}
	id, ok := stored["_id"]
	if !ok {
		// No identity to key the repair write by.
		return result
	}
	s.repairs.Add(1)
	go func() {
		defer s.repairs.Done()
		// Independent of the caller's context: an abandoned read must not
		// cancel the heal. Repair is idempotent — once the field is sealed
		// the next read finds nothing to repair.
		if _, err := s.coll.UpdateOne(context.Background(), Document{"_id": id}, Document{"$set": repair}); err != nil {
			s.log.Warn().
				Str("collection", s.coll.Name()).
				Any("id", id).
				Err(err).
				Msg("field self-repair failed")
			return
		}
		s.log.Debug().
			Str("collection", s.coll.Name()).
			Any("id", id).
			Msg("field self-repair applied")
	}()
	return result
}

// FlushRepairs blocks until all in-flight self-repair writes issued by
// this instance have finished. Intended for tests and shutdown paths.
func (s *Store) FlushRepairs() {
	s.repairs.Wait()
}

// ────────────────────────────────────────────────────────────────────────
// Counts, distinct, aggregation
// ────────────────────────────────────────────────────────────────────────

// Count returns the number of documents matching the (rewritten) query.
func (s *Store) Count(ctx context.Context, query Document) (int64, error) {
	if err := s.EnsureIndexes(ctx); err != nil {
		return 0, err
	}
	return s.coll.CountDocuments(ctx, s.rewriter.Rewrite(query))
}

// Distinct returns the distinct values of field among documents matching
// the (rewritten) query. Distinct over an encrypted field returns
// ciphertext values; equality of plaintext is not recoverable from them.
func (s *Store) Distinct(ctx context.Context, field string, query Document) ([]any, error) {
	if err := s.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	return s.coll.Distinct(ctx, field, s.rewriter.Rewrite(query))
}

// Aggregate runs a pipeline with $match stages rewritten against blind
// indexes. Result documents are materialized without self-repair:
// aggregation output need not correspond one-to-one to stored documents.
func (s *Store) Aggregate(ctx context.Context, pipeline []Document) ([]Document, error) {
	if err := s.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	rewritten := make([]Document, len(pipeline))
	for i, stage := range pipeline {
		if match, ok := stage["$match"].(Document); ok {
			out := copyDocument(stage)
			out["$match"] = s.rewriter.Rewrite(match)
			rewritten[i] = out
			continue
		}
		rewritten[i] = stage
	}
	raw, err := s.coll.Aggregate(ctx, rewritten)
	if err != nil {
		return nil, err
	}
	results := make([]Document, len(raw))
	for i, doc := range raw {
		materialized, _ := s.codec.Materialize(doc)
		results[i] = materialized
	}
	return results, nil
}

// ────────────────────────────────────────────────────────────────────────
// Administrative passthroughs
// ────────────────────────────────────────────────────────────────────────

// ListIndexes exposes the collection's current indexes.
func (s *Store) ListIndexes(ctx context.Context) ([]IndexSpec, error) {
	return s.coll.ListIndexes(ctx)
}

// CreateIndex creates an index outside the declarative map. A later sync
// run will drop it again unless it is also declared.
func (s *Store) CreateIndex(ctx context.Context, spec IndexSpec) error {
	return s.coll.CreateIndex(ctx, spec)
}

// DropIndex drops an index by name.
func (s *Store) DropIndex(ctx context.Context, name string) error {
	return s.coll.DropIndex(ctx, name)
}

// Collection exposes the underlying handle for operations outside this
// package's surface.
func (s *Store) Collection() Collection {
	return s.coll
}

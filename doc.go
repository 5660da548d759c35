// Package securestore provides transparent, searchable, field-level
// encryption in front of a generic document collection.
//
// Application code reads and writes documents as if they were plaintext
// while configured fields are opaque ciphertext at rest. Configured
// searchable fields remain equality- and keyword-searchable through blind
// indexes — deterministic keyed hashes stored alongside the ciphertext —
// so the database never sees a decryptable form of the indexed values.
//
// # Encryption
//
// Fields are sealed with anonymous public-key encryption
// (curve25519/XSalsa20-Poly1305, NaCl sealed boxes): encryption needs only
// the public key and no caller-managed nonce, decryption needs the secret
// key. Large plaintext is zstd-compressed inside the envelope. Key
// material is generated lazily per logical key name and persisted with
// owner-only file permissions.
//
// # Basic usage
//
//	keys, err := securestore.NewFileKeyStore("/var/lib/app/keys")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	profile, err := securestore.NewProfile("card_master_key",
//	    []string{"wallet", "notes"}, // encrypted
//	    []string{"wallet"},          // searchable subset
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store, err := securestore.NewStore(coll,
//	    securestore.WithKeys(keys),
//	    securestore.WithProfile(profile),
//	    securestore.WithIndexes(map[string]any{"email": true}),
//	)
//
//	// Writes encrypt transparently.
//	_, _ = store.InsertOne(ctx, securestore.Document{
//	    "email":  "alice@example.com",
//	    "wallet": "0xABCDEF1234567890",
//	})
//
//	// Queries may use plaintext values on searchable fields; they are
//	// rewritten to blind-index predicates before reaching the database.
//	doc, _ := store.FindOne(ctx, securestore.Document{
//	    "wallet": "0xABCDEF1234567890",
//	}, nil)
//
// # Keyword search
//
// String values longer than ten characters additionally get per-word
// keyword tokens. The reserved "keyword" query key expands into a
// disjunction over every searchable field's token array:
//
//	docs, _ := store.Find(ctx, securestore.Document{"keyword": "hello"}, nil)
//
// # Self-repair
//
// Documents written before encryption was enabled are healed on read:
// the plaintext value is returned to the caller unchanged while a
// detached write replaces the stored value with ciphertext and fresh
// blind indexes. A read never fails because of a field that cannot be
// decrypted; worst case the stored value is returned as-is.
//
// # Index synchronization
//
// A declarative index map, augmented with the blind-index fields the
// searchable configuration requires, is reconciled against the
// collection's existing indexes (create missing, recreate changed, drop
// extraneous). The sync runs lazily once per Store instance and is
// best-effort: individual create/drop conflicts are logged and skipped,
// so concurrent instances converge without a distributed lock.
package securestore

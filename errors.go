package securestore

import "errors"

var (
	// ErrDecryptionFailed indicates a sealed value could not be opened with
	// the configured key material (wrong key or corrupted data). This is an
	// expected outcome on the read path, not a crash condition.
	ErrDecryptionFailed = errors.New("securestore: decryption failed")

	// ErrNotSealed indicates the value carries no ciphertext marker and is
	// therefore plaintext (or foreign data) from this package's view.
	ErrNotSealed = errors.New("securestore: value is not sealed")

	// ErrInvalidFormat indicates a marked ciphertext envelope is malformed.
	ErrInvalidFormat = errors.New("securestore: invalid ciphertext format")

	// ErrDecompressionFailed indicates zstd decompression of the sealed
	// payload failed.
	ErrDecompressionFailed = errors.New("securestore: decompression failed")

	// ErrKeyNotFound indicates the requested key name is not available from
	// the key provider.
	ErrKeyNotFound = errors.New("securestore: key material not found")

	// ErrInvalidKeyName indicates a key name the ciphertext envelope cannot
	// carry: empty, or longer than the 255 bytes its length byte can encode.
	ErrInvalidKeyName = errors.New("securestore: invalid key name")

	// ErrNoKeyMaterial indicates an operation that needs key material ran
	// without a key provider or resolved material.
	ErrNoKeyMaterial = errors.New("securestore: no key material configured")

	// ErrNoTokenKey indicates a blind index was requested without a token
	// (MAC) key. Fatal configuration error.
	ErrNoTokenKey = errors.New("securestore: no token key configured")

	// ErrInvalidProfile indicates an encryption profile whose searchable
	// field set is not a subset of its encrypted field set, or an empty
	// key name.
	ErrInvalidProfile = errors.New("securestore: invalid encryption profile")

	// ErrEncryptFailed wraps per-field encryption failures on the write
	// path; the aggregate carries one entry per failed field.
	ErrEncryptFailed = errors.New("securestore: field encryption failed")

	// ErrIndexExists is returned by a collection when creating an index
	// whose name is already taken. The synchronizer treats it as benign.
	ErrIndexExists = errors.New("securestore: index already exists")

	// ErrIndexNotFound is returned by a collection when dropping an index
	// that does not exist. The synchronizer treats it as benign.
	ErrIndexNotFound = errors.New("securestore: index not found")

	// ErrNotFound is returned by FindOne when no document matches.
	ErrNotFound = errors.New("securestore: document not found")
)

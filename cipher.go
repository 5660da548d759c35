package securestore

import (
	"crypto/rand"

	"golang.org/x/crypto/nacl/box"
)

// FieldCipher seals and opens individual field values with anonymous
// public-key encryption (NaCl sealed boxes). It is stateless given key
// material and safe for concurrent use: encryption needs only the public
// key and no caller-managed nonce, decryption needs the secret key.
type FieldCipher struct {
	// CompressThreshold is the minimum plaintext size in bytes before zstd
	// compression is attempted inside the envelope. Zero means the default
	// (1 KiB); negative disables compression.
	CompressThreshold int
}

// NewFieldCipher returns a cipher with default settings.
func NewFieldCipher() *FieldCipher {
	return &FieldCipher{}
}

// Seal encrypts plaintext under km's public key and returns the armored
// ciphertext string.
func (c *FieldCipher) Seal(plaintext string, km *KeyMaterial) (string, error) {
	if km == nil || km.PublicKey == nil {
		return "", ErrNoKeyMaterial
	}
	// The envelope stores the key name length in one byte; a longer name
	// would truncate silently and make the value unreadable.
	if len(km.KeyName) == 0 || len(km.KeyName) > 255 {
		return "", ErrInvalidKeyName
	}
	threshold := c.CompressThreshold
	if threshold < 0 {
		threshold = int(^uint(0) >> 1) // effectively never
	}
	payload, flag := maybeCompress([]byte(plaintext), threshold)
	sealed, err := box.SealAnonymous(nil, payload, km.PublicKey, rand.Reader)
	if err != nil {
		return "", err
	}
	return encodeEnvelope(flag, km.KeyName, sealed), nil
}

// Open decrypts a value produced by Seal.
//
// Failure is a normal, expected outcome: ErrNotSealed for values without
// the ciphertext marker (legacy plaintext), ErrDecryptionFailed when the
// box does not open under km (wrong key, corrupted data). Callers
// interpret these rather than treating them as crashes.
func (c *FieldCipher) Open(value string, km *KeyMaterial) (string, error) {
	if km == nil || km.SecretKey == nil || km.PublicKey == nil {
		return "", ErrNoKeyMaterial
	}
	flag, _, sealed, err := decodeEnvelope(value)
	if err != nil {
		return "", err
	}
	payload, ok := box.OpenAnonymous(nil, sealed, km.PublicKey, km.SecretKey)
	if !ok {
		return "", ErrDecryptionFailed
	}
	plaintext, err := decompress(payload, flag)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

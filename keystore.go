package securestore

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/nacl/box"
)

const tokenKeySize = 32

// KeyMaterial holds the secrets governing one logical key name: a
// curve25519 keypair for sealed field encryption and a separate token key
// for blind indexing.
//
// The token key is independent entropy, never derived from the keypair, so
// compromising the index MAC key reveals nothing about the encryption key
// and vice versa.
type KeyMaterial struct {
	KeyName   string
	SecretKey *[32]byte
	PublicKey *[32]byte
	TokenKey  []byte
}

// KeyProvider supplies key material by logical key name.
// Implement this interface to integrate with external key management
// systems; FileKeyStore and StaticKeyProvider cover local deployments.
type KeyProvider interface {
	// Get returns the material for keyName, creating it if the provider
	// supports generation. Errors are fatal: continuing without key
	// material would produce documents that can never be read back.
	Get(keyName string) (*KeyMaterial, error)

	// Exists reports whether material for keyName is already present.
	Exists(keyName string) bool
}

// keyFile is the on-disk JSON layout of one key name's material.
type keyFile struct {
	SecretKey string `json:"secret_key"`
	PublicKey string `json:"public_key"`
	TokenKey  string `json:"token_key"`
}

// FileKeyStore persists key material as one JSON file per key name under a
// directory with owner-only permissions. Material is generated lazily on
// first Get and cached for the store's lifetime.
type FileKeyStore struct {
	dir string

	mu    sync.Mutex
	cache map[string]*KeyMaterial
}

// NewFileKeyStore creates (if needed) the key directory with mode 0700 and
// returns a store over it.
func NewFileKeyStore(dir string) (*FileKeyStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("securestore: create key directory: %w", err)
	}
	return &FileKeyStore{
		dir:   dir,
		cache: make(map[string]*KeyMaterial),
	}, nil
}

// Get implements KeyProvider. Missing material is generated and persisted;
// persistence failures propagate because silent loss of key material would
// make every subsequent document unreadable.
func (s *FileKeyStore) Get(keyName string) (*KeyMaterial, error) {
	if keyName == "" {
		return nil, ErrKeyNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if km, ok := s.cache[keyName]; ok {
		return km, nil
	}

	km, err := s.load(keyName)
	if os.IsNotExist(err) {
		km, err = s.generate(keyName)
	}
	if err != nil {
		return nil, err
	}
	s.cache[keyName] = km
	return km, nil
}

// Exists implements KeyProvider.
func (s *FileKeyStore) Exists(keyName string) bool {
	s.mu.Lock()
	_, cached := s.cache[keyName]
	s.mu.Unlock()
	if cached {
		return true
	}
	_, err := os.Stat(s.path(keyName))
	return err == nil
}

func (s *FileKeyStore) path(keyName string) string {
	return filepath.Join(s.dir, keyName+".json")
}

func (s *FileKeyStore) load(keyName string) (*KeyMaterial, error) {
	raw, err := os.ReadFile(s.path(keyName))
	if err != nil {
		return nil, err
	}
	var kf keyFile
	if err := json.Unmarshal(raw, &kf); err != nil {
		return nil, fmt.Errorf("securestore: parse key file %q: %w", keyName, err)
	}
	sec, err := decodeKey32(kf.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("securestore: key file %q: %w", keyName, err)
	}
	pub, err := decodeKey32(kf.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("securestore: key file %q: %w", keyName, err)
	}
	tok, err := base64.StdEncoding.DecodeString(kf.TokenKey)
	if err != nil || len(tok) != tokenKeySize {
		return nil, fmt.Errorf("securestore: key file %q: malformed token key", keyName)
	}
	return &KeyMaterial{KeyName: keyName, SecretKey: sec, PublicKey: pub, TokenKey: tok}, nil
}

func (s *FileKeyStore) generate(keyName string) (*KeyMaterial, error) {
	pub, sec, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("securestore: generate keypair: %w", err)
	}
	tok := make([]byte, tokenKeySize)
	if _, err := io.ReadFull(rand.Reader, tok); err != nil {
		return nil, fmt.Errorf("securestore: generate token key: %w", err)
	}
	km := &KeyMaterial{KeyName: keyName, SecretKey: sec, PublicKey: pub, TokenKey: tok}
	if err := s.persist(km); err != nil {
		return nil, err
	}
	return km, nil
}

func (s *FileKeyStore) persist(km *KeyMaterial) error {
	kf := keyFile{
		SecretKey: base64.StdEncoding.EncodeToString(km.SecretKey[:]),
		PublicKey: base64.StdEncoding.EncodeToString(km.PublicKey[:]),
		TokenKey:  base64.StdEncoding.EncodeToString(km.TokenKey),
	}
	raw, err := json.Marshal(kf)
	if err != nil {
		return fmt.Errorf("securestore: encode key file: %w", err)
	}
	// Write-then-rename so a crash mid-write never leaves a truncated key
	// file behind.
	tmp := s.path(km.KeyName) + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("securestore: persist key %q: %w", km.KeyName, err)
	}
	if err := os.Rename(tmp, s.path(km.KeyName)); err != nil {
		return fmt.Errorf("securestore: persist key %q: %w", km.KeyName, err)
	}
	return nil
}

func decodeKey32(s string) (*[32]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes, got %d", len(raw))
	}
	var k [32]byte
	copy(k[:], raw)
	return &k, nil
}

// StaticKeyProvider is an in-memory KeyProvider. Useful for tests or
// deployments where key material is injected from elsewhere.
type StaticKeyProvider struct {
	mu   sync.Mutex
	keys map[string]*KeyMaterial
}

// NewStaticKeyProvider creates a provider seeded with the given material.
func NewStaticKeyProvider(keys ...*KeyMaterial) *StaticKeyProvider {
	m := make(map[string]*KeyMaterial, len(keys))
	for _, km := range keys {
		m[km.KeyName] = km
	}
	return &StaticKeyProvider{keys: m}
}

// Get implements KeyProvider. Unknown key names are generated in memory so
// tests need no filesystem.
func (p *StaticKeyProvider) Get(keyName string) (*KeyMaterial, error) {
	if keyName == "" {
		return nil, ErrKeyNotFound
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if km, ok := p.keys[keyName]; ok {
		return km, nil
	}
	km, err := GenerateKeyMaterial(keyName)
	if err != nil {
		return nil, err
	}
	p.keys[keyName] = km
	return km, nil
}

// Exists implements KeyProvider.
func (p *StaticKeyProvider) Exists(keyName string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.keys[keyName]
	return ok
}

// GenerateKeyMaterial creates fresh, unpersisted key material for keyName.
func GenerateKeyMaterial(keyName string) (*KeyMaterial, error) {
	pub, sec, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("securestore: generate keypair: %w", err)
	}
	tok := make([]byte, tokenKeySize)
	if _, err := io.ReadFull(rand.Reader, tok); err != nil {
		return nil, fmt.Errorf("securestore: generate token key: %w", err)
	}
	return &KeyMaterial{KeyName: keyName, SecretKey: sec, PublicKey: pub, TokenKey: tok}, nil
}

package cellcrypt

import (
	"crypto/rand"
	"crypto/subtle"
	"strings"
)

// KeyEncryptionAlgorithm is the only algorithm accepted for wrapping column keys.
const KeyEncryptionAlgorithm = "RSA_OAEP"

// ColumnKey is implemented by *DataEncryptionKey and *ProtectedDataEncryptionKey.
// Engines and settings accept either.
type ColumnKey interface {
	// Name returns the key name.
	Name() string

	dataKey() *DataEncryptionKey
}

// DataEncryptionKey is a named 32-byte root key with its derived sub-keys.
// It is immutable and safe for concurrent use.
type DataEncryptionKey struct {
	name string
	root []byte
	keys *derivedKeys
}

// NewDataEncryptionKey creates a key from existing root key material.
// The root key is copied; the caller may zero the original afterwards.
func NewDataEncryptionKey(name string, rootKey []byte) (*DataEncryptionKey, error) {
	k := &DataEncryptionKey{}
	if err := k.init(name, rootKey); err != nil {
		return nil, err
	}
	return k, nil
}

// GenerateDataEncryptionKey creates a key from 32 fresh random bytes.
func GenerateDataEncryptionKey(name string) (*DataEncryptionKey, error) {
	root, err := generateRootKey()
	if err != nil {
		return nil, err
	}
	defer clear(root)
	return NewDataEncryptionKey(name, root)
}

func (k *DataEncryptionKey) init(name string, rootKey []byte) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidDataEncryptionKey
	}
	keys, err := deriveKeys(rootKey)
	if err != nil {
		return err
	}
	k.name = name
	k.root = append([]byte(nil), rootKey...)
	k.keys = keys
	return nil
}

// Name returns the key name.
func (k *DataEncryptionKey) Name() string {
	return k.name
}

// RootKey returns a copy of the root key material.
func (k *DataEncryptionKey) RootKey() []byte {
	return append([]byte(nil), k.root...)
}

// Equal reports whether other has the same name and root key material.
func (k *DataEncryptionKey) Equal(other ColumnKey) bool {
	if other == nil {
		return false
	}
	o := other.dataKey()
	if o == nil {
		return false
	}
	return k.name == o.name && subtle.ConstantTimeCompare(k.root, o.root) == 1
}

// Destroy zeros the root key and derived keys.
// The key, and every engine NewAeadEngine created from it, must not be used
// afterwards. Engines cached by a Session hold their own copy of the derived
// keys and are unaffected; call Session.Forget first to drop them too.
func (k *DataEncryptionKey) Destroy() {
	clear(k.root)
	if k.keys != nil {
		k.keys.zero()
	}
}

func (k *DataEncryptionKey) dataKey() *DataEncryptionKey {
	return k
}

// ProtectedDataEncryptionKey is a DataEncryptionKey whose root key is also
// kept wrapped by a KeyEncryptionKey. Only the wrapped form is meant to be stored.
type ProtectedDataEncryptionKey struct {
	DataEncryptionKey
	encryptedValue []byte
	kek            *KeyEncryptionKey
}

// NewProtectedDataEncryptionKey generates a fresh random root key and wraps it with kek.
func NewProtectedDataEncryptionKey(name string, kek *KeyEncryptionKey) (*ProtectedDataEncryptionKey, error) {
	if kek == nil {
		return nil, newError(ErrNullProvider, "key encryption key cannot be null")
	}
	root, err := generateRootKey()
	if err != nil {
		return nil, err
	}
	defer clear(root)

	encrypted, err := kek.WrapKey(root)
	if err != nil {
		return nil, err
	}

	p := &ProtectedDataEncryptionKey{encryptedValue: encrypted, kek: kek}
	if err := p.init(name, root); err != nil {
		return nil, err
	}
	return p, nil
}

// OpenProtectedDataEncryptionKey recovers a key from its wrapped value using kek.
// The unwrapped root key must be exactly 32 bytes.
func OpenProtectedDataEncryptionKey(name string, kek *KeyEncryptionKey, encryptedValue []byte) (*ProtectedDataEncryptionKey, error) {
	if kek == nil {
		return nil, newError(ErrNullProvider, "key encryption key cannot be null")
	}
	if len(encryptedValue) == 0 {
		return nil, newError(ErrInvalidWrappedKey, "encrypted column encryption key cannot be null or empty")
	}

	root, err := kek.UnwrapKey(encryptedValue)
	if err != nil {
		return nil, err
	}
	defer clear(root)

	p := &ProtectedDataEncryptionKey{
		encryptedValue: append([]byte(nil), encryptedValue...),
		kek:            kek,
	}
	if err := p.init(name, root); err != nil {
		return nil, err
	}
	return p, nil
}

// EncryptedValue returns a copy of the wrapped root key.
func (p *ProtectedDataEncryptionKey) EncryptedValue() []byte {
	return append([]byte(nil), p.encryptedValue...)
}

// KeyEncryptionKey returns the key that wraps this key.
func (p *ProtectedDataEncryptionKey) KeyEncryptionKey() *KeyEncryptionKey {
	return p.kek
}

// KeyEncryptionKey is a named handle on a column master key held by a
// KeyStoreProvider. The provider signs its metadata at construction.
type KeyEncryptionKey struct {
	name      string
	path      string
	provider  KeyStoreProvider
	enclave   bool
	signature []byte
}

// NewKeyEncryptionKey creates a handle for the master key at path and asks
// the provider to sign its metadata.
func NewKeyEncryptionKey(name, path string, provider KeyStoreProvider, allowEnclaveComputations bool) (*KeyEncryptionKey, error) {
	if strings.TrimSpace(name) == "" {
		return nil, newError(ErrInvalidMasterKeyPath, "KeyEncryptionKey name cannot be null or empty")
	}
	if strings.TrimSpace(path) == "" {
		return nil, newError(ErrInvalidMasterKeyPath, "master key path cannot be null or empty")
	}
	if provider == nil {
		return nil, ErrNullProvider
	}

	signature, err := provider.Sign(path, allowEnclaveComputations)
	if err != nil {
		return nil, err
	}

	return &KeyEncryptionKey{
		name:      name,
		path:      path,
		provider:  provider,
		enclave:   allowEnclaveComputations,
		signature: signature,
	}, nil
}

// Name returns the key name.
func (k *KeyEncryptionKey) Name() string { return k.name }

// Path returns the provider-specific master key path.
func (k *KeyEncryptionKey) Path() string { return k.path }

// Provider returns the key store provider holding the master key.
func (k *KeyEncryptionKey) Provider() KeyStoreProvider { return k.provider }

// IsEnclaveSupported reports whether enclave computations are allowed.
func (k *KeyEncryptionKey) IsEnclaveSupported() bool { return k.enclave }

// Signature returns a copy of the metadata signature.
func (k *KeyEncryptionKey) Signature() []byte {
	return append([]byte(nil), k.signature...)
}

// WrapKey wraps a column key with this master key.
func (k *KeyEncryptionKey) WrapKey(key []byte) ([]byte, error) {
	return k.provider.WrapKey(k.path, KeyEncryptionAlgorithm, key)
}

// UnwrapKey unwraps a column key wrapped with this master key.
func (k *KeyEncryptionKey) UnwrapKey(encryptedKey []byte) ([]byte, error) {
	return k.provider.UnwrapKey(k.path, KeyEncryptionAlgorithm, encryptedKey)
}

// VerifySignature checks the metadata signature against the master key.
func (k *KeyEncryptionKey) VerifySignature() (bool, error) {
	return k.provider.Verify(k.path, k.enclave, k.signature)
}

// Equal reports whether other names the same master key.
func (k *KeyEncryptionKey) Equal(other *KeyEncryptionKey) bool {
	if other == nil {
		return false
	}
	return k.name == other.name &&
		k.path == other.path &&
		k.enclave == other.enclave &&
		k.provider.Name() == other.provider.Name()
}

// generateRootKey returns 32 cryptographically random bytes.
func generateRootKey() ([]byte, error) {
	root := make([]byte, KeySize)
	if _, err := rand.Read(root); err != nil {
		return nil, wrapError(ErrEncryptionFailed, err, "generating root key")
	}
	return root, nil
}

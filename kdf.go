package cellcrypt

import (
	"crypto/hmac"
	"crypto/sha256"
)

const (
	// KeySize is the length in bytes of a root key and of each derived key.
	KeySize = 32

	algorithmName = "AEAD_AES_256_CBC_HMAC_SHA256"
)

// Salts for sub-key derivation. Each names the algorithm and key length so a
// root key shared with another algorithm never yields the same sub-keys.
var (
	saltEncryption = mustUTF16LE("Microsoft SQL Server cell encryption key with encryption algorithm:" + algorithmName + " and key length:256")
	saltMAC        = mustUTF16LE("Microsoft SQL Server cell MAC key with encryption algorithm:" + algorithmName + " and key length:256")
	saltIV         = mustUTF16LE("Microsoft SQL Server cell IV key with encryption algorithm:" + algorithmName + " and key length:256")
)

// derivedKeys holds the three sub-keys derived from a root key.
// These are computed once per key and shared by engines NewAeadEngine
// creates from it.
type derivedKeys struct {
	encryption [KeySize]byte // AES-256-CBC key
	mac        [KeySize]byte // HMAC-SHA256 key for the authentication tag
	iv         [KeySize]byte // HMAC-SHA256 key for deterministic IVs
}

// deriveKeys derives the encryption, MAC and IV keys from a root key.
// The root key must be exactly 32 bytes.
//
//   - Encryption key: HMAC-SHA256(key=rootKey, msg=UTF16LE(encryption salt))
//   - MAC key:        HMAC-SHA256(key=rootKey, msg=UTF16LE(MAC salt))
//   - IV key:         HMAC-SHA256(key=rootKey, msg=UTF16LE(IV salt))
func deriveKeys(rootKey []byte) (*derivedKeys, error) {
	if len(rootKey) != KeySize {
		return nil, newError(ErrInvalidKeySize, "key must contain %d elements, got %d", KeySize, len(rootKey))
	}

	keys := &derivedKeys{}
	copy(keys.encryption[:], hmacSHA256(rootKey, saltEncryption))
	copy(keys.mac[:], hmacSHA256(rootKey, saltMAC))
	copy(keys.iv[:], hmacSHA256(rootKey, saltIV))
	return keys, nil
}

// hmacSHA256 computes HMAC-SHA256 under key over the concatenation of parts.
func hmacSHA256(key []byte, parts ...[]byte) []byte {
	mac := hmac.New(sha256.New, key)
	for _, p := range parts {
		mac.Write(p)
	}
	return mac.Sum(nil)
}

// zero clears the derived keys.
func (k *derivedKeys) zero() {
	clear(k.encryption[:])
	clear(k.mac[:])
	clear(k.iv[:])
}

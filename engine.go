package cellcrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"errors"
	"fmt"
)

// EncryptionMode selects how the IV of a cell is chosen.
type EncryptionMode uint8

const (
	// Plaintext leaves values unencrypted. Engines in this mode only decrypt.
	Plaintext EncryptionMode = iota
	// Deterministic derives the IV from the plaintext; equal values give equal ciphertext.
	Deterministic
	// Randomized uses a fresh random IV for every value.
	Randomized
)

func (m EncryptionMode) String() string {
	switch m {
	case Plaintext:
		return "Plaintext"
	case Deterministic:
		return "Deterministic"
	case Randomized:
		return "Randomized"
	default:
		return fmt.Sprintf("EncryptionMode(%d)", uint8(m))
	}
}

// ParseEncryptionMode parses a mode name, case-insensitively.
func ParseEncryptionMode(s string) (EncryptionMode, error) {
	switch lowerTrim(s) {
	case "plaintext":
		return Plaintext, nil
	case "deterministic":
		return Deterministic, nil
	case "randomized":
		return Randomized, nil
	default:
		return 0, newError(ErrInvalidValue, "unknown encryption mode %q", s)
	}
}

// AeadEngine encrypts and decrypts cells with AEAD_AES_256_CBC_HMAC_SHA256
// under one key and mode. It is stateless and safe for concurrent use.
// Obtain shared instances with Session.Engine.
type AeadEngine struct {
	name string
	keys *derivedKeys
	mode EncryptionMode
}

// NewAeadEngine creates an engine bound to key and mode.
// Unlike Session.Engine the result is not cached.
func NewAeadEngine(key ColumnKey, mode EncryptionMode) (*AeadEngine, error) {
	if isNilKey(key) {
		return nil, ErrNullColumnKey
	}
	dk := key.dataKey()
	if dk == nil || dk.keys == nil {
		return nil, ErrNullColumnKey
	}
	if mode > Randomized {
		return nil, newError(ErrInvalidValue, "unknown encryption mode %d", uint8(mode))
	}
	return &AeadEngine{name: dk.name, keys: dk.keys, mode: mode}, nil
}

// Mode returns the engine's encryption mode.
func (e *AeadEngine) Mode() EncryptionMode {
	return e.mode
}

// KeyName returns the name of the key the engine is bound to.
func (e *AeadEngine) KeyName() string {
	return e.name
}

// Encrypt encrypts plaintext into a cell ciphertext.
// Returns nil if plaintext is nil (NULL preservation).
//
// The ciphertext format is:
// [version:1][tag:32][iv:16][AES-256-CBC(PKCS#7(plaintext))]
func (e *AeadEngine) Encrypt(plaintext []byte) ([]byte, error) {
	if e.mode == Plaintext {
		return nil, ErrPlaintextNotAllowed
	}
	if plaintext == nil {
		return nil, nil
	}

	iv, err := e.iv(plaintext)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(e.keys.encryption[:])
	if err != nil {
		return nil, wrapError(ErrEncryptionFailed, err, "creating AES cipher")
	}

	// Always at least one block, even for empty input.
	padded := pkcs7Pad(plaintext, blockSize)
	encrypted := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(encrypted, padded)

	tag := e.tag(iv, encrypted)
	return formatCell(tag, iv, encrypted), nil
}

// Decrypt authenticates and decrypts a cell ciphertext.
// Returns nil if ciphertext is nil (NULL preservation).
// The mode of the engine does not matter for decryption.
func (e *AeadEngine) Decrypt(ciphertext []byte) ([]byte, error) {
	if ciphertext == nil {
		return nil, nil
	}

	tag, iv, encrypted, err := parseCell(ciphertext)
	if err != nil {
		return nil, err
	}

	if !hmac.Equal(tag, e.tag(iv, encrypted)) {
		return nil, newError(ErrAuthenticationFailed, "specified ciphertext has an invalid authentication tag")
	}

	if len(encrypted) == 0 || len(encrypted)%blockSize != 0 {
		return nil, newError(ErrInvalidCiphertext, "cipher region of %d bytes is not a whole number of blocks", len(encrypted))
	}

	block, err := aes.NewCipher(e.keys.encryption[:])
	if err != nil {
		return nil, wrapError(ErrDecryptionFailed, err, "creating AES cipher")
	}

	decrypted := make([]byte, len(encrypted))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(decrypted, encrypted)

	plaintext, err := pkcs7Unpad(decrypted)
	if err != nil {
		return nil, wrapError(ErrDecryptionFailed, err, "removing padding")
	}
	return plaintext, nil
}

// Authenticate reports whether ciphertext is well formed and carries a
// valid tag under the engine's key. Nothing is decrypted.
func (e *AeadEngine) Authenticate(ciphertext []byte) bool {
	tag, iv, encrypted, err := parseCell(ciphertext)
	if err != nil {
		return false
	}
	return hmac.Equal(tag, e.tag(iv, encrypted))
}

// iv returns the IV for plaintext under the engine's mode.
func (e *AeadEngine) iv(plaintext []byte) ([]byte, error) {
	if e.mode == Deterministic {
		return hmacSHA256(e.keys.iv[:], plaintext)[:blockSize], nil
	}
	iv := make([]byte, blockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, wrapError(ErrEncryptionFailed, err, "generating IV")
	}
	return iv, nil
}

// tag computes HMAC-SHA256(macKey, version || iv || encrypted || versionSize).
func (e *AeadEngine) tag(iv, encrypted []byte) []byte {
	return hmacSHA256(e.keys.mac[:], []byte{cellVersion}, iv, encrypted, []byte{cellVersionSize})
}

// pkcs7Pad returns data padded to a multiple of size. data is not modified.
func pkcs7Pad(data []byte, size int) []byte {
	padding := size - len(data)%size
	out := make([]byte, len(data), len(data)+padding)
	copy(out, data)
	return append(out, bytes.Repeat([]byte{byte(padding)}, padding)...)
}

// pkcs7Unpad strips PKCS#7 padding.
func pkcs7Unpad(data []byte) ([]byte, error) {
	n := len(data)
	if n == 0 {
		return nil, errors.New("empty data")
	}
	padding := int(data[n-1])
	if padding == 0 || padding > n || padding > blockSize {
		return nil, fmt.Errorf("invalid padding size: %d", padding)
	}
	for i := n - padding; i < n; i++ {
		if data[i] != byte(padding) {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:n-padding], nil
}

package cellcrypt

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveKeys_Deterministic(t *testing.T) {
	rootKey := []byte("01234567890123456789012345678901") // 32 bytes

	keys1, err := deriveKeys(rootKey)
	require.NoError(t, err)

	keys2, err := deriveKeys(rootKey)
	require.NoError(t, err)

	require.Equal(t, keys1.encryption, keys2.encryption)
	require.Equal(t, keys1.mac, keys2.mac)
	require.Equal(t, keys1.iv, keys2.iv)
}

func TestDeriveKeys_DifferentRootKeys(t *testing.T) {
	rootKey1 := []byte("01234567890123456789012345678901")
	rootKey2 := []byte("01234567890123456789012345678902") // One byte different

	keys1, err := deriveKeys(rootKey1)
	require.NoError(t, err)

	keys2, err := deriveKeys(rootKey2)
	require.NoError(t, err)

	require.NotEqual(t, keys1.encryption, keys2.encryption)
	require.NotEqual(t, keys1.mac, keys2.mac)
	require.NotEqual(t, keys1.iv, keys2.iv)
}

func TestDeriveKeys_SubKeysAreDistinct(t *testing.T) {
	keys, err := deriveKeys([]byte("01234567890123456789012345678901"))
	require.NoError(t, err)

	require.False(t, bytes.Equal(keys.encryption[:], keys.mac[:]))
	require.False(t, bytes.Equal(keys.encryption[:], keys.iv[:]))
	require.False(t, bytes.Equal(keys.mac[:], keys.iv[:]))
}

func TestDeriveKeys_InvalidKeySize(t *testing.T) {
	tests := []struct {
		name    string
		keySize int
	}{
		{"empty", 0},
		{"too short", 16},
		{"too long", 64},
		{"31 bytes", 31},
		{"33 bytes", 33},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := deriveKeys(make([]byte, tt.keySize))
			require.ErrorIs(t, err, ErrInvalidKeySize)
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}

// TestDeriveKeys_SaltEncoding pins the derivation to HMAC over the UTF-16LE
// salt, keyed by the root key.
func TestDeriveKeys_SaltEncoding(t *testing.T) {
	rootKey := bytes.Repeat([]byte{0x61}, 32)

	keys, err := deriveKeys(rootKey)
	require.NoError(t, err)

	salt := "Microsoft SQL Server cell encryption key with encryption algorithm:AEAD_AES_256_CBC_HMAC_SHA256 and key length:256"
	encoded := make([]byte, 0, len(salt)*2)
	for _, c := range []byte(salt) {
		encoded = append(encoded, c, 0)
	}
	mac := hmac.New(sha256.New, rootKey)
	mac.Write(encoded)
	require.Equal(t, mac.Sum(nil), keys.encryption[:])

	require.Equal(t, encoded, saltEncryption)
	require.Len(t, saltMAC, 2*len("Microsoft SQL Server cell MAC key with encryption algorithm:AEAD_AES_256_CBC_HMAC_SHA256 and key length:256"))
}

func TestDerivedKeys_Zero(t *testing.T) {
	keys, err := deriveKeys(testKey("zero"))
	require.NoError(t, err)

	keys.zero()
	require.Equal(t, [KeySize]byte{}, keys.encryption)
	require.Equal(t, [KeySize]byte{}, keys.mac)
	require.Equal(t, [KeySize]byte{}, keys.iv)
}

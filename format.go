package cellcrypt

import (
	"encoding/binary"
	"strings"
)

// Cell ciphertext format:
// [version:1][tag:32][iv:16][AES-256-CBC(PKCS#7 padded plaintext)]
//
// tag = HMAC-SHA256(macKey, version || iv || cipher || versionSize)
//
// Wrapped column key format:
// [version:1][pathLen:2 LE][cipherLen:2 LE][UTF16LE(lower(path))][RSA-OAEP(key)][signature]
//
// signature = RSASSA-PKCS1-v1_5(SHA-256(all preceding bytes)); its length is
// whatever remains after the ciphertext.

const (
	cellVersion     byte = 0x01
	cellVersionSize byte = 0x01

	blockSize = 16 // AES block and IV size
	tagSize   = 32 // HMAC-SHA256 output size

	minCellSizeNoTag = 1 + blockSize + blockSize // version + IV + one block
	minCellSize      = minCellSizeNoTag + tagSize

	wrappedKeyVersion    byte = 0x01
	wrappedKeyHeaderSize      = 1 + 2 + 2
)

// formatCell assembles a cell ciphertext.
func formatCell(tag, iv, cipher []byte) []byte {
	out := make([]byte, 0, 1+len(tag)+len(iv)+len(cipher))
	out = append(out, cellVersion)
	out = append(out, tag...)
	out = append(out, iv...)
	out = append(out, cipher...)
	return out
}

// parseCell splits a cell ciphertext into tag, IV and cipher region.
// The returned slices alias data.
func parseCell(data []byte) (tag, iv, cipher []byte, err error) {
	if len(data) < minCellSize {
		err = newError(ErrCiphertextTooShort,
			"specified ciphertext has an invalid size of %d bytes, which is below the minimum %d bytes required for decryption",
			len(data), minCellSize)
		return
	}
	if data[0] != cellVersion {
		err = newError(ErrVersionMismatch,
			"the specified ciphertext's encryption algorithm version %#04x does not match the expected encryption algorithm version %#04x",
			data[0], cellVersion)
		return
	}

	tag = data[1 : 1+tagSize]
	iv = data[1+tagSize : 1+tagSize+blockSize]
	cipher = data[1+tagSize+blockSize:]
	return
}

// wrappedKey is the parsed form of a wrapped column key.
type wrappedKey struct {
	path      []byte // UTF-16LE lowercased path, as stored
	cipher    []byte
	signature []byte
	signed    []byte // every byte preceding the signature
}

// formatWrappedKey assembles the unsigned part of a wrapped key.
// The caller appends the signature over the returned bytes.
func formatWrappedKey(path string, cipher []byte) ([]byte, error) {
	encodedPath, err := encodeUTF16LE(strings.ToLower(path))
	if err != nil {
		return nil, wrapError(ErrInvalidMasterKeyPath, err, "encoding master key path %q", path)
	}
	if len(encodedPath) > 0xFFFF || len(cipher) > 0xFFFF {
		return nil, newError(ErrInvalidMasterKeyPath, "master key path or ciphertext too long for %q", path)
	}

	out := make([]byte, 0, wrappedKeyHeaderSize+len(encodedPath)+len(cipher))
	out = append(out, wrappedKeyVersion)
	out = binary.LittleEndian.AppendUint16(out, uint16(len(encodedPath)))
	out = binary.LittleEndian.AppendUint16(out, uint16(len(cipher)))
	out = append(out, encodedPath...)
	out = append(out, cipher...)
	return out, nil
}

// parseWrappedKey splits a wrapped key at its fixed offsets.
// keySizeBytes is the RSA modulus size the ciphertext must match.
func parseWrappedKey(data []byte, keySizeBytes int) (*wrappedKey, error) {
	if len(data) < wrappedKeyHeaderSize {
		return nil, newError(ErrInvalidWrappedKey, "encrypted column encryption key of %d bytes is too short", len(data))
	}
	if data[0] != wrappedKeyVersion {
		return nil, newError(ErrVersionMismatch,
			"encrypted column encryption key version %#04x does not match the expected version %#04x",
			data[0], wrappedKeyVersion)
	}

	pathLen := int(binary.LittleEndian.Uint16(data[1:3]))
	cipherLen := int(binary.LittleEndian.Uint16(data[3:5]))
	if cipherLen != keySizeBytes {
		return nil, newError(ErrInvalidWrappedKey,
			"the specified encrypted column encryption key's ciphertext length %d does not match the ciphertext length %d when using the column master key",
			cipherLen, keySizeBytes)
	}

	signatureStart := wrappedKeyHeaderSize + pathLen + cipherLen
	signatureLen := len(data) - signatureStart
	if signatureLen != keySizeBytes {
		return nil, newError(ErrInvalidWrappedKey,
			"the specified encrypted column encryption key's signature length %d does not match the signature length %d when using the column master key",
			signatureLen, keySizeBytes)
	}

	return &wrappedKey{
		path:      data[wrappedKeyHeaderSize : wrappedKeyHeaderSize+pathLen],
		cipher:    data[wrappedKeyHeaderSize+pathLen : signatureStart],
		signature: data[signatureStart:],
		signed:    data[:signatureStart],
	}, nil
}

package cellcrypt

import (
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Marshaled crypto metadata is a flag byte followed by the JSON document,
// zstd compressed when flagged.
const (
	flagNoCompression byte = 0x00
	flagZstd          byte = 0x01
)

const (
	defaultCompressionThreshold = 1024
	minCompressionSavings       = 0.10

	// maxDecompressedSize bounds unpacked metadata.
	maxDecompressedSize = 64 << 20
)

// zstdCodec holds the shared encoder and decoder. EncodeAll and DecodeAll
// are safe for concurrent use.
type zstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

var loadZstd = sync.OnceValues(func() (*zstdCodec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecompressedSize))
	if err != nil {
		enc.Close()
		return nil, err
	}
	return &zstdCodec{enc: enc, dec: dec}, nil
})

// packMetadata prefixes raw with its flag byte. Documents of at least
// threshold bytes are compressed unless disabled, and only kept compressed
// when that saves minCompressionSavings.
func packMetadata(raw []byte, threshold int, disabled bool) []byte {
	if !disabled && len(raw) >= threshold {
		if codec, err := loadZstd(); err == nil {
			out := codec.enc.EncodeAll(raw, []byte{flagZstd})
			if saved := float64(len(raw)+1-len(out)) / float64(len(raw)); saved >= minCompressionSavings {
				return out
			}
		}
	}

	out := make([]byte, 0, len(raw)+1)
	out = append(out, flagNoCompression)
	return append(out, raw...)
}

// unpackMetadata reverses packMetadata.
func unpackMetadata(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, newError(ErrInvalidMetadata, "crypto metadata is empty")
	}

	flag, body := data[0], data[1:]
	switch flag {
	case flagNoCompression:
		return body, nil
	case flagZstd:
		codec, err := loadZstd()
		if err != nil {
			return nil, wrapError(ErrInvalidMetadata, err, "initializing zstd")
		}
		raw, err := codec.dec.DecodeAll(body, nil)
		if err != nil {
			return nil, wrapError(ErrInvalidMetadata, err, "decompressing crypto metadata")
		}
		if len(raw) > maxDecompressedSize {
			return nil, newError(ErrInvalidMetadata, "decompressed crypto metadata exceeds %d bytes", maxDecompressedSize)
		}
		return raw, nil
	default:
		return nil, newError(ErrInvalidMetadata, "unknown crypto metadata flag %#04x", flag)
	}
}

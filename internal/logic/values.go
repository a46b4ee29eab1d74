package logic

import (
	"fmt"
	"strings"
	"time"

	"github.com/ai8future/cellcrypt"
	"github.com/ai8future/cellcrypt/internal/config"
)

// Null is the textual form of a SQL NULL on input and output.
const Null = "NULL"

// ParseValue converts a command-line value to what the serializer for typ
// accepts. Binary values are hex, optionally prefixed with 0x. Everything
// else is passed as text and parsed by the serializer.
func ParseValue(typ cellcrypt.SQLType, s string) (any, error) {
	if strings.EqualFold(strings.TrimSpace(s), Null) {
		return nil, nil
	}

	switch typ {
	case cellcrypt.TypeBinary, cellcrypt.TypeVarBinary:
		b, err := config.DecodeHex(s)
		if err != nil {
			return nil, fmt.Errorf("decoding %s value: %w", typ, err)
		}

		return b, nil
	default:
		return s, nil
	}
}

// FormatValue renders a decrypted value of type typ for printing.
func FormatValue(typ cellcrypt.SQLType, v any) string {
	switch v := v.(type) {
	case nil:
		return Null
	case []byte:
		return config.EncodeHex(v)
	case time.Time:
		return v.Format(timeLayout(typ))
	default:
		return fmt.Sprint(v)
	}
}

func timeLayout(typ cellcrypt.SQLType) string {
	switch typ {
	case cellcrypt.TypeDate:
		return time.DateOnly
	case cellcrypt.TypeTime:
		return "15:04:05.9999999"
	case cellcrypt.TypeDateTimeOffset:
		return "2006-01-02 15:04:05.9999999 -07:00"
	default:
		return "2006-01-02 15:04:05.9999999"
	}
}

// FormatCiphertext renders an encrypted cell, or NULL.
func FormatCiphertext(ct []byte) string {
	if ct == nil {
		return Null
	}

	return config.EncodeHex(ct)
}

// ParseCiphertext reverses FormatCiphertext.
func ParseCiphertext(s string) ([]byte, error) {
	if strings.EqualFold(strings.TrimSpace(s), Null) {
		return nil, nil
	}

	ct, err := config.DecodeHex(s)
	if err != nil {
		return nil, fmt.Errorf("decoding ciphertext: %w", err)
	}

	return ct, nil
}

package cellcrypt

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

// Character and binary encodings:
//   char, varchar: code page bytes (UTF-8 unless configured); char is blank padded
//   nchar, nvarchar: UTF-16LE; nchar is blank padded
//   binary, varbinary: raw bytes; binary is zero padded
//
// Padding and the length limit count characters for text types and bytes for
// binary types. A precision of 0 means unbounded.

var utf16LE = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

func encodeUTF16LE(s string) ([]byte, error) {
	return utf16LE.NewEncoder().Bytes([]byte(s))
}

func decodeUTF16LE(b []byte) (string, error) {
	out, err := utf16LE.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// mustUTF16LE encodes a constant string. It panics on failure.
func mustUTF16LE(s string) []byte {
	b, err := encodeUTF16LE(s)
	if err != nil {
		panic("cellcrypt: encoding " + s + ": " + err.Error())
	}
	return b
}

// LookupCodePage resolves an IANA character set name (for example
// "windows-1252" or "ISO-8859-1") for use with WithCodePage.
func LookupCodePage(name string) (encoding.Encoding, error) {
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, wrapError(ErrInvalidValue, err, "the encoding %s is not supported", name)
	}
	if enc == nil {
		return nil, newError(ErrInvalidValue, "the encoding %s is not supported", name)
	}
	return enc, nil
}

func (s *sqlSerializer) serializeChar(value any) ([]byte, error) {
	str, err := s.padText(value)
	if err != nil {
		return nil, err
	}
	if s.codePage == nil {
		return []byte(str), nil
	}
	out, err := s.codePage.NewEncoder().Bytes([]byte(str))
	if err != nil {
		return nil, wrapError(ErrInvalidValue, err, "value cannot be represented in the %s code page", s.typ)
	}
	return out, nil
}

func (s *sqlSerializer) deserializeChar(data []byte) (any, error) {
	if s.codePage == nil {
		if !utf8.Valid(data) {
			return nil, s.malformed(data)
		}
		return string(data), nil
	}
	out, err := s.codePage.NewDecoder().Bytes(data)
	if err != nil {
		return nil, s.malformed(data)
	}
	return string(out), nil
}

func (s *sqlSerializer) serializeNChar(value any) ([]byte, error) {
	str, err := s.padText(value)
	if err != nil {
		return nil, err
	}
	out, err := encodeUTF16LE(str)
	if err != nil {
		return nil, wrapError(ErrInvalidValue, err, "value cannot be encoded as %s", s.typ)
	}
	return out, nil
}

func deserializeNChar(data []byte) (any, error) {
	if len(data)%2 != 0 {
		return nil, newError(ErrInvalidValue, "UTF-16 data of odd length %d", len(data))
	}
	str, err := decodeUTF16LE(data)
	if err != nil {
		return nil, wrapError(ErrInvalidValue, err, "decoding UTF-16 data")
	}
	return str, nil
}

// padText converts value to a string, enforces the length limit and blank
// pads fixed-length types.
func (s *sqlSerializer) padText(value any) (string, error) {
	var str string
	switch v := value.(type) {
	case string:
		str = v
	case []byte:
		if !utf8.Valid(v) {
			return "", s.invalidValue(value)
		}
		str = string(v)
	case fmt.Stringer:
		str = v.String()
	default:
		return "", s.invalidValue(value)
	}

	n := s.textLength(str)
	if s.precision > 0 && n > s.precision {
		return "", newError(ErrValueTooLong,
			"value of %d characters exceeds the length %d of %s(%d)", n, s.precision, s.typ, s.precision)
	}
	if (s.typ == TypeChar || s.typ == TypeNChar) && n < s.precision {
		str += strings.Repeat(" ", s.precision-n)
	}
	return str, nil
}

// textLength measures str in the units of the column length: UTF-16 code
// units for nchar and nvarchar, characters otherwise.
func (s *sqlSerializer) textLength(str string) int {
	if s.typ != TypeNChar && s.typ != TypeNVarChar {
		return utf8.RuneCountInString(str)
	}
	n := 0
	for _, r := range str {
		if utf16.RuneLen(r) == 2 {
			n += 2
		} else {
			n++
		}
	}
	return n
}

func (s *sqlSerializer) serializeBinary(value any) ([]byte, error) {
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return nil, s.invalidValue(value)
	}

	if s.precision > 0 && len(b) > s.precision {
		return nil, newError(ErrValueTooLong,
			"value of %d bytes exceeds the length %d of %s(%d)", len(b), s.precision, s.typ, s.precision)
	}
	if s.typ == TypeBinary && len(b) < s.precision {
		return append(bytes.Clone(b), make([]byte, s.precision-len(b))...), nil
	}
	return bytes.Clone(b), nil
}

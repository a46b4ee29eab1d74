package cellcrypt

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DecryptAs decrypts ciphertext and asserts the result to T, the Go type
// the settings' serializer produces (for example int32 for "int" or
// decimal.Decimal for "money").
// Returns the zero value and ErrWasNull if ciphertext is nil.
func DecryptAs[T any](s *Session, ciphertext []byte, settings *EncryptionSettings) (T, error) {
	var zero T
	if ciphertext == nil {
		if _, err := s.engineFor(settings); err != nil {
			return zero, err
		}
		return zero, ErrWasNull
	}
	v, err := s.Decrypt(ciphertext, settings)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, ErrWasNull
	}
	return assertValue[T](v)
}

// DecryptWithKeyAs decrypts a value produced by EncryptWithKey.
// The standard type is chosen from T.
// Returns the zero value and ErrWasNull if ciphertext is nil.
func DecryptWithKeyAs[T any](s *Session, ciphertext []byte, key ColumnKey) (T, error) {
	var zero T
	t, err := StandardTypeOf(any(zero))
	if err != nil {
		return zero, err
	}
	if ciphertext == nil {
		if isNilKey(key) {
			return zero, ErrNullColumnKey
		}
		return zero, ErrWasNull
	}
	v, err := s.DecryptWithKey(ciphertext, key, t)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, ErrWasNull
	}
	if _, ok := any(zero).(int); ok {
		return any(int(v.(int64))).(T), nil
	}
	return assertValue[T](v)
}

// EncryptPtr encrypts *value.
// Returns nil if value is nil (NULL preservation).
func EncryptPtr[T any](s *Session, value *T, settings *EncryptionSettings) ([]byte, error) {
	if value == nil {
		_, err := s.engineFor(settings)
		return nil, err
	}
	return s.Encrypt(*value, settings)
}

// DecryptPtr decrypts to a pointer.
// Returns nil if ciphertext is nil (NULL preservation).
func DecryptPtr[T any](s *Session, ciphertext []byte, settings *EncryptionSettings) (*T, error) {
	if ciphertext == nil {
		_, err := s.engineFor(settings)
		return nil, err
	}
	v, err := DecryptAs[T](s, ciphertext, settings)
	if errors.Is(err, ErrWasNull) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// EncryptJSON encrypts the JSON encoding of data. The settings' serializer
// must accept strings, for example "nvarchar" or "varbinary".
func EncryptJSON[T any](s *Session, data T, settings *EncryptionSettings) ([]byte, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil, wrapError(ErrInvalidValue, err, "encoding %T as JSON", data)
	}
	return s.Encrypt(string(jsonBytes), settings)
}

// DecryptJSON decrypts and unmarshals JSON data.
// Returns the zero value and ErrWasNull if ciphertext is nil.
func DecryptJSON[T any](s *Session, ciphertext []byte, settings *EncryptionSettings) (T, error) {
	var zero T
	if ciphertext == nil {
		return zero, ErrWasNull
	}

	v, err := s.Decrypt(ciphertext, settings)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, ErrWasNull
	}

	var raw []byte
	switch x := v.(type) {
	case string:
		raw = []byte(x)
	case []byte:
		raw = x
	default:
		return zero, newError(ErrInvalidValue, "column %q decodes to %T, not JSON text", settings.column, v)
	}

	var result T
	if err := json.Unmarshal(raw, &result); err != nil {
		return zero, wrapError(ErrInvalidValue, err, "decoding JSON into %T", result)
	}
	return result, nil
}

func assertValue[T any](v any) (T, error) {
	out, ok := v.(T)
	if !ok {
		var zero T
		return zero, newError(ErrInvalidValue, "decrypted value of type %T cannot be converted to %s", v, fmt.Sprintf("%T", zero))
	}
	return out, nil
}

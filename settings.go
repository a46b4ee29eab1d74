package cellcrypt

import "iter"

// EncryptionSettings binds a column to a key, an encryption mode and a
// serializer. It is immutable.
type EncryptionSettings struct {
	column     string
	key        ColumnKey
	mode       EncryptionMode
	serializer Serializer
}

// NewEncryptionSettings creates settings for column.
// A nil key is only valid together with Plaintext mode.
func NewEncryptionSettings(column string, key ColumnKey, mode EncryptionMode, serializer Serializer) (*EncryptionSettings, error) {
	if serializer == nil {
		return nil, newError(ErrUnknownSerializer, "serializer cannot be null for column %q", column)
	}
	if mode > Randomized {
		return nil, newError(ErrInvalidValue, "unknown encryption mode %d", uint8(mode))
	}
	if isNilKey(key) {
		if mode != Plaintext {
			return nil, newError(ErrNullColumnKey, "column %q has %s encryption but no column encryption key", column, mode)
		}
		key = nil
	}
	return &EncryptionSettings{column: column, key: key, mode: mode, serializer: serializer}, nil
}

// NewDefaultEncryptionSettings creates settings with the default mode:
// Randomized when key is set, Plaintext otherwise.
func NewDefaultEncryptionSettings(column string, key ColumnKey, serializer Serializer) (*EncryptionSettings, error) {
	mode := Randomized
	if isNilKey(key) {
		mode = Plaintext
	}
	return NewEncryptionSettings(column, key, mode, serializer)
}

// Column returns the column identifier.
func (s *EncryptionSettings) Column() string { return s.column }

// Key returns the column encryption key, or nil for Plaintext columns.
func (s *EncryptionSettings) Key() ColumnKey { return s.key }

// Mode returns the encryption mode.
func (s *EncryptionSettings) Mode() EncryptionMode { return s.mode }

// Serializer returns the value serializer.
func (s *EncryptionSettings) Serializer() Serializer { return s.serializer }

// Equal reports whether other uses an equal key, the same mode and the same
// serializer type.
func (s *EncryptionSettings) Equal(other *EncryptionSettings) bool {
	if other == nil {
		return false
	}
	if (s.key == nil) != (other.key == nil) {
		return false
	}
	if s.key != nil && !s.key.dataKey().Equal(other.key) {
		return false
	}
	return s.mode == other.mode && s.serializer.TypeID() == other.serializer.TypeID()
}

// isNilKey reports a nil interface or a typed nil pointer.
func isNilKey(key ColumnKey) bool {
	if key == nil {
		return true
	}
	switch k := key.(type) {
	case *DataEncryptionKey:
		return k == nil
	case *ProtectedDataEncryptionKey:
		return k == nil
	}
	return key.dataKey() == nil
}

// engineFor validates settings for a cipher operation and returns the engine.
func (s *Session) engineFor(settings *EncryptionSettings) (*AeadEngine, error) {
	if settings == nil {
		return nil, ErrNullSettings
	}
	if settings.key == nil {
		return nil, newError(ErrNullColumnKey, "column %q has no column encryption key", settings.column)
	}
	if settings.mode == Plaintext {
		return nil, newError(ErrPlaintextNotAllowed, "column %q is Plaintext; encryption settings cannot be Plaintext in this context", settings.column)
	}
	return s.Engine(settings.key, settings.mode)
}

// Encrypt serializes value with the settings' serializer and encrypts it.
// A nil value (SQL NULL) returns nil without invoking the cipher.
func (s *Session) Encrypt(value any, settings *EncryptionSettings) ([]byte, error) {
	engine, err := s.engineFor(settings)
	if err != nil {
		return nil, err
	}
	return encryptValue(engine, settings.serializer, value)
}

// Decrypt decrypts ciphertext and deserializes it with the settings'
// serializer. A nil ciphertext returns nil.
func (s *Session) Decrypt(ciphertext []byte, settings *EncryptionSettings) (any, error) {
	engine, err := s.engineFor(settings)
	if err != nil {
		return nil, err
	}
	return decryptValue(engine, settings.serializer, ciphertext)
}

// EncryptWithKey encrypts value in Randomized mode with the standard
// serializer for its Go type.
func (s *Session) EncryptWithKey(value any, key ColumnKey) ([]byte, error) {
	if isNilKey(key) {
		return nil, ErrNullColumnKey
	}
	engine, err := s.Engine(key, Randomized)
	if err != nil {
		return nil, err
	}
	return encryptStandard(engine, value)
}

// DecryptWithKey decrypts a value produced by EncryptWithKey and decodes it
// as t.
func (s *Session) DecryptWithKey(ciphertext []byte, key ColumnKey, t StandardType) (any, error) {
	engine, ser, err := s.standardDecrypter(key, t)
	if err != nil {
		return nil, err
	}
	return decryptValue(engine, ser, ciphertext)
}

// EncryptAllWithKey is EncryptWithKey over a sequence. The key is validated
// before the sequence is returned; iteration stops after the first error.
// Each value picks its standard serializer from its own Go type.
func (s *Session) EncryptAllWithKey(values iter.Seq[any], key ColumnKey) (iter.Seq2[[]byte, error], error) {
	if isNilKey(key) {
		return nil, ErrNullColumnKey
	}
	engine, err := s.Engine(key, Randomized)
	if err != nil {
		return nil, err
	}
	return func(yield func([]byte, error) bool) {
		for v := range values {
			ct, err := encryptStandard(engine, v)
			if !yield(ct, err) || err != nil {
				return
			}
		}
	}, nil
}

// DecryptAllWithKey is the inverse of EncryptAllWithKey for values of a
// single standard type.
func (s *Session) DecryptAllWithKey(ciphertexts iter.Seq[[]byte], key ColumnKey, t StandardType) (iter.Seq2[any, error], error) {
	engine, ser, err := s.standardDecrypter(key, t)
	if err != nil {
		return nil, err
	}
	return func(yield func(any, error) bool) {
		for ct := range ciphertexts {
			v, err := decryptValue(engine, ser, ct)
			if !yield(v, err) || err != nil {
				return
			}
		}
	}, nil
}

func (s *Session) standardDecrypter(key ColumnKey, t StandardType) (*AeadEngine, Serializer, error) {
	if isNilKey(key) {
		return nil, nil, ErrNullColumnKey
	}
	ser, err := NewStandardSerializer(t)
	if err != nil {
		return nil, nil, err
	}
	engine, err := s.Engine(key, Randomized)
	if err != nil {
		return nil, nil, err
	}
	return engine, ser, nil
}

// EncryptAll returns a sequence yielding the ciphertext of each value in
// order. Settings are validated before the sequence is returned; iteration
// stops after the first error. The result can be ranged over again if values
// can.
func (s *Session) EncryptAll(values iter.Seq[any], settings *EncryptionSettings) (iter.Seq2[[]byte, error], error) {
	engine, err := s.engineFor(settings)
	if err != nil {
		return nil, err
	}
	return func(yield func([]byte, error) bool) {
		for v := range values {
			ct, err := encryptValue(engine, settings.serializer, v)
			if !yield(ct, err) || err != nil {
				return
			}
		}
	}, nil
}

// DecryptAll is the inverse of EncryptAll.
func (s *Session) DecryptAll(ciphertexts iter.Seq[[]byte], settings *EncryptionSettings) (iter.Seq2[any, error], error) {
	engine, err := s.engineFor(settings)
	if err != nil {
		return nil, err
	}
	return func(yield func(any, error) bool) {
		for ct := range ciphertexts {
			v, err := decryptValue(engine, settings.serializer, ct)
			if !yield(v, err) || err != nil {
				return
			}
		}
	}, nil
}

func encryptValue(engine *AeadEngine, ser Serializer, value any) ([]byte, error) {
	value, err := indirect(value)
	if err != nil || value == nil {
		return nil, err
	}
	plaintext, err := ser.Serialize(value)
	if err != nil {
		return nil, err
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return engine.Encrypt(plaintext)
}

// encryptStandard encrypts value with the standard serializer for its Go
// type.
func encryptStandard(engine *AeadEngine, value any) ([]byte, error) {
	value, err := indirect(value)
	if err != nil || value == nil {
		return nil, err
	}
	t, err := StandardTypeOf(value)
	if err != nil {
		return nil, err
	}
	return encryptValue(engine, standardSerializers[t], value)
}

func decryptValue(engine *AeadEngine, ser Serializer, ciphertext []byte) (any, error) {
	if ciphertext == nil {
		return nil, nil
	}
	plaintext, err := engine.Decrypt(ciphertext)
	if err != nil {
		return nil, err
	}
	return ser.Deserialize(plaintext)
}

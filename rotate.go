package cellcrypt

import "iter"

// RewrapKey wraps the root key of key under newKEK. The returned key has
// the same name and root key material, so existing ciphertext stays
// readable; only its stored wrapped value changes.
func RewrapKey(key *ProtectedDataEncryptionKey, newKEK *KeyEncryptionKey) (*ProtectedDataEncryptionKey, error) {
	if key == nil {
		return nil, ErrNullColumnKey
	}
	if newKEK == nil {
		return nil, newError(ErrNullProvider, "key encryption key cannot be null")
	}

	root := key.RootKey()
	defer clear(root)

	encrypted, err := newKEK.WrapKey(root)
	if err != nil {
		return nil, err
	}

	p := &ProtectedDataEncryptionKey{encryptedValue: encrypted, kek: newKEK}
	if err := p.init(key.name, root); err != nil {
		return nil, err
	}
	return p, nil
}

// RotateValue re-encrypts a ciphertext from one column configuration to
// another. Use this during key rotation to migrate existing encrypted data,
// or to change a column's mode or key.
//
// Returns nil if ciphertext is nil (NULL stays NULL).
// The value is deserialized with from's serializer and serialized with to's,
// so the two may describe different column types.
func (s *Session) RotateValue(ciphertext []byte, from, to *EncryptionSettings) ([]byte, error) {
	fromEngine, err := s.engineFor(from)
	if err != nil {
		return nil, err
	}
	toEngine, err := s.engineFor(to)
	if err != nil {
		return nil, err
	}
	return rotateValue(fromEngine, toEngine, from, to, ciphertext)
}

// RotateAll is RotateValue over a sequence. Settings are validated before
// the sequence is returned; iteration stops after the first error.
func (s *Session) RotateAll(ciphertexts iter.Seq[[]byte], from, to *EncryptionSettings) (iter.Seq2[[]byte, error], error) {
	fromEngine, err := s.engineFor(from)
	if err != nil {
		return nil, err
	}
	toEngine, err := s.engineFor(to)
	if err != nil {
		return nil, err
	}
	return func(yield func([]byte, error) bool) {
		for ct := range ciphertexts {
			out, err := rotateValue(fromEngine, toEngine, from, to, ct)
			if !yield(out, err) || err != nil {
				return
			}
		}
	}, nil
}

func rotateValue(fromEngine, toEngine *AeadEngine, from, to *EncryptionSettings, ciphertext []byte) ([]byte, error) {
	if ciphertext == nil {
		return nil, nil
	}

	// Same wire type: skip the round trip through Go values.
	if sameSerializer(from.serializer, to.serializer) {
		plaintext, err := fromEngine.Decrypt(ciphertext)
		if err != nil {
			return nil, err
		}
		return toEngine.Encrypt(plaintext)
	}

	value, err := decryptValue(fromEngine, from.serializer, ciphertext)
	if err != nil {
		return nil, err
	}
	return encryptValue(toEngine, to.serializer, value)
}

// sameSerializer reports whether a and b are the same built-in serializer.
// Other implementations are never compared, since their dynamic types may
// not be comparable.
func sameSerializer(a, b Serializer) bool {
	switch a := a.(type) {
	case *sqlSerializer:
		b, ok := b.(*sqlSerializer)
		return ok && a == b
	case *standardSerializer:
		b, ok := b.(*standardSerializer)
		return ok && a == b
	}
	return false
}

// NeedsRotation reports whether ciphertext fails to authenticate under the
// settings' key. It returns false for nil ciphertext (NULL values don't need
// rotation) and for ciphertext that authenticates.
//
// Only the tag is checked; nothing is decrypted.
func (s *Session) NeedsRotation(ciphertext []byte, settings *EncryptionSettings) (bool, error) {
	engine, err := s.engineFor(settings)
	if err != nil {
		return false, err
	}
	if ciphertext == nil {
		return false, nil
	}
	return !engine.Authenticate(ciphertext), nil
}

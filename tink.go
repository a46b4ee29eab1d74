package cellcrypt

import "github.com/tink-crypto/tink-go/v2/tink"

// AEAD returns the engine as a tink.AEAD, for code written against Tink
// primitives. The cell format has no associated data; passing any fails
// with ErrAssociatedDataUnsupported.
func (e *AeadEngine) AEAD() tink.AEAD {
	return tinkAdapter{engine: e}
}

// DeterministicAEAD returns the engine as a tink.DeterministicAEAD.
// The engine must be in Deterministic mode.
func (e *AeadEngine) DeterministicAEAD() (tink.DeterministicAEAD, error) {
	if e.mode != Deterministic {
		return nil, newError(ErrInvalidValue, "engine for key %q is %s, not Deterministic", e.name, e.mode)
	}
	return tinkAdapter{engine: e}, nil
}

type tinkAdapter struct {
	engine *AeadEngine
}

var (
	_ tink.AEAD              = tinkAdapter{}
	_ tink.DeterministicAEAD = tinkAdapter{}
)

// Encrypt implements tink.AEAD.
func (a tinkAdapter) Encrypt(plaintext, associatedData []byte) ([]byte, error) {
	if len(associatedData) != 0 {
		return nil, ErrAssociatedDataUnsupported
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return a.engine.Encrypt(plaintext)
}

// Decrypt implements tink.AEAD.
func (a tinkAdapter) Decrypt(ciphertext, associatedData []byte) ([]byte, error) {
	if len(associatedData) != 0 {
		return nil, ErrAssociatedDataUnsupported
	}
	if ciphertext == nil {
		ciphertext = []byte{}
	}
	return a.engine.Decrypt(ciphertext)
}

// EncryptDeterministically implements tink.DeterministicAEAD.
func (a tinkAdapter) EncryptDeterministically(plaintext, associatedData []byte) ([]byte, error) {
	return a.Encrypt(plaintext, associatedData)
}

// DecryptDeterministically implements tink.DeterministicAEAD.
func (a tinkAdapter) DecryptDeterministically(ciphertext, associatedData []byte) ([]byte, error) {
	return a.Decrypt(ciphertext, associatedData)
}

// Package cellcrypt provides client-side column encryption compatible with
// SQL Server Always Encrypted.
//
// Values are normalized to the SQL Server wire encoding of their column type
// and encrypted before they leave the application, so the database only ever
// stores ciphertext. Column encryption keys are stored wrapped by a column
// master key held in a certificate store; the plaintext key never needs to be
// persisted.
//
// # Encryption
//
// Cells are encrypted with AEAD_AES_256_CBC_HMAC_SHA256: AES-256-CBC with
// PKCS#7 padding, authenticated by an HMAC-SHA256 tag over the version byte,
// IV and ciphertext. The encryption, MAC and IV keys are derived from a
// 32-byte root key with HMAC-SHA256.
//
//   - Deterministic mode derives the IV from the plaintext, so equal values
//     encrypt equally and can be compared by the server.
//   - Randomized mode uses a random IV for every value.
//
// # Basic Usage
//
//	provider, err := cellcrypt.NewCertificateStoreProvider("cmk.jks", password)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	kek, err := cellcrypt.NewKeyEncryptionKey("CMK1", "cmk1", provider, false)
//	cek, err := cellcrypt.NewProtectedDataEncryptionKey("CEK1", kek)
//	// Store cek.EncryptedValue(); reopen it later with OpenProtectedDataEncryptionKey.
//
//	session := cellcrypt.NewSession()
//	ser, err := session.Serializer("nvarchar", 50, 0)
//	settings, err := cellcrypt.NewEncryptionSettings("email", cek, cellcrypt.Deterministic, ser)
//
//	ciphertext, err := session.Encrypt("alice@example.com", settings)
//	value, err := session.Decrypt(ciphertext, settings) // "alice@example.com"
//
// # Key Rotation
//
// RewrapKey re-wraps a column key under a new master key without touching
// data. Session.RotateValue and Session.RotateAll move ciphertext to a new
// column key or mode.
//
// # NULL Handling
//
// NULL values are preserved:
//   - session.Encrypt(nil, settings) returns nil
//   - session.Decrypt(nil, settings) returns nil, nil
//
// Empty strings and byte slices are encrypted into a full cell, but they
// decrypt to nil: an empty encoding reads back as NULL.
package cellcrypt

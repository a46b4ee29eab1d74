package cellcrypt

import (
	"errors"
	"fmt"
)

// Kind classifies an Error. Callers usually test for a kind with
// errors.Is against one of the kind sentinels (ErrValidation, ErrFormat, ...).
type Kind uint8

const (
	KindValidation Kind = iota + 1
	KindFormat
	KindCryptoBackend
	KindProvider
	KindSerialization
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindFormat:
		return "FormatError"
	case KindCryptoBackend:
		return "CryptoBackendError"
	case KindProvider:
		return "ProviderError"
	case KindSerialization:
		return "SerializationError"
	default:
		return "UnknownError"
	}
}

// Error is the single error type returned by this package.
// Code identifies the failure within its Kind; Err holds the cause, if any.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := "cellcrypt: " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target names the same failure. A target without a Code
// matches every error of its Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code == "" {
		return t.Kind == e.Kind
	}
	return t.Kind == e.Kind && t.Code == e.Code
}

// Kind sentinels.
var (
	ErrValidation    = &Error{Kind: KindValidation, Message: "validation error"}
	ErrFormat        = &Error{Kind: KindFormat, Message: "format error"}
	ErrCryptoBackend = &Error{Kind: KindCryptoBackend, Message: "crypto backend error"}
	ErrProvider      = &Error{Kind: KindProvider, Message: "key store provider error"}
	ErrSerialization = &Error{Kind: KindSerialization, Message: "serialization error"}
)

var (
	// ErrInvalidKeySize indicates a root key that is not exactly 32 bytes.
	ErrInvalidKeySize = &Error{Kind: KindValidation, Code: "InvalidKeySize", Message: "key must contain 32 elements"}

	// ErrInvalidDataEncryptionKey indicates a blank key name.
	ErrInvalidDataEncryptionKey = &Error{Kind: KindValidation, Code: "InvalidDataEncryptionKey",
		Message: "DataEncryptionKey name cannot be null or empty or consist of only whitespace"}

	// ErrNullColumnKey indicates a missing column encryption key.
	ErrNullColumnKey = &Error{Kind: KindValidation, Code: "NullColumnKey", Message: "column encryption key cannot be null"}

	// ErrNullSettings indicates missing encryption settings.
	ErrNullSettings = &Error{Kind: KindValidation, Code: "NullSettings", Message: "encryption settings cannot be null"}

	// ErrPlaintextNotAllowed indicates Plaintext mode where a cipher is required.
	ErrPlaintextNotAllowed = &Error{Kind: KindValidation, Code: "PlaintextNotAllowed",
		Message: "encryption settings cannot be Plaintext in this context"}

	// ErrInvalidMasterKeyPath indicates a blank or malformed master key path.
	ErrInvalidMasterKeyPath = &Error{Kind: KindValidation, Code: "InvalidMasterKeyPath", Message: "invalid master key details specified"}

	// ErrInvalidKeyEncryptionAlgorithm indicates an algorithm other than RSA_OAEP.
	ErrInvalidKeyEncryptionAlgorithm = &Error{Kind: KindValidation, Code: "InvalidKeyEncryptionAlgorithm",
		Message: "invalid key encryption algorithm specified"}

	// ErrEmptyColumnKey indicates an empty key handed to a provider.
	ErrEmptyColumnKey = &Error{Kind: KindValidation, Code: "EmptyColumnKey", Message: "empty column encryption key specified"}

	// ErrNullProvider indicates a key encryption key without a provider.
	ErrNullProvider = &Error{Kind: KindValidation, Code: "NullProvider", Message: "key store provider cannot be null"}

	// ErrInvalidPrecisionScale indicates a precision or scale outside the type's range.
	ErrInvalidPrecisionScale = &Error{Kind: KindValidation, Code: "InvalidPrecisionScale", Message: "invalid precision or scale"}

	// ErrInvalidColumnCount indicates column names and settings of different length.
	ErrInvalidColumnCount = &Error{Kind: KindValidation, Code: "InvalidColumnCount",
		Message: "number of columns do not match the encryption settings count"}

	// ErrAssociatedDataUnsupported indicates associated data passed to an adapter.
	ErrAssociatedDataUnsupported = &Error{Kind: KindValidation, Code: "AssociatedDataUnsupported",
		Message: "associated data is not supported by AEAD_AES_256_CBC_HMAC_SHA256"}
)

var (
	// ErrCiphertextTooShort indicates input below the minimum cell length.
	ErrCiphertextTooShort = &Error{Kind: KindFormat, Code: "CiphertextTooShort", Message: "ciphertext too short"}

	// ErrVersionMismatch indicates an unexpected version byte.
	ErrVersionMismatch = &Error{Kind: KindFormat, Code: "VersionMismatch", Message: "version mismatch"}

	// ErrAuthenticationFailed indicates an authentication tag mismatch (wrong key or tampering).
	ErrAuthenticationFailed = &Error{Kind: KindFormat, Code: "AuthenticationFailed", Message: "specified ciphertext has an invalid authentication tag"}

	// ErrInvalidCiphertext indicates a cipher region that is not whole blocks.
	ErrInvalidCiphertext = &Error{Kind: KindFormat, Code: "InvalidCiphertext", Message: "invalid ciphertext"}

	// ErrSignatureMismatch indicates a wrapped key whose signature does not verify.
	ErrSignatureMismatch = &Error{Kind: KindFormat, Code: "SignatureMismatch", Message: "signature mismatch"}

	// ErrInvalidWrappedKey indicates a truncated or inconsistent wrapped key.
	ErrInvalidWrappedKey = &Error{Kind: KindFormat, Code: "InvalidWrappedKey", Message: "invalid encrypted column encryption key"}

	// ErrInvalidMetadata indicates crypto metadata that cannot be decoded.
	ErrInvalidMetadata = &Error{Kind: KindFormat, Code: "InvalidMetadata", Message: "invalid crypto metadata"}
)

var (
	// ErrDecryptionFailed indicates a failure inside the cipher primitive.
	ErrDecryptionFailed = &Error{Kind: KindCryptoBackend, Code: "DecryptionFailed", Message: "internal error while decryption"}

	// ErrEncryptionFailed indicates a failure inside the cipher primitive.
	ErrEncryptionFailed = &Error{Kind: KindCryptoBackend, Code: "EncryptionFailed", Message: "internal error while encryption"}
)

var (
	// ErrKeyStorePathInvalid indicates a key store file that cannot be found.
	ErrKeyStorePathInvalid = &Error{Kind: KindProvider, Code: "KeyStorePathInvalid",
		Message: "system cannot find the key store file at the specified path"}

	// ErrFileFormatInvalid indicates a key store that cannot be parsed or a wrong password.
	ErrFileFormatInvalid = &Error{Kind: KindProvider, Code: "FileFormatInvalid", Message: "invalid key store file format"}

	// ErrCertificateNotFound indicates an alias without a certificate.
	ErrCertificateNotFound = &Error{Kind: KindProvider, Code: "CertificateNotFound", Message: "certificate not found"}

	// ErrUnrecoverableKey indicates a certificate without a usable RSA private key.
	ErrUnrecoverableKey = &Error{Kind: KindProvider, Code: "UnrecoverableKey", Message: "cannot recover private key"}

	// ErrProviderNotFound indicates metadata naming a provider that was not supplied.
	ErrProviderNotFound = &Error{Kind: KindProvider, Code: "ProviderNotFound", Message: "key store provider not found"}
)

var (
	// ErrUnknownSerializer indicates an unsupported SQL type identifier.
	ErrUnknownSerializer = &Error{Kind: KindSerialization, Code: "UnknownSerializer", Message: "unknown serializer"}

	// ErrInvalidValue indicates a value that cannot be converted to the column type.
	ErrInvalidValue = &Error{Kind: KindSerialization, Code: "InvalidValue", Message: "invalid value"}

	// ErrValueOutOfRange indicates a value outside the range of the column type.
	ErrValueOutOfRange = &Error{Kind: KindSerialization, Code: "ValueOutOfRange", Message: "value out of range"}

	// ErrValueTooLong indicates a value longer than the declared precision.
	ErrValueTooLong = &Error{Kind: KindSerialization, Code: "ValueTooLong", Message: "value too long"}
)

// ErrWasNull indicates the ciphertext was nil (database NULL).
// Returned by the typed helpers when the target type cannot hold NULL.
var ErrWasNull = errors.New("cellcrypt: value was null")

// newError returns an error of the sentinel's kind and code with a formatted message.
func newError(sentinel *Error, format string, args ...any) *Error {
	return &Error{Kind: sentinel.Kind, Code: sentinel.Code, Message: fmt.Sprintf(format, args...)}
}

// wrapError is newError with a cause.
func wrapError(sentinel *Error, cause error, format string, args ...any) *Error {
	e := newError(sentinel, format, args...)
	e.Err = cause
	return e
}

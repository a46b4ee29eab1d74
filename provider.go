package cellcrypt

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // OAEP label hash required by the wrapped key format
	"crypto/sha256"
	"crypto/x509"
	"log/slog"
	"strings"
	"sync"
)

// JavaKeyStoreProviderName is the provider name recorded in key metadata for
// certificate store master keys.
const JavaKeyStoreProviderName = "MSSQL_JAVA_KEYSTORE"

// KeyStoreProvider wraps and unwraps column keys with a column master key and
// signs master key metadata. Implement this interface to integrate other key
// management systems.
type KeyStoreProvider interface {
	// Name returns the provider name recorded in key metadata.
	Name() string

	// WrapKey encrypts key with the master key at masterKeyPath.
	WrapKey(masterKeyPath, algorithm string, key []byte) ([]byte, error)

	// UnwrapKey decrypts a key produced by WrapKey.
	UnwrapKey(masterKeyPath, algorithm string, encryptedKey []byte) ([]byte, error)

	// Sign signs the master key metadata.
	Sign(masterKeyPath string, allowEnclaveComputations bool) ([]byte, error)

	// Verify checks a signature produced by Sign.
	Verify(masterKeyPath string, allowEnclaveComputations bool, signature []byte) (bool, error)
}

// Certificate is a column master key: an X.509 certificate and its RSA private key.
type Certificate struct {
	Certificate *x509.Certificate
	PrivateKey  *rsa.PrivateKey
}

func (c *Certificate) publicKey() (*rsa.PublicKey, bool) {
	if c.Certificate != nil {
		pub, ok := c.Certificate.PublicKey.(*rsa.PublicKey)
		return pub, ok
	}
	if c.PrivateKey != nil {
		return &c.PrivateKey.PublicKey, true
	}
	return nil, false
}

// ProviderOption configures a key store provider.
type ProviderOption func(*providerConfig)

type providerConfig struct {
	name   string
	logger *slog.Logger
}

// WithProviderName overrides the provider name recorded in key metadata.
func WithProviderName(name string) ProviderOption {
	return func(c *providerConfig) {
		c.name = name
	}
}

// WithProviderLogger sets the logger for certificate resolution and cache activity.
// Key material is never logged.
func WithProviderLogger(logger *slog.Logger) ProviderOption {
	return func(c *providerConfig) {
		c.logger = logger
	}
}

func newProviderConfig(defaultName string, opts []ProviderOption) *providerConfig {
	cfg := &providerConfig{name: defaultName, logger: discardLogger()}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// rsaKeyStore implements KeyStoreProvider on top of a certificate lookup.
// Unwrapped keys and verification results are cached for the life of the
// provider; concurrent duplicate computation is harmless.
type rsaKeyStore struct {
	name    string
	logger  *slog.Logger
	resolve func(path string) (*Certificate, error)

	unwrapped sync.Map // string -> []byte
	verified  sync.Map // string -> bool
}

// Name implements KeyStoreProvider.
func (s *rsaKeyStore) Name() string {
	return s.name
}

// WrapKey implements KeyStoreProvider with RSA-OAEP and an RSA-SHA256 signature.
func (s *rsaKeyStore) WrapKey(masterKeyPath, algorithm string, key []byte) ([]byte, error) {
	if err := validateMasterKeyPath(masterKeyPath); err != nil {
		return nil, err
	}
	if err := validateKeyEncryptionAlgorithm(algorithm); err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, ErrEmptyColumnKey
	}

	cert, pub, err := s.certificate(masterKeyPath)
	if err != nil {
		return nil, err
	}

	encrypted, err := rsa.EncryptOAEP(sha1.New(), rand.Reader, pub, key, nil) //nolint:gosec
	if err != nil {
		return nil, wrapError(ErrEncryptionFailed, err, "encrypting column encryption key with %q", masterKeyPath)
	}

	unsigned, err := formatWrappedKey(masterKeyPath, encrypted)
	if err != nil {
		return nil, err
	}

	digest := sha256.Sum256(unsigned)
	signature, err := rsa.SignPKCS1v15(rand.Reader, cert.PrivateKey, crypto.SHA256, digest[:])
	if err != nil {
		return nil, wrapError(ErrEncryptionFailed, err, "signing encrypted column encryption key with %q", masterKeyPath)
	}

	s.logger.Debug("wrapped column key", "provider", s.name, "path", masterKeyPath)
	return append(unsigned, signature...), nil
}

// UnwrapKey implements KeyStoreProvider. The signature is verified before
// any RSA decryption is attempted.
func (s *rsaKeyStore) UnwrapKey(masterKeyPath, algorithm string, encryptedKey []byte) ([]byte, error) {
	if err := validateMasterKeyPath(masterKeyPath); err != nil {
		return nil, err
	}
	if err := validateKeyEncryptionAlgorithm(algorithm); err != nil {
		return nil, err
	}
	if len(encryptedKey) == 0 {
		return nil, newError(ErrInvalidWrappedKey, "internal error. Empty encrypted column encryption key specified")
	}

	cacheKey := strings.ToLower(masterKeyPath) + "\x00" + string(encryptedKey)
	if cached, ok := s.unwrapped.Load(cacheKey); ok {
		s.logger.Debug("column key cache hit", "provider", s.name, "path", masterKeyPath)
		return append([]byte(nil), cached.([]byte)...), nil
	}

	cert, pub, err := s.certificate(masterKeyPath)
	if err != nil {
		return nil, err
	}

	wk, err := parseWrappedKey(encryptedKey, pub.Size())
	if err != nil {
		return nil, err
	}

	digest := sha256.Sum256(wk.signed)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], wk.signature); err != nil {
		return nil, newError(ErrSignatureMismatch,
			"the specified encrypted column encryption key signature does not match the signature computed with the column master key (certificate) in %q. The encrypted column encryption key may be corrupt, or the specified path may be incorrect",
			masterKeyPath)
	}

	key, err := rsa.DecryptOAEP(sha1.New(), nil, cert.PrivateKey, wk.cipher, nil) //nolint:gosec
	if err != nil {
		return nil, wrapError(ErrDecryptionFailed, err, "exception while decryption of encrypted column encryption key with %q", masterKeyPath)
	}

	s.unwrapped.Store(cacheKey, append([]byte(nil), key...))
	s.logger.Debug("unwrapped column key", "provider", s.name, "path", masterKeyPath)
	return key, nil
}

// Sign implements KeyStoreProvider.
func (s *rsaKeyStore) Sign(masterKeyPath string, allowEnclaveComputations bool) ([]byte, error) {
	if err := validateMasterKeyPath(masterKeyPath); err != nil {
		return nil, err
	}
	cert, _, err := s.certificate(masterKeyPath)
	if err != nil {
		return nil, err
	}

	digest, err := s.metadataDigest(masterKeyPath, allowEnclaveComputations)
	if err != nil {
		return nil, err
	}
	signature, err := rsa.SignPKCS1v15(rand.Reader, cert.PrivateKey, crypto.SHA256, digest)
	if err != nil {
		return nil, wrapError(ErrEncryptionFailed, err, "signing master key metadata for %q", masterKeyPath)
	}
	return signature, nil
}

// Verify implements KeyStoreProvider. A signature that does not verify
// yields false without an error.
func (s *rsaKeyStore) Verify(masterKeyPath string, allowEnclaveComputations bool, signature []byte) (bool, error) {
	if err := validateMasterKeyPath(masterKeyPath); err != nil {
		return false, err
	}

	flag := "0"
	if allowEnclaveComputations {
		flag = "1"
	}
	cacheKey := strings.ToLower(masterKeyPath) + "\x00" + flag + "\x00" + string(signature)
	if cached, ok := s.verified.Load(cacheKey); ok {
		return cached.(bool), nil
	}

	_, pub, err := s.certificate(masterKeyPath)
	if err != nil {
		return false, err
	}
	digest, err := s.metadataDigest(masterKeyPath, allowEnclaveComputations)
	if err != nil {
		return false, err
	}

	ok := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest, signature) == nil
	s.verified.Store(cacheKey, ok)
	return ok, nil
}

// metadataDigest hashes UTF16LE(lower(name)) || UTF16LE(lower(path)) || [UTF16LE("true")].
func (s *rsaKeyStore) metadataDigest(masterKeyPath string, allowEnclaveComputations bool) ([]byte, error) {
	h := sha256.New()
	parts := []string{strings.ToLower(s.name), strings.ToLower(masterKeyPath)}
	if allowEnclaveComputations {
		parts = append(parts, "true")
	}
	for _, p := range parts {
		b, err := encodeUTF16LE(p)
		if err != nil {
			return nil, wrapError(ErrInvalidMasterKeyPath, err, "encoding master key metadata for %q", masterKeyPath)
		}
		h.Write(b)
	}
	return h.Sum(nil), nil
}

// certificate resolves the master key and checks it is a usable RSA key pair.
func (s *rsaKeyStore) certificate(masterKeyPath string) (*Certificate, *rsa.PublicKey, error) {
	cert, err := s.resolve(masterKeyPath)
	if err != nil {
		return nil, nil, err
	}
	pub, ok := cert.publicKey()
	if !ok {
		return nil, nil, newError(ErrUnrecoverableKey,
			"certificate %q does not hold an RSA public key", masterKeyPath)
	}
	if cert.PrivateKey == nil {
		return nil, nil, newError(ErrUnrecoverableKey,
			"cannot recover private key from keystore with certificate details %q. Verify that imported certificate for Always Encrypted contains private key and password provided for certificate is correct",
			masterKeyPath)
	}
	return cert, pub, nil
}

func validateMasterKeyPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return newError(ErrInvalidMasterKeyPath, "master key path cannot be null or empty")
	}
	return nil
}

func validateKeyEncryptionAlgorithm(algorithm string) error {
	if !strings.EqualFold(strings.TrimSpace(algorithm), KeyEncryptionAlgorithm) {
		return newError(ErrInvalidKeyEncryptionAlgorithm,
			"invalid key encryption algorithm specified: %s. Expected value: %s", algorithm, KeyEncryptionAlgorithm)
	}
	return nil
}

// StaticKeyStoreProvider is an in-memory KeyStoreProvider.
// Useful for testing or for deployments that load master keys themselves.
type StaticKeyStoreProvider struct {
	rsaKeyStore
	certs map[string]*Certificate
}

// NewStaticKeyStoreProvider creates a provider holding certs by master key path.
// Paths are matched case-insensitively. The map is copied.
func NewStaticKeyStoreProvider(certs map[string]*Certificate, opts ...ProviderOption) *StaticKeyStoreProvider {
	cfg := newProviderConfig(JavaKeyStoreProviderName, opts)
	p := &StaticKeyStoreProvider{certs: make(map[string]*Certificate, len(certs))}
	for path, cert := range certs {
		p.certs[strings.ToLower(path)] = cert
	}
	p.rsaKeyStore.name = cfg.name
	p.rsaKeyStore.logger = cfg.logger
	p.rsaKeyStore.resolve = p.lookup
	return p
}

// Paths returns the registered master key paths, sorted alphabetically.
func (p *StaticKeyStoreProvider) Paths() []string {
	return sortedMapKeys(p.certs)
}

func (p *StaticKeyStoreProvider) lookup(path string) (*Certificate, error) {
	cert, ok := p.certs[strings.ToLower(path)]
	if !ok || cert == nil {
		return nil, newError(ErrCertificateNotFound,
			"certificate with alias %q not found in the store provided by %q", path, p.name)
	}
	return cert, nil
}

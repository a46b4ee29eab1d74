package cellcrypt

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"io"
	"io/fs"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/pavlo-v-chernykh/keystore-go/v4"
	"golang.org/x/crypto/pkcs12"
	gopkcs12 "software.sslmate.com/src/go-pkcs12"
)

// CertificateStoreProvider is a KeyStoreProvider backed by a Java KeyStore
// (JKS) or PKCS#12 file. Master key paths are certificate aliases.
//
// The file is read on every certificate resolution, so replacing it on disk
// takes effect without restarting. Unwrapped keys are cached in memory.
type CertificateStoreProvider struct {
	rsaKeyStore
	path     string
	password []byte
}

// NewCertificateStoreProvider creates a provider for the key store at path.
// The password unlocks both the store and its private key entries.
func NewCertificateStoreProvider(path string, password []byte, opts ...ProviderOption) (*CertificateStoreProvider, error) {
	if strings.TrimSpace(path) == "" {
		return nil, newError(ErrKeyStorePathInvalid, "key store path cannot be null or empty")
	}

	cfg := newProviderConfig(JavaKeyStoreProviderName, opts)
	p := &CertificateStoreProvider{
		path:     path,
		password: append([]byte(nil), password...),
	}
	p.rsaKeyStore.name = cfg.name
	p.rsaKeyStore.logger = cfg.logger
	p.rsaKeyStore.resolve = p.load
	return p, nil
}

// Path returns the key store file path.
func (p *CertificateStoreProvider) Path() string {
	return p.path
}

// Close zeros the stored password. The provider must not be used afterwards.
func (p *CertificateStoreProvider) Close() {
	clear(p.password)
}

// load reads the store and returns the certificate and key for alias.
func (p *CertificateStoreProvider) load(alias string) (*Certificate, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, wrapError(ErrKeyStorePathInvalid, err, "system cannot find the key store file at the specified path: %q", p.path)
		}
		return nil, wrapError(ErrKeyStorePathInvalid, err, "reading key store %q", p.path)
	}

	cert, jksErr := p.loadJKS(data, alias)
	if jksErr == nil {
		p.logger.Debug("resolved certificate", "store", p.path, "format", "jks", "alias", alias)
		return cert, nil
	}
	if !errors.Is(jksErr, errUnparsableStore) {
		return nil, jksErr
	}

	cert, pkcsErr := p.loadPKCS12(data, alias)
	if pkcsErr == nil {
		p.logger.Debug("resolved certificate", "store", p.path, "format", "pkcs12", "alias", alias)
		return cert, nil
	}
	if !errors.Is(pkcsErr, errUnparsableStore) {
		return nil, pkcsErr
	}

	return nil, wrapError(ErrFileFormatInvalid, errors.Join(jksErr, pkcsErr),
		"cannot parse %q. Either the file format is not valid or the password is not correct", p.path)
}

// errUnparsableStore marks a store that could not be read in one format,
// so the next format is tried.
var errUnparsableStore = errors.New("unparsable key store")

func (p *CertificateStoreProvider) loadJKS(data []byte, alias string) (*Certificate, error) {
	ks := keystore.New()
	if err := ks.Load(bytes.NewReader(data), p.password); err != nil {
		return nil, errors.Join(errUnparsableStore, err)
	}

	alias = strings.ToLower(alias)
	var certDER []byte
	switch {
	case ks.IsPrivateKeyEntry(alias):
		entry, err := ks.GetPrivateKeyEntry(alias, p.password)
		if err != nil {
			return nil, p.unrecoverable(alias, err)
		}
		if len(entry.CertificateChain) == 0 {
			return nil, p.notFound(alias)
		}
		certDER = entry.CertificateChain[0].Content

		cert, err := x509.ParseCertificate(certDER)
		if err != nil {
			return nil, p.unrecoverable(alias, err)
		}
		key, err := parseRSAPrivateKey(entry.PrivateKey)
		if err != nil {
			return nil, p.unrecoverable(alias, err)
		}
		return &Certificate{Certificate: cert, PrivateKey: key}, nil
	case ks.IsTrustedCertificateEntry(alias):
		// A certificate without a key cannot unwrap.
		return nil, p.unrecoverable(alias, nil)
	default:
		return nil, p.notFound(alias)
	}
}

// loadPKCS12 reads legacy stores (RC2 and 3DES bags) with x/crypto and
// falls back to go-pkcs12 for PBES2 stores, the OpenSSL 3 and JDK default.
func (p *CertificateStoreProvider) loadPKCS12(data []byte, alias string) (*Certificate, error) {
	blocks, err := pkcs12.ToPEM(data, string(p.password))
	if err != nil {
		var pbes2Err error
		blocks, pbes2Err = gopkcs12.ToPEM(data, string(p.password))
		if pbes2Err != nil {
			return nil, errors.Join(errUnparsableStore, err, pbes2Err)
		}
	}
	return p.pkcs12Entry(blocks, alias)
}

// pkcs12Entry picks the certificate named alias and its private key from
// decoded PKCS#12 bags. A store with no friendly names holds one anonymous
// entry, which answers to any alias when it has exactly one key.
func (p *CertificateStoreProvider) pkcs12Entry(blocks []*pem.Block, alias string) (*Certificate, error) {
	var (
		certDER []byte
		localID string
		keys    = make(map[string]*pem.Block)
		anyKey  *pem.Block
		keyCnt  int
		named   bool
		certIDs = make(map[string][]byte)
		anyCert []byte
		certCnt int
	)
	for _, b := range blocks {
		switch {
		case b.Type == "CERTIFICATE":
			name := b.Headers["friendlyName"]
			if name != "" {
				named = true
			}
			certCnt++
			anyCert = b.Bytes
			if id := b.Headers["localKeyId"]; id != "" {
				certIDs[id] = b.Bytes
			}
			if certDER != nil || !strings.EqualFold(name, alias) {
				continue
			}
			certDER = b.Bytes
			localID = b.Headers["localKeyId"]
		case strings.HasSuffix(b.Type, "PRIVATE KEY"):
			keyCnt++
			anyKey = b
			if id := b.Headers["localKeyId"]; id != "" {
				keys[id] = b
			}
			if name := b.Headers["friendlyName"]; name != "" {
				keys["name:"+strings.ToLower(name)] = b
				named = true
			}
		}
	}
	if certDER == nil && !named && keyCnt == 1 {
		localID = anyKey.Headers["localKeyId"]
		certDER = certIDs[localID]
		if certDER == nil && certCnt == 1 {
			certDER = anyCert
		}
	}
	if certDER == nil {
		return nil, p.notFound(alias)
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, p.unrecoverable(alias, err)
	}

	block := keys[localID]
	if block == nil || localID == "" {
		block = keys["name:"+strings.ToLower(alias)]
	}
	if block == nil && keyCnt == 1 {
		block = anyKey
	}
	if block == nil {
		return nil, p.unrecoverable(alias, nil)
	}
	key, err := parseRSAPrivateKey(block.Bytes)
	if err != nil {
		return nil, p.unrecoverable(alias, err)
	}
	if !key.PublicKey.Equal(cert.PublicKey) {
		return nil, p.unrecoverable(alias, errors.New("private key does not match certificate"))
	}
	return &Certificate{Certificate: cert, PrivateKey: key}, nil
}

func (p *CertificateStoreProvider) notFound(alias string) error {
	return newError(ErrCertificateNotFound,
		"certificate with alias %s not found in the store provided by %s. Verify the certificate has been imported correctly into the certificate location/store",
		alias, p.name)
}

func (p *CertificateStoreProvider) unrecoverable(alias string, cause error) error {
	return wrapError(ErrUnrecoverableKey, cause,
		"cannot recover private key from keystore with certificate details %s. Verify that imported certificate for Always Encrypted contains private key and password provided for certificate is correct",
		alias)
}

// parseRSAPrivateKey accepts PKCS#1 or PKCS#8 DER.
func parseRSAPrivateKey(der []byte) (*rsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not an RSA key")
	}
	return key, nil
}

// WriteCertificateStore writes entries to w as a JKS key store protected by
// password. Aliases are stored lower-cased. The password must be at least
// six bytes.
func WriteCertificateStore(w io.Writer, password []byte, entries map[string]*Certificate) error {
	ks := keystore.New()
	for _, alias := range sortedMapKeys(entries) {
		c := entries[alias]
		if c == nil || c.Certificate == nil || c.PrivateKey == nil {
			return newError(ErrUnrecoverableKey, "certificate %q must hold a certificate and a private key", alias)
		}
		der, err := x509.MarshalPKCS8PrivateKey(c.PrivateKey)
		if err != nil {
			return wrapError(ErrUnrecoverableKey, err, "encoding private key for %q", alias)
		}
		entry := keystore.PrivateKeyEntry{
			CreationTime: time.Now(),
			PrivateKey:   der,
			CertificateChain: []keystore.Certificate{{
				Type:    "X509",
				Content: c.Certificate.Raw,
			}},
		}
		if err := ks.SetPrivateKeyEntry(strings.ToLower(alias), entry, password); err != nil {
			return wrapError(ErrFileFormatInvalid, err, "storing %q", alias)
		}
	}
	if err := ks.Store(w, password); err != nil {
		return wrapError(ErrFileFormatInvalid, err, "writing key store")
	}
	return nil
}

// GenerateCertificate creates a self-signed RSA certificate usable as a
// column master key.
func GenerateCertificate(commonName string, bits int, validFor time.Duration) (*Certificate, error) {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, wrapError(ErrEncryptionFailed, err, "generating %d-bit RSA key", bits)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, wrapError(ErrEncryptionFailed, err, "generating serial number")
	}

	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(validFor),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature | x509.KeyUsageDataEncipherment,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, wrapError(ErrEncryptionFailed, err, "creating certificate %q", commonName)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, wrapError(ErrEncryptionFailed, err, "parsing certificate %q", commonName)
	}
	return &Certificate{Certificate: cert, PrivateKey: key}, nil
}

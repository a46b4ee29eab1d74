package logic

import (
	"bytes"
	"crypto/sha1"
	"fmt"
	"io"
	"os"

	"github.com/ai8future/cellcrypt"
	"github.com/ai8future/cellcrypt/internal/config"
	"github.com/ai8future/cellcrypt/internal/logger"
)

// CreateMasterKey generates a self-signed certificate and stores it in a new
// key store under the configured alias.
func CreateMasterKey(cfg *config.Config, log logger.Logger, out io.Writer) error {
	ks := cfg.KeyStore
	gen := cfg.Generate

	if !gen.Force {
		if _, err := os.Stat(ks.Path); err == nil {
			return fmt.Errorf("key store %s already exists, use --force to overwrite it", ks.Path)
		}
	}

	log.Infof("Generating %d-bit RSA certificate %q", gen.Bits, gen.CommonName)

	cert, err := cellcrypt.GenerateCertificate(gen.CommonName, gen.Bits, gen.ValidFor)
	if err != nil {
		return fmt.Errorf("generating certificate: %w", err)
	}

	var buf bytes.Buffer
	if err := cellcrypt.WriteCertificateStore(&buf, []byte(ks.Password), map[string]*cellcrypt.Certificate{
		ks.Alias: cert,
	}); err != nil {
		return fmt.Errorf("encoding key store: %w", err)
	}

	if err := os.WriteFile(ks.Path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing key store: %w", err)
	}

	log.Debugf("Wrote %d bytes to %s", buf.Len(), ks.Path)

	thumbprint := sha1.Sum(cert.Certificate.Raw)
	fmt.Fprintf(out, "alias:      %s\n", ks.Alias)
	fmt.Fprintf(out, "subject:    %s\n", cert.Certificate.Subject)
	fmt.Fprintf(out, "thumbprint: %X\n", thumbprint)
	fmt.Fprintf(out, "expires:    %s\n", cert.Certificate.NotAfter.UTC().Format("2006-01-02"))

	return nil
}

// GenerateColumnKey creates a random column key wrapped by the configured
// master key and prints its encrypted value.
func GenerateColumnKey(cfg *config.Config, log logger.Logger, out io.Writer) error {
	provider, err := openProvider(cfg, log)
	if err != nil {
		return err
	}
	defer provider.Close()

	kek, err := masterKey(cfg, provider)
	if err != nil {
		return err
	}

	cek, err := cellcrypt.NewProtectedDataEncryptionKey(cfg.Key.KeyName, kek)
	if err != nil {
		return fmt.Errorf("generating column key: %w", err)
	}
	defer cek.Destroy()

	encrypted := config.EncodeHex(cek.EncryptedValue())
	log.Infof("Generated column key %s wrapped by %s", cek.Name(), kek.Name())

	if !cfg.Key.SQL {
		fmt.Fprintln(out, encrypted)
		return nil
	}

	fmt.Fprint(out, createMasterKeySQL(kek))
	fmt.Fprintf(out,
		"CREATE COLUMN ENCRYPTION KEY [%s] WITH VALUES (COLUMN_MASTER_KEY = [%s], ALGORITHM = '%s', ENCRYPTED_VALUE = %s);\n",
		cek.Name(), kek.Name(), cellcrypt.KeyEncryptionAlgorithm, encrypted)

	return nil
}

func createMasterKeySQL(kek *cellcrypt.KeyEncryptionKey) string {
	enclave := ""
	if kek.IsEnclaveSupported() {
		enclave = fmt.Sprintf(", ENCLAVE_COMPUTATIONS (SIGNATURE = %s)", config.EncodeHex(kek.Signature()))
	}

	return fmt.Sprintf("CREATE COLUMN MASTER KEY [%s] WITH (KEY_STORE_PROVIDER_NAME = N'%s', KEY_PATH = N'%s'%s);\n",
		kek.Name(), kek.Provider().Name(), kek.Path(), enclave)
}

// UnwrapColumnKey checks that an encrypted column key opens under the
// configured master key. The root key is printed only when asked for.
func UnwrapColumnKey(cfg *config.Config, log logger.Logger, out io.Writer) error {
	provider, err := openProvider(cfg, log)
	if err != nil {
		return err
	}
	defer provider.Close()

	cek, err := columnKey(cfg, provider)
	if err != nil {
		return err
	}
	defer cek.Destroy()

	if cfg.Key.Reveal {
		log.Warnf("Printing the plaintext root key of %s", cek.Name())
		fmt.Fprintln(out, config.EncodeHex(cek.RootKey()))
		return nil
	}

	fmt.Fprintf(out, "column key %s opens with %s (%s)\n", cek.Name(), cfg.KeyStore.Alias, cfg.Key.MasterKeyName)

	return nil
}

func openProvider(cfg *config.Config, log logger.Logger) (*cellcrypt.CertificateStoreProvider, error) {
	log.Debugf("Opening key store %s", cfg.KeyStore.Path)

	provider, err := cellcrypt.NewCertificateStoreProvider(cfg.KeyStore.Path, []byte(cfg.KeyStore.Password),
		cellcrypt.WithProviderLogger(log.Slog()))
	if err != nil {
		return nil, fmt.Errorf("opening key store: %w", err)
	}

	return provider, nil
}

func masterKey(cfg *config.Config, provider cellcrypt.KeyStoreProvider) (*cellcrypt.KeyEncryptionKey, error) {
	kek, err := cellcrypt.NewKeyEncryptionKey(cfg.Key.MasterKeyName, cfg.KeyStore.Alias, provider, cfg.Key.Enclave)
	if err != nil {
		return nil, fmt.Errorf("loading master key: %w", err)
	}

	return kek, nil
}

func columnKey(cfg *config.Config, provider cellcrypt.KeyStoreProvider) (*cellcrypt.ProtectedDataEncryptionKey, error) {
	kek, err := masterKey(cfg, provider)
	if err != nil {
		return nil, err
	}

	encrypted, err := config.DecodeHex(cfg.Key.EncryptedKey)
	if err != nil {
		return nil, fmt.Errorf("decoding column key: %w", err)
	}

	cek, err := cellcrypt.OpenProtectedDataEncryptionKey(cfg.Key.KeyName, kek, encrypted)
	if err != nil {
		return nil, fmt.Errorf("opening column key: %w", err)
	}

	return cek, nil
}

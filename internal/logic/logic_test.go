package logic

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ai8future/cellcrypt"
	"github.com/ai8future/cellcrypt/internal/config"
	"github.com/ai8future/cellcrypt/internal/logger"
)

func quietLogger() logger.Logger {
	return logger.Logger{Out: &bytes.Buffer{}, Err: &bytes.Buffer{}}
}

// testConfig creates a key store with a fresh master key and a column key
// wrapped by it.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := &config.Config{
		Parallel: 4,
		KeyStore: config.KeyStore{
			Path:     filepath.Join(t.TempDir(), "cmk.jks"),
			Password: "changeit",
			Alias:    "cmk1",
		},
		Key:      config.Key{MasterKeyName: "CMK1", KeyName: "CEK1"},
		Column:   config.Column{Type: "nvarchar", Mode: "randomized"},
		Generate: config.Generate{CommonName: "test cmk", Bits: 2048, ValidFor: time.Hour},
	}

	var out bytes.Buffer
	require.NoError(t, CreateMasterKey(cfg, quietLogger(), &out))
	require.Contains(t, out.String(), "alias:      cmk1")

	out.Reset()
	require.NoError(t, GenerateColumnKey(cfg, quietLogger(), &out))
	cfg.Key.EncryptedKey = strings.TrimSpace(out.String())

	return cfg
}

func lines(s string) []string {
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}

func TestCreateMasterKey_RefusesOverwrite(t *testing.T) {
	cfg := testConfig(t)

	err := CreateMasterKey(cfg, quietLogger(), &bytes.Buffer{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "already exists")

	cfg.Generate.Force = true
	require.NoError(t, CreateMasterKey(cfg, quietLogger(), &bytes.Buffer{}))

	// The old column key was wrapped by the replaced certificate.
	err = UnwrapColumnKey(cfg, quietLogger(), &bytes.Buffer{})
	require.Error(t, err)
}

func TestGenerateColumnKey(t *testing.T) {
	cfg := testConfig(t)

	encrypted, err := config.DecodeHex(cfg.Key.EncryptedKey)
	require.NoError(t, err)
	require.Len(t, encrypted, 525)
	require.True(t, strings.HasPrefix(cfg.Key.EncryptedKey, "0x01"))
}

func TestGenerateColumnKey_SQL(t *testing.T) {
	cfg := testConfig(t)
	cfg.Key.SQL = true
	cfg.Key.Enclave = true

	var out bytes.Buffer
	require.NoError(t, GenerateColumnKey(cfg, quietLogger(), &out))

	got := lines(out.String())
	require.Len(t, got, 2)
	require.Contains(t, got[0], "CREATE COLUMN MASTER KEY [CMK1]")
	require.Contains(t, got[0], "KEY_STORE_PROVIDER_NAME = N'"+cellcrypt.JavaKeyStoreProviderName+"'")
	require.Contains(t, got[0], "KEY_PATH = N'cmk1'")
	require.Contains(t, got[0], "ENCLAVE_COMPUTATIONS (SIGNATURE = 0x")
	require.Contains(t, got[1], "CREATE COLUMN ENCRYPTION KEY [CEK1]")
	require.Contains(t, got[1], "ALGORITHM = 'RSA_OAEP'")
	require.Contains(t, got[1], "ENCRYPTED_VALUE = 0x01")
}

func TestUnwrapColumnKey(t *testing.T) {
	cfg := testConfig(t)

	var out bytes.Buffer
	require.NoError(t, UnwrapColumnKey(cfg, quietLogger(), &out))
	require.Equal(t, "column key CEK1 opens with cmk1 (CMK1)\n", out.String())

	errs := &bytes.Buffer{}
	log := logger.Logger{Out: &bytes.Buffer{}, Err: errs}
	cfg.Key.Reveal = true
	out.Reset()
	require.NoError(t, UnwrapColumnKey(cfg, log, &out))

	root, err := config.DecodeHex(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	require.Len(t, root, 32)
	require.Contains(t, errs.String(), "plaintext root key")
}

func TestUnwrapColumnKey_Errors(t *testing.T) {
	cfg := testConfig(t)

	wrongPassword := *cfg
	wrongPassword.KeyStore.Password = "wrong-password"
	require.Error(t, UnwrapColumnKey(&wrongPassword, quietLogger(), &bytes.Buffer{}))

	wrongAlias := *cfg
	wrongAlias.KeyStore.Alias = "missing"
	require.Error(t, UnwrapColumnKey(&wrongAlias, quietLogger(), &bytes.Buffer{}))

	tampered := *cfg
	tampered.Key.EncryptedKey = cfg.Key.EncryptedKey[:len(cfg.Key.EncryptedKey)-2] + "00"
	if tampered.Key.EncryptedKey == cfg.Key.EncryptedKey {
		tampered.Key.EncryptedKey = cfg.Key.EncryptedKey[:len(cfg.Key.EncryptedKey)-2] + "01"
	}
	require.Error(t, UnwrapColumnKey(&tampered, quietLogger(), &bytes.Buffer{}))
}

func TestEncryptDecrypt(t *testing.T) {
	tests := []struct {
		name      string
		typ       string
		precision int
		scale     int
		values    []string
		want      []string
	}{
		{"nvarchar", "nvarchar", 0, 0, []string{"alice", "NULL", "bob"}, []string{"alice", "NULL", "bob"}},
		{"int", "int", 0, 0, []string{"1", "-2", "2147483647"}, []string{"1", "-2", "2147483647"}},
		{"decimal", "decimal", 10, 2, []string{"123.456", "-0.5"}, []string{"123.46", "-0.5"}},
		{"varbinary", "varbinary", 0, 0, []string{"0xDEADBEEF"}, []string{"0xDEADBEEF"}},
		{"date", "date", 0, 0, []string{"2024-01-15"}, []string{"2024-01-15"}},
		{"datetimeoffset", "datetimeoffset", 0, 3,
			[]string{"2024-01-15 12:00:00.123 +02:00"}, []string{"2024-01-15 12:00:00.123 +02:00"}},
		{"guid", "uniqueidentifier", 0, 0,
			[]string{"00112233-4455-6677-8899-aabbccddeeff"}, []string{"00112233-4455-6677-8899-aabbccddeeff"}},
	}

	cfg := testConfig(t)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *cfg
			c.Column = config.Column{Type: tt.typ, Precision: tt.precision, Scale: tt.scale, Mode: "randomized"}
			c.Values = tt.values

			var encrypted bytes.Buffer
			require.NoError(t, Encrypt(&c, quietLogger(), &encrypted))

			cts := lines(encrypted.String())
			require.Len(t, cts, len(tt.values))

			c.Values = cts

			var decrypted bytes.Buffer
			require.NoError(t, Decrypt(&c, quietLogger(), &decrypted))
			require.Equal(t, tt.want, lines(decrypted.String()))
		})
	}
}

func TestEncrypt_Deterministic(t *testing.T) {
	cfg := testConfig(t)
	cfg.Column.Mode = "deterministic"
	cfg.Values = []string{"same", "same", "other"}

	var out bytes.Buffer
	require.NoError(t, Encrypt(cfg, quietLogger(), &out))

	cts := lines(out.String())
	require.Equal(t, cts[0], cts[1])
	require.NotEqual(t, cts[0], cts[2])
}

func TestEncrypt_CodePage(t *testing.T) {
	cfg := testConfig(t)
	cfg.Column.Type = "varchar"
	cfg.CodePage = "windows-1252"
	cfg.Values = []string{"café"}

	var out bytes.Buffer
	require.NoError(t, Encrypt(cfg, quietLogger(), &out))

	cfg.Values = lines(out.String())
	out.Reset()
	require.NoError(t, Decrypt(cfg, quietLogger(), &out))
	require.Equal(t, "café\n", out.String())

	cfg.CodePage = "no-such-code-page"
	require.Error(t, Encrypt(cfg, quietLogger(), &bytes.Buffer{}))
}

func TestEncrypt_Errors(t *testing.T) {
	cfg := testConfig(t)

	badValue := *cfg
	badValue.Column.Type = "int"
	badValue.Values = []string{"1", "not a number"}
	err := Encrypt(&badValue, quietLogger(), &bytes.Buffer{})
	require.ErrorIs(t, err, cellcrypt.ErrInvalidValue)
	require.Contains(t, err.Error(), "value 2")

	badType := *cfg
	badType.Column.Type = "xml"
	require.ErrorIs(t, Encrypt(&badType, quietLogger(), &bytes.Buffer{}), cellcrypt.ErrUnknownSerializer)
}

func TestDecrypt_Errors(t *testing.T) {
	cfg := testConfig(t)
	cfg.Values = []string{"alice"}

	var out bytes.Buffer
	require.NoError(t, Encrypt(cfg, quietLogger(), &out))
	ct := strings.TrimSpace(out.String())

	tampered := *cfg
	tampered.Values = []string{ct[:len(ct)-2] + flipHex(ct[len(ct)-2:])}
	require.ErrorIs(t, Decrypt(&tampered, quietLogger(), &bytes.Buffer{}), cellcrypt.ErrAuthenticationFailed)

	short := *cfg
	short.Values = []string{"0x01"}
	require.ErrorIs(t, Decrypt(&short, quietLogger(), &bytes.Buffer{}), cellcrypt.ErrCiphertextTooShort)

	notHex := *cfg
	notHex.Values = []string{"zz"}
	require.Error(t, Decrypt(&notHex, quietLogger(), &bytes.Buffer{}))
}

func flipHex(b string) string {
	if b == "00" {
		return "01"
	}
	return "00"
}

// Package config holds the command-line configuration and its validation.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// PasswordEnv names the environment variable consulted when --password is empty.
const PasswordEnv = "CELLCRYPT_KEYSTORE_PASSWORD"

// Config is shared by all commands. Each command validates only the
// sections it uses.
type Config struct {
	// Common flags
	Verbose  bool
	Debug    bool
	EnvFile  string
	Parallel int `validate:"min=1" label:"--parallel"`
	CodePage string

	KeyStore KeyStore `validate:"-"`
	Key      Key      `validate:"-"`
	Column   Column   `validate:"-"`
	Generate Generate `validate:"-"`

	// Positional arguments, or lines from stdin when none are given
	Values []string
}

// KeyStore locates a column master key inside a JKS or PKCS#12 file.
type KeyStore struct {
	Path     string `validate:"required"       label:"--keystore"`
	Password string `validate:"required,min=6" label:"--password"`
	Alias    string `validate:"required"       label:"--alias"`
}

// Key names a column encryption key and the master key that wraps it.
type Key struct {
	MasterKeyName string `validate:"required"             label:"--cmk-name"`
	KeyName       string `validate:"required"             label:"--cek-name"`
	EncryptedKey  string `validate:"required,hexadecimal" label:"--cek"`
	Enclave       bool

	// Output switches
	SQL    bool
	Reveal bool
}

// Column describes the SQL type and encryption mode of one column.
type Column struct {
	Type      string `validate:"required"                                label:"--type"`
	Precision int    `validate:"min=0,max=8000"                          label:"--precision"`
	Scale     int    `validate:"min=0,max=38"                            label:"--scale"`
	Mode      string `validate:"required,oneof=deterministic randomized" label:"--mode"`
}

// Generate controls creation of a new master key certificate.
type Generate struct {
	CommonName string        `validate:"required"                label:"--common-name"`
	Bits       int           `validate:"oneof=2048 3072 4096"    label:"--bits"`
	ValidFor   time.Duration `validate:"gt=0"                    label:"--valid-for"`
	Force      bool
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		const splitSize = 2

		name := strings.SplitN(fld.Tag.Get("label"), ",", splitSize)[0]
		if name == "" || name == "-" {
			return fld.Name
		}

		return name
	})

	return v
}

// LoadEnv loads variables from the env file, if one exists, without
// overriding the process environment.
func (c *Config) LoadEnv() error {
	if c.EnvFile == "" {
		return nil
	}

	if err := godotenv.Load(c.EnvFile); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("loading %s: %w", c.EnvFile, err)
	}

	return nil
}

// ResolvePassword falls back to the environment when no password flag was given.
func (c *Config) ResolvePassword() {
	if c.KeyStore.Password == "" {
		c.KeyStore.Password = os.Getenv(PasswordEnv)
	}
}

// Validate checks the common flags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validating configuration: %w", err)
	}

	return nil
}

// ValidateKeyStore checks the common flags and the key store section.
func (c *Config) ValidateKeyStore() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if err := validate.Struct(c.KeyStore); err != nil {
		return fmt.Errorf("validating key store: %w", err)
	}

	return nil
}

// ValidateKeyGen checks what is needed to create a new column key.
func (c *Config) ValidateKeyGen() error {
	if err := c.ValidateKeyStore(); err != nil {
		return err
	}

	if err := validate.StructPartial(c.Key, "MasterKeyName", "KeyName"); err != nil {
		return fmt.Errorf("validating column key: %w", err)
	}

	return nil
}

// ValidateKey checks what is needed to open an existing column key.
func (c *Config) ValidateKey() error {
	if err := c.ValidateKeyStore(); err != nil {
		return err
	}

	if err := validate.Struct(c.Key); err != nil {
		return fmt.Errorf("validating column key: %w", err)
	}

	// Additional key validation
	if _, err := DecodeHex(c.Key.EncryptedKey); err != nil {
		return fmt.Errorf("invalid column key format: %w", err)
	}

	return nil
}

// ValidateColumn checks everything encrypt and decrypt need.
func (c *Config) ValidateColumn() error {
	if err := c.ValidateKey(); err != nil {
		return err
	}

	c.Column.Mode = strings.ToLower(strings.TrimSpace(c.Column.Mode))

	if err := validate.Struct(c.Column); err != nil {
		return fmt.Errorf("validating column: %w", err)
	}

	return nil
}

// ValidateGenerate checks the key store and certificate sections.
func (c *Config) ValidateGenerate() error {
	if err := c.ValidateKeyStore(); err != nil {
		return err
	}

	if err := validate.Struct(c.Generate); err != nil {
		return fmt.Errorf("validating certificate: %w", err)
	}

	return nil
}

// DecodeHex decodes s with an optional 0x prefix, as SQL Server prints binary.
func DecodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}

	return hex.DecodeString(s)
}

// EncodeHex formats b the way SQL Server prints binary values.
func EncodeHex(b []byte) string {
	return "0x" + strings.ToUpper(hex.EncodeToString(b))
}

// Package commands wires the cobra command tree to the logic package.
package commands

import (
	"bufio"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ai8future/cellcrypt/internal/config"
	"github.com/ai8future/cellcrypt/internal/logger"
)

// NewRootCommand creates the root command with the flags every subcommand shares.
func NewRootCommand(cfg *config.Config, version string) *cobra.Command {
	var log logger.Logger

	root := &cobra.Command{
		Use:     "cellcrypt [flags] command [flags]",
		Short:   "Client-side column encryption for SQL Server",
		Version: version,
		Long: `Encrypts and decrypts column values in the SQL Server Always Encrypted
cell format (AEAD_AES_256_CBC_HMAC_SHA256).

Column master keys live in a JKS or PKCS#12 key store. Column encryption
keys are stored wrapped with RSA-OAEP and unwrapped on demand.

The key store password may come from --password, from the
` + config.PasswordEnv + ` environment variable, or from an .env file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log = logger.Logger{
				Verbose: cfg.Verbose,
				Debug:   cfg.Debug,
				Out:     cmd.ErrOrStderr(),
				Err:     cmd.ErrOrStderr(),
			}

			if err := cfg.LoadEnv(); err != nil {
				return err
			}

			cfg.ResolvePassword()
			log.Debugf("Using key store %s, alias %s", cfg.KeyStore.Path, cfg.KeyStore.Alias)

			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable verbose output")
	flags.BoolVarP(&cfg.Debug, "debug", "d", false, "Enable debug output")
	flags.StringVar(&cfg.EnvFile, "env-file", ".env", "Environment file to load before running")
	flags.IntVarP(&cfg.Parallel, "parallel", "j", runtime.NumCPU(), "Number of parallel workers")
	flags.StringVarP(&cfg.KeyStore.Path, "keystore", "k", "", "Path to the JKS or PKCS#12 key store")
	flags.StringVarP(&cfg.KeyStore.Password, "password", "p", "",
		"Key store password (defaults to $"+config.PasswordEnv+")")
	flags.StringVarP(&cfg.KeyStore.Alias, "alias", "a", "", "Key store alias of the column master key")

	logf := func() logger.Logger { return log }

	root.AddCommand(
		NewCMKCommand(cfg, logf),
		NewKeyGenCommand(cfg, logf),
		NewUnwrapCommand(cfg, logf),
		NewEncryptCommand(cfg, logf),
		NewDecryptCommand(cfg, logf),
	)

	return root
}

// addKeyFlags registers the flags that name a column key and its master key.
func addKeyFlags(cmd *cobra.Command, cfg *config.Config, withValue bool) {
	cmd.Flags().StringVar(&cfg.Key.MasterKeyName, "cmk-name", "CMK1", "Name of the column master key")
	cmd.Flags().StringVar(&cfg.Key.KeyName, "cek-name", "CEK1", "Name of the column encryption key")
	cmd.Flags().BoolVar(&cfg.Key.Enclave, "enclave", false, "Master key allows enclave computations")

	if withValue {
		cmd.Flags().StringVar(&cfg.Key.EncryptedKey, "cek", "", "Encrypted column key value, hex")
	}
}

// readValues returns the positional arguments, or the non-empty lines of in
// when there are none.
func readValues(args []string, in io.Reader) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}

	var values []string

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}

		values = append(values, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading values: %w", err)
	}

	return values, nil
}

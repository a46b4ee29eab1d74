package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/ai8future/cellcrypt/internal/config"
	"github.com/ai8future/cellcrypt/internal/logger"
	"github.com/ai8future/cellcrypt/internal/logic"
)

// NewCMKCommand creates the command that generates a column master key.
func NewCMKCommand(cfg *config.Config, log func() logger.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cmk",
		Short: "Create a key store holding a new column master key",
		Long: `Generates a self-signed RSA certificate and writes it to a new JKS key
store under --alias. An existing key store is only replaced with --force.`,
		Args: cobra.NoArgs,
		PreRunE: func(_ *cobra.Command, _ []string) error {
			return cfg.ValidateGenerate()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return logic.CreateMasterKey(cfg, log(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&cfg.Generate.CommonName, "common-name", "Always Encrypted Auto Certificate",
		"Subject common name of the certificate")
	cmd.Flags().IntVar(&cfg.Generate.Bits, "bits", 2048, "RSA key size: 2048, 3072 or 4096")
	cmd.Flags().DurationVar(&cfg.Generate.ValidFor, "valid-for", 5*365*24*time.Hour, "Certificate validity period")
	cmd.Flags().BoolVarP(&cfg.Generate.Force, "force", "f", false, "Overwrite an existing key store")

	return cmd
}

// NewKeyGenCommand creates the command that generates a column encryption key.
func NewKeyGenCommand(cfg *config.Config, log func() logger.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "keygen",
		Aliases: []string{"cek"},
		Short:   "Generate a column encryption key",
		Long: `Generates a random 256-bit column encryption key, wraps it with the
column master key and prints the encrypted value. With --sql the matching
CREATE COLUMN MASTER KEY and CREATE COLUMN ENCRYPTION KEY statements are
printed instead.`,
		Args: cobra.NoArgs,
		PreRunE: func(_ *cobra.Command, _ []string) error {
			return cfg.ValidateKeyGen()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return logic.GenerateColumnKey(cfg, log(), cmd.OutOrStdout())
		},
	}

	addKeyFlags(cmd, cfg, false)
	cmd.Flags().BoolVar(&cfg.Key.SQL, "sql", false, "Print T-SQL key definitions")

	return cmd
}

// NewUnwrapCommand creates the command that checks an encrypted column key.
func NewUnwrapCommand(cfg *config.Config, log func() logger.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unwrap",
		Short: "Check that a column encryption key opens with the master key",
		Args:  cobra.NoArgs,
		PreRunE: func(_ *cobra.Command, _ []string) error {
			return cfg.ValidateKey()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return logic.UnwrapColumnKey(cfg, log(), cmd.OutOrStdout())
		},
	}

	addKeyFlags(cmd, cfg, true)
	cmd.Flags().BoolVar(&cfg.Key.Reveal, "reveal", false, "Print the plaintext root key")

	return cmd
}

package commands

import (
	"github.com/spf13/cobra"

	"github.com/ai8future/cellcrypt/internal/config"
	"github.com/ai8future/cellcrypt/internal/logger"
	"github.com/ai8future/cellcrypt/internal/logic"
)

// addColumnFlags registers the flags that describe the column being processed.
func addColumnFlags(cmd *cobra.Command, cfg *config.Config) {
	addKeyFlags(cmd, cfg, true)

	cmd.Flags().StringVarP(&cfg.Column.Type, "type", "t", "nvarchar", "SQL type of the column")
	cmd.Flags().IntVar(&cfg.Column.Precision, "precision", 0, "Precision, or length for character and binary types")
	cmd.Flags().IntVar(&cfg.Column.Scale, "scale", 0, "Scale for decimal and temporal types")
	cmd.Flags().StringVarP(&cfg.Column.Mode, "mode", "m", "randomized", "Encryption mode: deterministic or randomized")
	cmd.Flags().StringVar(&cfg.CodePage, "code-page", "", "Character encoding of char and varchar values, e.g. windows-1252")
}

// NewEncryptCommand creates the command that encrypts values.
func NewEncryptCommand(cfg *config.Config, log func() logger.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "encrypt [flags] [values...]",
		Aliases: []string{"enc"},
		Short:   "Encrypt column values",
		Long: `Encrypts each value and prints one hex ciphertext per line, in input
order. Values are read from stdin, one per line, when none are given.
NULL stays NULL. Binary values are given in hex.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			values, err := readValues(args, cmd.InOrStdin())
			if err != nil {
				return err
			}

			cfg.Values = values

			return cfg.ValidateColumn()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return logic.Encrypt(cfg, log(), cmd.OutOrStdout())
		},
	}

	addColumnFlags(cmd, cfg)

	return cmd
}

// NewDecryptCommand creates the command that decrypts values.
func NewDecryptCommand(cfg *config.Config, log func() logger.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "decrypt [flags] [ciphertexts...]",
		Aliases: []string{"dec"},
		Short:   "Decrypt column values",
		Long: `Decrypts each hex ciphertext and prints one value per line, in input
order. Ciphertexts are read from stdin, one per line, when none are given.
The mode flag is ignored; every cell carries what decryption needs.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			values, err := readValues(args, cmd.InOrStdin())
			if err != nil {
				return err
			}

			cfg.Values = values

			return cfg.ValidateColumn()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return logic.Decrypt(cfg, log(), cmd.OutOrStdout())
		},
	}

	addColumnFlags(cmd, cfg)

	return cmd
}

// Package logic implements the command-line operations on master keys,
// column keys and cell values.
package logic

import (
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/ai8future/cellcrypt"
	"github.com/ai8future/cellcrypt/internal/config"
	"github.com/ai8future/cellcrypt/internal/logger"
)

// column bundles what encrypt and decrypt share.
type column struct {
	session  *cellcrypt.Session
	settings *cellcrypt.EncryptionSettings
	typ      cellcrypt.SQLType
	cleanup  func()
}

func openColumn(cfg *config.Config, log logger.Logger) (*column, error) {
	typ, err := cellcrypt.ParseSQLType(cfg.Column.Type)
	if err != nil {
		return nil, fmt.Errorf("parsing column type: %w", err)
	}

	mode, err := cellcrypt.ParseEncryptionMode(cfg.Column.Mode)
	if err != nil {
		return nil, fmt.Errorf("parsing encryption mode: %w", err)
	}

	opts := []cellcrypt.Option{cellcrypt.WithLogger(log.Slog())}
	if cfg.CodePage != "" {
		enc, err := cellcrypt.LookupCodePage(cfg.CodePage)
		if err != nil {
			return nil, fmt.Errorf("resolving code page: %w", err)
		}

		opts = append(opts, cellcrypt.WithCodePage(enc))
	}

	session := cellcrypt.NewSession(opts...)

	ser, err := session.SerializerFor(typ, cfg.Column.Precision, cfg.Column.Scale)
	if err != nil {
		return nil, fmt.Errorf("creating serializer: %w", err)
	}

	provider, err := openProvider(cfg, log)
	if err != nil {
		return nil, err
	}

	cek, err := columnKey(cfg, provider)
	if err != nil {
		provider.Close()
		return nil, err
	}

	settings, err := cellcrypt.NewEncryptionSettings(cfg.Key.KeyName, cek, mode, ser)
	if err != nil {
		cek.Destroy()
		provider.Close()
		return nil, fmt.Errorf("creating encryption settings: %w", err)
	}

	log.Debugf("Column type %s, mode %s, key %s", ser.TypeID(), mode, cek.Name())

	return &column{
		session:  session,
		settings: settings,
		typ:      typ,
		cleanup: func() {
			cek.Destroy()
			provider.Close()
		},
	}, nil
}

// Encrypt encrypts every configured value and prints one ciphertext per
// line, in input order.
func Encrypt(cfg *config.Config, log logger.Logger, out io.Writer) error {
	col, err := openColumn(cfg, log)
	if err != nil {
		return err
	}
	defer col.cleanup()

	log.Infof("Encrypting %d values with %d workers", len(cfg.Values), cfg.Parallel)

	results, err := process(cfg.Values, cfg.Parallel, func(s string) (string, error) {
		v, err := ParseValue(col.typ, s)
		if err != nil {
			return "", err
		}

		ct, err := col.session.Encrypt(v, col.settings)
		if err != nil {
			return "", err
		}

		return FormatCiphertext(ct), nil
	})
	if err != nil {
		return fmt.Errorf("encrypting: %w", err)
	}

	return printLines(out, results)
}

// Decrypt decrypts every configured ciphertext and prints one value per
// line, in input order.
func Decrypt(cfg *config.Config, log logger.Logger, out io.Writer) error {
	col, err := openColumn(cfg, log)
	if err != nil {
		return err
	}
	defer col.cleanup()

	log.Infof("Decrypting %d values with %d workers", len(cfg.Values), cfg.Parallel)

	results, err := process(cfg.Values, cfg.Parallel, func(s string) (string, error) {
		ct, err := ParseCiphertext(s)
		if err != nil {
			return "", err
		}

		v, err := col.session.Decrypt(ct, col.settings)
		if err != nil {
			return "", err
		}

		return FormatValue(col.typ, v), nil
	})
	if err != nil {
		return fmt.Errorf("decrypting: %w", err)
	}

	return printLines(out, results)
}

// process applies fn to every input on at most parallel goroutines and
// returns the results in input order. The first error wins.
func process(inputs []string, parallel int, fn func(string) (string, error)) ([]string, error) {
	results := make([]string, len(inputs))

	g := errgroup.Group{}
	g.SetLimit(parallel)

	for i, in := range inputs {
		g.Go(func() error {
			r, err := fn(in)
			if err != nil {
				return fmt.Errorf("value %d: %w", i+1, err)
			}

			results[i] = r

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

func printLines(out io.Writer, lines []string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(out, line); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
	}

	return nil
}

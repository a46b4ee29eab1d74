package cellcrypt

import (
	"io"
	"log/slog"

	"golang.org/x/text/encoding"
)

// Option is a functional option for configuring a Session.
type Option func(*config)

// config holds session configuration options.
type config struct {
	logger               *slog.Logger
	codePage             encoding.Encoding
	compressionThreshold int
	compressionDisabled  bool
}

// defaultConfig returns the default configuration.
func defaultConfig() *config {
	return &config{
		logger:               discardLogger(),
		compressionThreshold: defaultCompressionThreshold,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// WithLogger sets the structured logger. Only key names, paths and sizes are
// logged. A nil logger keeps the default, which discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCodePage sets the character encoding of char and varchar values.
// Default is UTF-8. See LookupCodePage for resolving names like "windows-1252".
func WithCodePage(enc encoding.Encoding) Option {
	return func(c *config) {
		c.codePage = enc
	}
}

// WithMetadataCompressionThreshold sets the minimum marshaled size in bytes
// before crypto metadata is compressed. Default is 1024 (1KB).
func WithMetadataCompressionThreshold(bytes int) Option {
	return func(c *config) {
		c.compressionThreshold = bytes
	}
}

// WithMetadataCompressionDisabled disables crypto metadata compression entirely.
func WithMetadataCompressionDisabled() Option {
	return func(c *config) {
		c.compressionDisabled = true
	}
}

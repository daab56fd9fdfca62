package internal

import (
	"io"
	"log/slog"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	logger  *slog.Logger
	version string
	in      io.Reader
	out     io.Writer
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithLogger replaces the default stderr JSON logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *application) {
		a.logger = log
	}
}

// WithVersion sets the version reported to MCP clients.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}

// WithStdio sets the protocol transport streams. Defaults to os.Stdin and
// os.Stdout.
func WithStdio(in io.Reader, out io.Writer) Option {
	return func(a *application) {
		a.in = in
		a.out = out
	}
}

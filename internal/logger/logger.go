// Package logger prints leveled, colored messages for the command line.
//
//	log := logger.Logger{Verbose: verbose, Debug: debug}
//	log.Infof("Encrypting %d values", count)
//
// Info messages need --verbose or --debug; debug messages need --debug.
// Warnings and errors are always printed to stderr.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
)

type Logger struct {
	Verbose bool
	Debug   bool

	// Out and Err default to os.Stdout and os.Stderr.
	Out io.Writer
	Err io.Writer
}

func (l Logger) stdout() io.Writer {
	if l.Out != nil {
		return l.Out
	}
	return os.Stdout
}

func (l Logger) stderr() io.Writer {
	if l.Err != nil {
		return l.Err
	}
	return os.Stderr
}

func (l Logger) Infof(msg string, args ...any) {
	if l.Verbose || l.Debug {
		fmt.Fprintf(l.stdout(), color.GreenString("[info] ")+msg+"\n", args...)
	}
}

func (l Logger) Debugf(msg string, args ...any) {
	if l.Debug {
		fmt.Fprintf(l.stdout(), color.CyanString("[debug] ")+msg+"\n", args...)
	}
}

func (l Logger) Warnf(msg string, args ...any) {
	fmt.Fprintf(l.stderr(), color.YellowString("[warn] ")+msg+"\n", args...)
}

func (l Logger) Errorf(msg string, args ...any) {
	fmt.Fprintf(l.stderr(), color.RedString("[error] ")+msg+"\n", args...)
}

// Slog returns a structured logger for the library. It writes debug records
// to stderr when Debug is set and discards everything otherwise.
func (l Logger) Slog() *slog.Logger {
	if !l.Debug {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(l.stderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
}

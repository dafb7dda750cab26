// Package log configures the process-wide zerolog logger.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config captures options for configuring the global logger.
type Config struct {
	Level   string    // optional log level ("debug", "info", etc.)
	Output  io.Writer // optional writer (defaults to os.Stderr)
	Service string    // optional service name attached to every log entry
	Console bool      // human readable output instead of JSON
}

var (
	once sync.Once
	base zerolog.Logger
)

// DebugEnabled reports the umbrella debug switch. It forces debug level and
// makes child process command lines visible.
func DebugEnabled() bool {
	return strings.TrimSpace(os.Getenv("SCREENREC_DEBUG")) == "1"
}

// Configure initialises the global logger exactly once.
func Configure(cfg Config) {
	once.Do(func() {
		base = build(cfg)
	})
}

func build(cfg Config) zerolog.Logger {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zerolog.ParseLevel(cfg.Level); err == nil {
			level = parsed
		}
	}
	if DebugEnabled() {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	writer := cfg.Output
	if writer == nil {
		writer = debugOutput()
	}
	if cfg.Console {
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: "15:04:05.000"}
	}

	service := cfg.Service
	if service == "" {
		service = "screenrec"
	}
	return zerolog.New(writer).With().
		Timestamp().
		Str("service", service).
		Logger()
}

// debugOutput honours SCREENREC_DEBUG_FILE so debug sessions can be captured
// from GUI launches that have no terminal.
func debugOutput() io.Writer {
	p := strings.TrimSpace(os.Getenv("SCREENREC_DEBUG_FILE"))
	if p == "" {
		return os.Stderr
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "screenrec debug log open failed: %v\n", err)
		return os.Stderr
	}
	return f
}

func logger() zerolog.Logger {
	Configure(Config{})
	return base
}

// Base returns the configured base logger instance.
func Base() zerolog.Logger {
	return logger()
}

// WithComponent returns a child logger annotated with the given component name.
func WithComponent(component string) zerolog.Logger {
	return logger().With().Str("component", component).Logger()
}

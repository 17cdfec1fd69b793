package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger configuration
type Config struct {
	Level  string // debug, info, warn, error
	File   string // log file path; empty logs to Out
	Pretty bool   // human-readable console format
	// Out receives logs when File is empty. Defaults to stderr so logs
	// never mix with node output on stdout.
	Out io.Writer
}

// Logger is a zerolog.Logger that owns its log file, if any.
type Logger struct {
	zerolog.Logger
	file *os.File
}

func New(cfg Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var writer io.Writer = os.Stderr
	if cfg.Out != nil {
		writer = cfg.Out
	}

	var file *os.File
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err = os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writer = file
	}

	if cfg.Pretty {
		writer = zerolog.ConsoleWriter{
			Out:        writer,
			TimeFormat: time.RFC3339,
			NoColor:    file != nil,
		}
	}

	l := zerolog.New(writer).
		Level(level).
		With().
		Timestamp().
		Logger()

	return &Logger{Logger: l, file: file}, nil
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Package logger wraps zerolog with the harvester's console/JSON/rotating-
// file output setup.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger so callers can depend on this package's type
// instead of importing zerolog directly.
type Logger struct {
	zerolog.Logger
}

// Config holds logger configuration.
type Config struct {
	Level    string
	Pretty   bool
	Service  string
	Version  string
	LogsDir  string
	MaxBytes int64
	Backups  int
}

// New creates a structured logger writing to stdout and, when LogsDir is
// set, to a size-capped rotating file (one file per process start, matching
// the original's per-run logfile naming).
func New(cfg Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var output zerolog.LevelWriter
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	} else {
		output = os.Stdout
	}

	if cfg.LogsDir != "" {
		rotating, err := NewRotatingFile(cfg.LogsDir, cfg.MaxBytes, cfg.Backups)
		if err != nil {
			return nil, err
		}
		output = zerolog.MultiLevelWriter(output, rotating)
	}

	logger := zerolog.New(output).
		With().
		Timestamp().
		Str("service", cfg.Service).
		Str("version", cfg.Version).
		Logger()

	return &Logger{logger}, nil
}

// Package logging builds the logrus logger shared by the CLI and handed to
// the core packages as a logrus.FieldLogger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	Level      string `json:"level" yaml:"level"`   // trace, debug, info, warn, error
	Format     string `json:"format" yaml:"format"` // text or json
	Output     string `json:"output" yaml:"output"` // stdout, stderr or file
	Filename   string `json:"filename,omitempty" yaml:"filename,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty" yaml:"max_size_mb,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty" yaml:"max_age_days,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty" yaml:"max_backups,omitempty"`
	Compress   bool   `json:"compress,omitempty" yaml:"compress,omitempty"`
}

func Default() Config {
	return Config{
		Level:      "info",
		Format:     "text",
		Output:     "stderr",
		Filename:   "logs/allocator.log",
		MaxSizeMB:  50,
		MaxAgeDays: 30,
		MaxBackups: 5,
	}
}

func (c Config) Validate() error {
	if c.Level != "" {
		if _, err := logrus.ParseLevel(c.Level); err != nil {
			return fmt.Errorf("log.level: %w", err)
		}
	}
	switch c.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be 'text' or 'json', got %q", c.Format)
	}
	switch c.Output {
	case "", "stdout", "stderr":
	case "file":
		if c.Filename == "" {
			return fmt.Errorf("log.filename is required for file output")
		}
	default:
		return fmt.Errorf("log.output must be 'stdout', 'stderr' or 'file', got %q", c.Output)
	}
	return nil
}

// New builds a logger from c. File output is rotated by lumberjack; the
// returned closer releases it and is a no-op for stdout/stderr.
func New(c Config) (*logrus.Logger, io.Closer, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}
	log := logrus.New()

	level := logrus.InfoLevel
	if c.Level != "" {
		level, _ = logrus.ParseLevel(c.Level)
	}
	log.SetLevel(level)

	if c.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	}

	var closer io.Closer = nopCloser{}
	switch c.Output {
	case "stdout":
		log.SetOutput(os.Stdout)
	case "file":
		if err := os.MkdirAll(filepath.Dir(c.Filename), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		lj := &lumberjack.Logger{
			Filename:   c.Filename,
			MaxSize:    c.MaxSizeMB,
			MaxAge:     c.MaxAgeDays,
			MaxBackups: c.MaxBackups,
			Compress:   c.Compress,
		}
		log.SetOutput(lj)
		closer = lj
	default:
		log.SetOutput(os.Stderr)
	}
	return log, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

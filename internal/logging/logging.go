// Package logging builds the per-component loggers used across logsync.
//
// Every component logs through a standard *log.Logger with a bracketed
// prefix ("[sync] ", "[daemon] "). Output always goes to stderr and, when a
// log file is configured, also to a size-rotated file.
package logging

import (
	"io"
	"log"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls the optional log file.
type Config struct {
	// File enables file logging when non-empty.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	// Stderr replaces os.Stderr, mainly for tests.
	Stderr io.Writer
	// Quiet drops console output; the log file still receives everything.
	Quiet bool
}

// Sink is the shared destination for component loggers.
type Sink struct {
	out  io.Writer
	file *lumberjack.Logger
	once sync.Once
}

// Open returns a sink for cfg. The log file is created lazily on first write.
func Open(cfg Config) *Sink {
	console := cfg.Stderr
	if console == nil {
		console = os.Stderr
	}
	if cfg.Quiet {
		console = io.Discard
	}

	s := &Sink{out: console}
	if cfg.File != "" {
		s.file = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		s.out = io.MultiWriter(console, s.file)
	}
	return s
}

// Writer returns the combined destination.
func (s *Sink) Writer() io.Writer {
	return s.out
}

// New returns a logger for component, prefixed "[component] ".
func (s *Sink) New(component string) *log.Logger {
	return log.New(s.out, "["+component+"] ", log.LstdFlags)
}

// Close closes the log file, if any. It is safe to call more than once.
func (s *Sink) Close() error {
	var err error
	s.once.Do(func() {
		if s.file != nil {
			err = s.file.Close()
		}
	})
	return err
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}

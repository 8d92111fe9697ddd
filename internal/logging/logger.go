// Package logging writes the per-iteration audit log.
//
// Every iteration gets its own JSON-lines file under the configured log
// directory, so an operator can reconstruct what the driver selected, what the
// worker reported and what changed, even after the process exited.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// IterationLog is the audit log of one iteration.
type IterationLog struct {
	path   string
	file   *os.File
	logger *slog.Logger
}

// Open creates the log file for iterationID under dir. An empty dir yields a
// log that discards everything.
func Open(dir, iterationID string, startedAt time.Time) (*IterationLog, error) {
	if dir == "" {
		return Discard(), nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}

	name := fmt.Sprintf("%s-%s.jsonl", startedAt.UTC().Format("20060102T150405Z"), iterationID)
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})).
		With(slog.String("iteration", iterationID))
	return &IterationLog{path: path, file: f, logger: logger}, nil
}

// Discard returns a log that writes nowhere.
func Discard() *IterationLog {
	return &IterationLog{logger: slog.New(slog.NewJSONHandler(io.Discard, nil))}
}

// Path is the file path, or empty for a discarding log.
func (l *IterationLog) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Logger returns the structured logger bound to this iteration.
func (l *IterationLog) Logger() *slog.Logger {
	if l == nil || l.logger == nil {
		return slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return l.logger
}

// Close releases the file handle.
func (l *IterationLog) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

package internal

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyText is returned when an event would carry no text.
	ErrEmptyText = errors.New("event text is empty")
	// ErrNoRepo is returned when an event has no resolved repository.
	ErrNoRepo = errors.New("event repo is empty")
)

// SourceUnavailableError reports that a collector's data location is missing
// or unreadable. Collectors treat it as "zero events", never as a failure.
type SourceUnavailableError struct {
	Source Source
	Path   string
	Err    error
}

func (e *SourceUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("source unavailable [%s] %s", e.Source, e.Path)
	}
	return fmt.Sprintf("source unavailable [%s] %s: %v", e.Source, e.Path, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error {
	return e.Err
}

// StorageError represents errors accessing storage files
type StorageError struct {
	Path string
	Op   string // "open", "migrate", "insert", "query"
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ParseError represents errors parsing data
type ParseError struct {
	Source string // "cursor", "claude", "cli", "git"
	Key    string // storage key, file:line or commit hash
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error [%s] %s: %v", e.Source, e.Key, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ExternalProcessError represents a failed or timed-out subprocess.
type ExternalProcessError struct {
	Command  []string
	ExitCode int
	TimedOut bool
	Stderr   string
	Err      error
}

func (e *ExternalProcessError) Error() string {
	cmd := strings.Join(e.Command, " ")
	if e.TimedOut {
		return fmt.Sprintf("process timed out: %s", cmd)
	}
	if e.Stderr != "" {
		return fmt.Sprintf("process failed (exit %d): %s: %s", e.ExitCode, cmd, e.Stderr)
	}
	return fmt.Sprintf("process failed (exit %d): %s: %v", e.ExitCode, cmd, e.Err)
}

func (e *ExternalProcessError) Unwrap() error {
	return e.Err
}

// ExportError represents errors during export
type ExportError struct {
	Format string
	Path   string
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export error [%s] %s: %v", e.Format, e.Path, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a timed-out external process.
func IsTimeout(err error) bool {
	var pe *ExternalProcessError
	return errors.As(err, &pe) && pe.TimedOut
}

// IsBusy reports whether err looks like SQLite lock contention.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "sqlite_busy") ||
		strings.Contains(msg, "database is busy")
}

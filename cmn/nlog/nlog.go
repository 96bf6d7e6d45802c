// Package nlog is a small, hand-rolled leveled logger. It exists for
// the same reason the teacher's own cmn/nlog exists: a process that
// runs unattended for the duration of an experiment wants cheap,
// timestamped, one-line-per-call logging to stderr or to a file without
// pulling in a generic logging framework for what is a handful of
// severities and one output path.
package nlog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

type severity int

const (
	SevDebug severity = iota
	SevInfo
	SevWarning
	SevError
)

func (s severity) String() string {
	switch s {
	case SevDebug:
		return "DEBUG"
	case SevInfo:
		return "INFO"
	case SevWarning:
		return "WARN"
	case SevError:
		return "ERROR"
	default:
		return "?"
	}
}

// ParseSeverity maps the CLI -v/--verbosity values onto a severity.
func ParseSeverity(s string) (severity, error) {
	switch s {
	case "debug":
		return SevDebug, nil
	case "info":
		return SevInfo, nil
	case "warning", "warn":
		return SevWarning, nil
	case "error":
		return SevError, nil
	default:
		return SevInfo, fmt.Errorf("nlog: unrecognized verbosity %q", s)
	}
}

var (
	mu       sync.Mutex
	out      io.Writer = os.Stderr
	fh       *os.File
	threshold          = SevInfo
	quiet    bool
)

// SetOutput redirects log output to the given path, in addition to
// keeping the file handle open for the lifetime of the process. Passing
// an empty path leaves output on stderr.
func SetOutput(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("nlog: open log file %q: %w", path, err)
	}
	mu.Lock()
	if fh != nil {
		fh.Close()
	}
	fh = f
	out = f
	mu.Unlock()
	return nil
}

// SetThreshold sets the minimum severity that gets written out.
func SetThreshold(s severity) { mu.Lock(); threshold = s; mu.Unlock() }

// SetQuiet disables all log output regardless of threshold; used for -q.
func SetQuiet(q bool) { mu.Lock(); quiet = q; mu.Unlock() }

func log(sev severity, format string, args ...any) {
	mu.Lock()
	if quiet || sev < threshold {
		mu.Unlock()
		return
	}
	w := out
	mu.Unlock()

	ts := time.Now().Format("2006-01-02T15:04:05.000Z07:00")
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(w, "%s %-5s %s\n", ts, sev, msg)
}

func Debugf(format string, args ...any)   { log(SevDebug, format, args...) }
func Infof(format string, args ...any)    { log(SevInfo, format, args...) }
func Warningf(format string, args ...any) { log(SevWarning, format, args...) }
func Errorf(format string, args ...any)   { log(SevError, format, args...) }

func Debugln(args ...any)   { log(SevDebug, "%s", fmt.Sprintln(args...)) }
func Infoln(args ...any)    { log(SevInfo, "%s", fmt.Sprintln(args...)) }
func Warningln(args ...any) { log(SevWarning, "%s", fmt.Sprintln(args...)) }
func Errorln(args ...any)   { log(SevError, "%s", fmt.Sprintln(args...)) }

// Flush syncs the underlying log file, if one is open. Safe to call
// even when logging to stderr only.
func Flush() {
	mu.Lock()
	defer mu.Unlock()
	if fh != nil {
		fh.Sync()
	}
}

// Close flushes and closes the log file, if one is open.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if fh == nil {
		return nil
	}
	err := fh.Close()
	fh = nil
	out = os.Stderr
	return err
}

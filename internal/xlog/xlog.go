// Package xlog provides the scheduler's internal structured logging: named
// *log.Logger instances backed by the standard library, switchable between
// a file sink and stderr. A library must not write to stdout on its
// consumer's behalf, so Initialize defaults to a file in the OS temp
// directory and only falls back to stderr if that file cannot be opened.
package xlog

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

var (
	Info  *log.Logger
	Warn  *log.Logger
	Error *log.Logger
	Debug *log.Logger
)

var debugEnabled = os.Getenv("TASKQUEUE_DEBUG") == "true" || os.Getenv("TASKQUEUE_DEBUG") == "1"

var logFileName = filepath.Join(os.TempDir(), "taskqueue.log")

var globalLogFile *os.File

func init() {
	Initialize()
}

// Initialize opens the log sink. Safe to call more than once; the last
// call wins. Tests and host programs that want deterministic output can
// call it again after changing logFileName-equivalent state, but normally
// the package-level init is sufficient.
func Initialize() {
	f, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		Info = log.New(os.Stderr, "INFO: ", log.Ldate|log.Ltime|log.Lshortfile)
		Warn = log.New(os.Stderr, "WARN: ", log.Ldate|log.Ltime|log.Lshortfile)
		Error = log.New(os.Stderr, "ERROR: ", log.Ldate|log.Ltime|log.Lshortfile)
		if debugEnabled {
			Debug = log.New(os.Stderr, "DEBUG: ", log.Ldate|log.Ltime|log.Lshortfile)
		} else {
			Debug = log.New(io.Discard, "", 0)
		}
		return
	}

	Info = log.New(f, "INFO: ", log.Ldate|log.Ltime|log.Lshortfile)
	Warn = log.New(f, "WARN: ", log.Ldate|log.Ltime|log.Lshortfile)
	Error = log.New(f, "ERROR: ", log.Ldate|log.Ltime|log.Lshortfile)
	if debugEnabled {
		Debug = log.New(f, "DEBUG: ", log.Ldate|log.Ltime|log.Lshortfile)
	} else {
		Debug = log.New(io.Discard, "", 0)
	}

	globalLogFile = f
}

// Close flushes and closes the underlying log file, if one was opened.
func Close() {
	if globalLogFile != nil {
		_ = globalLogFile.Close()
	}
}

// Every throttles repeated log lines to at most once per timeout, so a
// busy scheduling loop falling back to polling doesn't flood the sink.
type Every struct {
	timeout time.Duration
	timer   *time.Timer
}

func NewEvery(timeout time.Duration) *Every {
	return &Every{timeout: timeout}
}

// ShouldLog reports whether timeout has elapsed since the last time it
// returned true.
func (e *Every) ShouldLog() bool {
	if e.timer == nil {
		e.timer = time.NewTimer(e.timeout)
		return true
	}
	select {
	case <-e.timer.C:
		e.timer.Reset(e.timeout)
		return true
	default:
		return false
	}
}

// IsDebugEnabled reports whether TASKQUEUE_DEBUG is set to "1" or "true".
func IsDebugEnabled() bool {
	return debugEnabled
}

// TaskField formats a task id for inclusion in a log line.
func TaskField(id fmt.Stringer) string {
	return id.String()
}

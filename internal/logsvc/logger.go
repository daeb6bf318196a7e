package logsvc

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/rollbar/rollbar-go"
)

// Logger writes component-prefixed lines to a std logger and, when a Rollbar
// token is configured, forwards errors to Rollbar.
type Logger struct {
	std     *log.Logger
	rollbar bool
}

// New returns a logger writing to stderr. An empty token disables Rollbar.
func New(token, env string) *Logger {
	l := &Logger{std: log.New(os.Stderr, "", log.LstdFlags)}
	if token != "" {
		rollbar.SetToken(token)
		rollbar.SetEnvironment(env)
		rollbar.SetCodeVersion("lmsportal")
		rollbar.SetEnabled(true)
		l.rollbar = true
	}
	return l
}

// NewWriter returns a logger writing to w without error reporting. Used by tests.
func NewWriter(w io.Writer) *Logger {
	return &Logger{std: log.New(w, "", 0)}
}

// Discard drops everything.
func Discard() *Logger {
	return NewWriter(io.Discard)
}

func (l *Logger) Printf(format string, args ...any) {
	if l == nil {
		log.Printf(format, args...)
		return
	}
	l.std.Printf(format, args...)
}

// Errorf logs an error line and reports it to Rollbar when enabled.
func (l *Logger) Errorf(format string, args ...any) {
	err := fmt.Errorf(format, args...)
	if l == nil {
		log.Print(err)
		return
	}
	l.std.Print(err)
	if l.rollbar {
		rollbar.Error(err)
	}
}

// Close flushes pending Rollbar items.
func (l *Logger) Close() {
	if l != nil && l.rollbar {
		rollbar.Close()
	}
}

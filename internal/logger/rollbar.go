package logger

import (
	"github.com/rollbar/rollbar-go"
)

// Rollbar forwards warnings and errors to Rollbar on top of the local
// Std behavior. Used when an access token is configured; everything
// still lands in the local log and ring buffer.
type Rollbar struct {
	*Std
}

var _ Logger = (*Rollbar)(nil)

// NewRollbar configures the rollbar client and wraps std.
func NewRollbar(std *Std, token, environment string) *Rollbar {
	rollbar.SetToken(token)
	rollbar.SetEnvironment(environment)
	return &Rollbar{Std: std}
}

func (l *Rollbar) Warn(msg string, args ...interface{}) {
	rollbar.Warning(format(msg, args))
	l.Std.Warn(msg, args...)
}

func (l *Rollbar) Error(msg string, args ...interface{}) {
	rollbar.Error(format(msg, args))
	l.Std.Error(msg, args...)
}

// Close blocks until pending reports are delivered.
func (l *Rollbar) Close() error {
	rollbar.Close()
	return nil
}

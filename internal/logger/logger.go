package logger

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// Logger is the logging contract the client packages depend on.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// recordCap bounds the in-memory record of recent problems.
const recordCap = 50

// Record is one retained warning or error.
type Record struct {
	Level     string
	Message   string
	Timestamp time.Time
}

// Std logs through the standard library and keeps a bounded ring of the
// most recent Warn/Error records for inspection after the fact.
type Std struct {
	std *log.Logger

	mu      sync.Mutex
	records []Record
	next    int
	full    bool
}

var _ Logger = (*Std)(nil)

// NewStd wraps std. A nil std uses the default logger.
func NewStd(std *log.Logger) *Std {
	if std == nil {
		std = log.Default()
	}
	return &Std{
		std:     std,
		records: make([]Record, recordCap),
	}
}

func format(msg string, args []interface{}) string {
	if len(args) > 0 {
		return fmt.Sprintf(msg, args...)
	}
	return msg
}

func (l *Std) printf(level, msg string, args []interface{}) {
	l.std.Printf("[%s] %s", level, format(msg, args))
}

func (l *Std) record(level, msg string, args []interface{}) {
	msg = format(msg, args)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[l.next] = Record{Level: level, Message: msg, Timestamp: time.Now()}
	l.next++
	if l.next == recordCap {
		l.next = 0
		l.full = true
	}
}

func (l *Std) Debug(msg string, args ...interface{}) { l.printf("DEBUG", msg, args) }
func (l *Std) Info(msg string, args ...interface{})  { l.printf("INFO", msg, args) }

func (l *Std) Warn(msg string, args ...interface{}) {
	l.printf("WARN", msg, args)
	l.record("WARN", msg, args)
}

func (l *Std) Error(msg string, args ...interface{}) {
	l.printf("ERROR", msg, args)
	l.record("ERROR", msg, args)
}

// Recent returns retained records, oldest first.
func (l *Std) Recent() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.full {
		out := make([]Record, l.next)
		copy(out, l.records[:l.next])
		return out
	}
	out := make([]Record, 0, recordCap)
	out = append(out, l.records[l.next:]...)
	out = append(out, l.records[:l.next]...)
	return out
}

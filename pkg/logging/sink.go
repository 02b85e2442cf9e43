package logging

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// record is a captured log entry awaiting replay.
type record struct {
	level     LogLevel
	subsystem string
	message   string
	err       error
	at        time.Time
}

// Sink buffers log entries and replays them to the process console, in
// original order and at their original severity, when Drain is called. The
// Test Executor creates one Sink per run and drains it when the run returns,
// so a run's buffered records reach the console together; records logged
// through the package-level functions are not buffered. This addresses the same
// problem the teacher's TUI-vs-CLI handler split in Initcommon solves for a
// single writer shared across goroutines.
type Sink struct {
	mu      sync.Mutex
	records []record
}

// NewSink creates an empty, ready-to-use Sink.
func NewSink() *Sink {
	return &Sink{}
}

func (s *Sink) append(level LogLevel, subsystem string, err error, messageFmt string, args ...interface{}) {
	msg := messageFmt
	if len(args) > 0 {
		msg = fmt.Sprintf(messageFmt, args...)
	}
	s.mu.Lock()
	s.records = append(s.records, record{level: level, subsystem: subsystem, message: msg, err: err, at: time.Now()})
	s.mu.Unlock()
}

// Debug buffers a debug-level record.
func (s *Sink) Debug(subsystem, messageFmt string, args ...interface{}) {
	s.append(LevelDebug, subsystem, nil, messageFmt, args...)
}

// Info buffers an info-level record.
func (s *Sink) Info(subsystem, messageFmt string, args ...interface{}) {
	s.append(LevelInfo, subsystem, nil, messageFmt, args...)
}

// Warn buffers a warn-level record.
func (s *Sink) Warn(subsystem, messageFmt string, args ...interface{}) {
	s.append(LevelWarn, subsystem, nil, messageFmt, args...)
}

// Error buffers an error-level record.
func (s *Sink) Error(subsystem string, err error, messageFmt string, args ...interface{}) {
	s.append(LevelError, subsystem, err, messageFmt, args...)
}

// Drain replays every buffered record, in insertion order, to the package
// logger at its original severity, then clears the buffer. Records below the
// package logger's level are dropped; if the package logger was never
// initialized, records are written to stderr by fallbackLog. Safe to call
// concurrently with further buffering, though callers should only drain once
// the run's work has fully completed.
func (s *Sink) Drain() {
	s.mu.Lock()
	pending := s.records
	s.records = nil
	s.mu.Unlock()

	for _, r := range pending {
		if defaultLogger == nil {
			fallbackLog(r.level, r.subsystem, r.message, r.at)
			continue
		}
		if !defaultLogger.Enabled(context.Background(), r.level.SlogLevel()) {
			continue
		}
		switch r.level {
		case LevelDebug:
			Debug(r.subsystem, "%s", r.message)
		case LevelWarn:
			Warn(r.subsystem, "%s", r.message)
		case LevelError:
			Error(r.subsystem, r.err, "%s", r.message)
		default:
			Info(r.subsystem, "%s", r.message)
		}
	}
}

// Package monitoring owns the log streams shared by the map engine, the
// world store and the HTTP surface.
//
// There are three streams:
//   - ops: actionable warnings, errors and lifecycle events
//   - diag: day-to-day diagnostics and tuning context
//   - trace: high-frequency per-frame telemetry
//
// Every stream is disabled until SetLogWriters gives it a writer.
package monitoring

import (
	"io"
	"log"
	"sync"
)

// LogWriters holds the io.Writers for each logging stream.
type LogWriters struct {
	Ops   io.Writer
	Diag  io.Writer
	Trace io.Writer
}

const logPrefix = "[saucemap] "

var (
	mu          sync.RWMutex
	opsLogger   *log.Logger
	diagLogger  *log.Logger
	traceLogger *log.Logger
)

// SetLogWriters configures all three logging streams at once.
// Pass nil for any writer to disable that stream.
func SetLogWriters(w LogWriters) {
	mu.Lock()
	defer mu.Unlock()
	opsLogger = newLogger(w.Ops)
	diagLogger = newLogger(w.Diag)
	traceLogger = newLogger(w.Trace)
}

func newLogger(w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, logPrefix, log.LstdFlags|log.Lmicroseconds)
}

func logTo(l **log.Logger, format string, args ...interface{}) {
	mu.RLock()
	lg := *l
	mu.RUnlock()
	if lg != nil {
		lg.Printf(format, args...)
	}
}

// Opsf logs to the ops stream.
func Opsf(format string, args ...interface{}) { logTo(&opsLogger, format, args...) }

// Diagf logs to the diag stream.
func Diagf(format string, args ...interface{}) { logTo(&diagLogger, format, args...) }

// Tracef logs to the trace stream.
func Tracef(format string, args ...interface{}) { logTo(&traceLogger, format, args...) }

// TraceEnabled reports whether the trace stream has a writer. Callers use it
// to skip building per-frame messages nobody will read.
func TraceEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return traceLogger != nil
}

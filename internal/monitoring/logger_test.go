package monitoring

import (
	"bytes"
	"strings"
	"testing"
)

func TestSetLogWriters_Streams(t *testing.T) {
	defer SetLogWriters(LogWriters{})

	var ops, diag, trace bytes.Buffer
	SetLogWriters(LogWriters{Ops: &ops, Diag: &diag, Trace: &trace})

	Opsf("course %d loaded", 6)
	Diagf("canvas scale %.2f", 0.5)
	Tracef("frame %d", 7)

	if !strings.Contains(ops.String(), "[saucemap] ") || !strings.Contains(ops.String(), "course 6 loaded") {
		t.Errorf("ops output = %q", ops.String())
	}
	if !strings.Contains(diag.String(), "canvas scale 0.50") {
		t.Errorf("diag output = %q", diag.String())
	}
	if !strings.Contains(trace.String(), "frame 7") {
		t.Errorf("trace output = %q", trace.String())
	}
}

func TestSetLogWriters_Disable(t *testing.T) {
	var buf bytes.Buffer
	SetLogWriters(LogWriters{Ops: &buf, Diag: &buf, Trace: &buf})
	SetLogWriters(LogWriters{})

	Opsf("dropped")
	Diagf("dropped")
	Tracef("dropped")

	if buf.Len() != 0 {
		t.Errorf("expected no output after disabling, got %q", buf.String())
	}
	if TraceEnabled() {
		t.Error("TraceEnabled() = true after disabling")
	}
}

func TestTraceEnabled(t *testing.T) {
	defer SetLogWriters(LogWriters{})

	var buf bytes.Buffer
	SetLogWriters(LogWriters{Trace: &buf})
	if !TraceEnabled() {
		t.Error("TraceEnabled() = false with a trace writer")
	}
}

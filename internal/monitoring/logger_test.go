package monitoring

import (
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	if !called {
		t.Error("custom logger was not called")
	}

	// nil installs a no-op logger
	called = false
	SetLogger(nil)
	Logf("test message")
	if called {
		t.Error("no-op logger should not have triggered callback")
	}
}

func TestLogf_Default(t *testing.T) {
	if Logf == nil {
		t.Error("Logf should not be nil by default")
	}

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Logf panicked: %v", r)
		}
	}()
	Logf("test message: %s", "value")
}

func TestSetDebug(t *testing.T) {
	originalLogf := Logf
	originalDebugf := Debugf
	defer func() {
		Logf = originalLogf
		Debugf = originalDebugf
	}()

	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, format)
	})

	// Disabled by default: nothing reaches the logger.
	Debugf("dropped")
	if len(lines) != 0 {
		t.Fatalf("expected no debug output while disabled, got %v", lines)
	}

	SetDebug(true)
	Debugf("visible")
	if len(lines) != 1 || lines[0] != "visible" {
		t.Fatalf("expected debug line to pass through, got %v", lines)
	}

	SetDebug(false)
	Debugf("dropped again")
	if len(lines) != 1 {
		t.Fatalf("expected debug output muted after disable, got %v", lines)
	}
}

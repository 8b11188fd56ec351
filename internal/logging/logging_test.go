package logging

import "testing"

func TestNewDefaultsToInfoOnBadLevel(t *testing.T) {
	l := New("not-a-level")
	if l.entry.Logger.GetLevel().String() != "info" {
		t.Errorf("expected info level fallback, got %s", l.entry.Logger.GetLevel())
	}
}

func TestWithAddsFields(t *testing.T) {
	l := New("debug")
	scoped := l.With("session_id", "abc123")
	if scoped == nil {
		t.Fatal("expected non-nil scoped logger")
	}
	// Smoke test: none of these should panic.
	scoped.Debug("turn started", "turn_id", "t1")
	scoped.Info("stage complete", "stage", "asr")
	scoped.Warn("slow provider", "latency_ms", 500)
	scoped.Error("provider failed", "err", "timeout")
}

func TestFieldsOfIgnoresOddTrailingKey(t *testing.T) {
	fields := fieldsOf([]interface{}{"a", 1, "b"})
	if len(fields) != 1 || fields["a"] != 1 {
		t.Errorf("expected only paired key to survive, got %v", fields)
	}
}

package metrics

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"
)

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	meter := noop.NewMeterProvider().Meter("test")
	r := &Recorder{}
	if err := r.init(meter); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	return r
}

func TestRecorderRecordsWithoutPanicking(t *testing.T) {
	r := newTestRecorder(t)
	ctx := context.Background()

	r.TurnCompleted(ctx, "Completed")
	r.BargeIn(ctx)
	r.ProviderError(ctx, "groq", "transient")
	r.StageLatency(ctx, "asr", 120*time.Millisecond)
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	ctx := context.Background()

	r.TurnCompleted(ctx, "Cancelled")
	r.BargeIn(ctx)
	r.ProviderError(ctx, "lokutor", "timeout")
	r.StageLatency(ctx, "tts_first_chunk", 50*time.Millisecond)
}

func TestGlobalReturnsSameInstance(t *testing.T) {
	a := Global()
	b := Global()
	if a != b {
		t.Error("expected Global() to return the same Recorder across calls")
	}
}

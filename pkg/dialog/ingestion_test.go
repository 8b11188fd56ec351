package dialog

import (
	"context"
	"testing"

	"github.com/vox-dialog/dialogd/pkg/audio"
)

func TestIngestionBufferWindowsInOrder(t *testing.T) {
	b := NewIngestionBuffer(4, 1000, 16000, nil)

	b.WriteSamples([]int16{1, 2, 3, 4, 5, 6, 7, 8})

	w1, off1, ok := b.NextWindow()
	if !ok || off1 != 0 {
		t.Fatalf("expected first window at offset 0, got ok=%v off=%d", ok, off1)
	}
	if w1[0] != 1 || w1[3] != 4 {
		t.Errorf("unexpected first window contents: %v", w1)
	}

	w2, off2, ok := b.NextWindow()
	if !ok || off2 != 4 {
		t.Fatalf("expected second window at offset 4, got ok=%v off=%d", ok, off2)
	}
	if w2[0] != 5 || w2[3] != 8 {
		t.Errorf("unexpected second window contents: %v", w2)
	}

	if _, _, ok := b.NextWindow(); ok {
		t.Error("expected no more full windows")
	}
}

func TestIngestionBufferDropsOldestOnBacklog(t *testing.T) {
	b := NewIngestionBuffer(4, 4, 16000, nil)

	if warn := b.WriteSamples([]int16{1, 2, 3, 4}); warn != nil {
		t.Fatalf("expected no warning while under backlog cap, got %+v", warn)
	}
	warn := b.WriteSamples([]int16{5, 6})
	if warn == nil || warn.DroppedSamples != 2 {
		t.Fatalf("expected a 2-sample drop warning, got %+v", warn)
	}
	if b.DroppedTotal() != 2 {
		t.Errorf("expected DroppedTotal=2, got %d", b.DroppedTotal())
	}

	w, off, ok := b.NextWindow()
	if !ok || off != 2 || w[0] != 3 || w[3] != 6 {
		t.Fatalf("expected the oldest 2 samples dropped, got ok=%v off=%d w=%v", ok, off, w)
	}
}

func TestIngestionBufferWriteBytesRejectsOddLength(t *testing.T) {
	b := NewIngestionBuffer(4, 1000, 16000, nil)
	if _, err := b.WriteBytes([]byte{1, 2, 3}); err != ErrInvalidFrame {
		t.Errorf("expected ErrInvalidFrame, got %v", err)
	}
}

func TestIngestionBufferWriteBytesPropagatesBackpressureWarning(t *testing.T) {
	b := NewIngestionBuffer(4, 4, 16000, nil)
	raw := audio.Int16ToBytes([]int16{1, 2, 3, 4, 5, 6})

	warn, err := b.WriteBytes(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if warn == nil || warn.DroppedSamples != 2 {
		t.Fatalf("expected WriteBytes to surface the backpressure warning, got %+v", warn)
	}
}

func TestSessionEmitsBackpressureWarningEvent(t *testing.T) {
	cfg := testSessionConfig()
	cfg.IngestionMaxBacklogMS = 1 // 16 samples at 16kHz: force a drop almost immediately
	s := NewSession("s-backpressure", cfg, &fakeASR{}, &fakeStreamingLLM{}, &fakeTTS{}, nil, nil)
	defer s.Close()

	ctx := context.Background()
	frame := audio.Int16ToBytes(make([]int16, 512))
	for i := 0; i < 5; i++ {
		s.OnAudioFrame(ctx, frame)
	}

	found := false
	draining := true
	for draining {
		select {
		case e := <-s.DrainOutbound():
			if e.Type == EventBackpressure {
				found = true
			}
		default:
			draining = false
		}
	}
	if !found {
		t.Error("expected a BACKPRESSURE_DROPPED event once the backlog cap was exceeded")
	}
}

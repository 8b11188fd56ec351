package dialog

import (
	"sync"

	"github.com/vox-dialog/dialogd/pkg/audio"
)

// IngestionBuffer accumulates arriving PCM frames and hands fixed-size
// windows to the VAD in arrival order. It reuses one scratch slice for
// window emission so the steady-state hot path makes no allocation beyond
// what WriteBytes/WriteSamples need to decode and append into the ring.
type IngestionBuffer struct {
	mu sync.Mutex

	windowSamples int
	maxBacklog    int // samples; oldest-first drop threshold
	sampleRate    int

	ring          []int16
	nextOffset    int64 // sample offset of ring[0]
	windowScratch []int16

	droppedTotal int
	logger       Logger
}

// NewIngestionBuffer builds a buffer for the given window size and backlog
// cap (in samples). Use cfg.WindowSamples and
// cfg.IngestionMaxBacklogMS*cfg.SampleRate/1000 to derive these from Config.
func NewIngestionBuffer(windowSamples, maxBacklogSamples, sampleRate int, logger Logger) *IngestionBuffer {
	if logger == nil {
		logger = NoOpLogger{}
	}
	return &IngestionBuffer{
		windowSamples: windowSamples,
		maxBacklog:    maxBacklogSamples,
		sampleRate:    sampleRate,
		windowScratch: make([]int16, windowSamples),
		logger:        logger,
	}
}

// WriteBytes validates and decodes a raw little-endian int16 PCM frame and
// appends it to the buffer. Returns ErrInvalidFrame for a malformed length
// without tearing down the session. The returned BackpressureWarning is
// non-nil when appending this frame forced the oldest-first backlog drop.
func (b *IngestionBuffer) WriteBytes(raw []byte) (*BackpressureWarning, error) {
	if len(raw)%2 != 0 {
		return nil, ErrInvalidFrame
	}
	samples := audio.BytesToInt16(raw)
	return b.WriteSamples(samples), nil
}

// WriteSamples appends already-decoded samples, dropping the oldest
// backlog first if the buffer exceeds its configured cap and emitting a
// BackpressureWarning in that case.
func (b *IngestionBuffer) WriteSamples(samples []int16) *BackpressureWarning {
	if len(samples) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ring = append(b.ring, samples...)

	if b.maxBacklog > 0 && len(b.ring) > b.maxBacklog {
		drop := len(b.ring) - b.maxBacklog
		b.ring = b.ring[drop:]
		b.nextOffset += int64(drop)
		b.droppedTotal += drop
		b.logger.Warn("ingestion backpressure drop", "samples", drop)
		return &BackpressureWarning{DroppedSamples: drop}
	}
	return nil
}

// NextWindow returns the next full window (and its starting sample
// offset) if one is available, consuming it from the internal ring.
// Returns ok=false when fewer than windowSamples are buffered.
func (b *IngestionBuffer) NextWindow() (window []int16, offset int64, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.ring) < b.windowSamples {
		return nil, 0, false
	}

	copy(b.windowScratch, b.ring[:b.windowSamples])
	offset = b.nextOffset

	b.ring = b.ring[b.windowSamples:]
	b.nextOffset += int64(b.windowSamples)

	return b.windowScratch, offset, true
}

// DrainWindows repeatedly pulls windows and invokes fn for each, stopping
// when fewer than a full window remains. fn must not retain the window
// slice beyond the call (it is reused).
func (b *IngestionBuffer) DrainWindows(fn func(window []int16, offset int64)) {
	for {
		w, off, ok := b.NextWindow()
		if !ok {
			return
		}
		fn(w, off)
	}
}

// Pending returns the number of buffered, not-yet-windowed samples.
func (b *IngestionBuffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ring)
}

// DroppedTotal returns the cumulative number of samples dropped to
// backpressure over this buffer's lifetime.
func (b *IngestionBuffer) DroppedTotal() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.droppedTotal
}

// Reset discards all buffered, un-windowed audio without resetting the
// sample-offset counter: offsets stay strictly increasing for the life of
// the session so a SpeechSegment's StartSample/EndSample remain comparable.
func (b *IngestionBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ring = b.ring[:0]
}

package dialog

import (
	"math"
	"sync"
	"time"
)

// EchoFilter detects when incoming mic audio is actually the session's own
// synthesized reply being picked back up (open-mic / speaker bleed) and
// flags it so Session.processWindow can treat it as silence instead of
// feeding it to the VAD or ASR. Works directly on the canonical []int16
// window type and covers only the correlation check the Session exercises
// in real time; offline post-processing of a full recording is not part of
// this type's job.
type EchoFilter struct {
	mu sync.Mutex

	played     []int16
	maxBufLen  int
	threshold  float64
	silenceFor time.Duration
	lastPlayed time.Time
	enabled    bool
}

// NewEchoFilter builds a filter that remembers up to ~2s of played audio
// at the given sample rate.
func NewEchoFilter(sampleRate int) *EchoFilter {
	return &EchoFilter{
		maxBufLen:  sampleRate * 2,
		threshold:  0.55,
		silenceFor: 1200 * time.Millisecond,
		enabled:    true,
	}
}

// RecordPlayed remembers audio just sent out as a TTS chunk so later mic
// input can be correlated against it.
func (e *EchoFilter) RecordPlayed(samples []int16) {
	if !e.enabled || len(samples) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.played = append(e.played, samples...)
	e.lastPlayed = time.Now()

	if len(e.played) > e.maxBufLen {
		e.played = e.played[len(e.played)-e.maxBufLen:]
	}
}

// IsEcho reports whether input correlates strongly enough with recently
// played audio to be treated as echo rather than user speech.
func (e *EchoFilter) IsEcho(input []int16) bool {
	if !e.enabled || len(input) == 0 {
		return false
	}

	e.mu.Lock()
	if time.Since(e.lastPlayed) > e.silenceFor {
		e.mu.Unlock()
		return false
	}
	ref := make([]int16, len(e.played))
	copy(ref, e.played)
	threshold := e.threshold
	e.mu.Unlock()

	if len(ref) == 0 {
		return false
	}

	return maxCorrelation(input, ref) > threshold
}

// Clear forgets played-audio history; call on interrupt so the next window
// is evaluated without stale reference audio.
func (e *EchoFilter) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.played = e.played[:0]
}

// SetThreshold adjusts detection sensitivity in [0,1].
func (e *EchoFilter) SetThreshold(t float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t >= 0 && t <= 1 {
		e.threshold = t
	}
}

// SetEnabled toggles the filter without discarding its reference buffer.
func (e *EchoFilter) SetEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = enabled
}

// maxCorrelation slides input across reference looking for the best
// normalized cross-correlation, bounded by a coarse stride so it stays
// cheap enough to run inline on the ingestion hot path.
func maxCorrelation(input, reference []int16) float64 {
	compareLen := len(input)
	if compareLen > len(reference) {
		compareLen = len(reference)
	}
	if compareLen == 0 {
		return 0
	}

	in := normalize(input[:compareLen])
	inEnergy := energy(in)
	if inEnergy == 0 {
		return 0
	}

	stride := compareLen / 4
	if stride < 8 {
		stride = 8
	}

	maxCorr := 0.0
	searchRange := len(reference) - compareLen + 1
	for pos := 0; pos < searchRange; pos += stride {
		seg := normalize(reference[pos : pos+compareLen])
		segEnergy := energy(seg)
		if segEnergy == 0 {
			continue
		}
		dot := 0.0
		for i := range in {
			dot += in[i] * seg[i]
		}
		corr := dot / math.Sqrt(inEnergy*segEnergy)
		if corr > maxCorr {
			maxCorr = corr
			if maxCorr >= 0.999 {
				break
			}
		}
	}
	if maxCorr < 0 {
		return 0
	}
	if maxCorr > 1 {
		return 1
	}
	return maxCorr
}

func normalize(samples []int16) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = float64(s) / 32768.0
	}
	return out
}

func energy(samples []float64) float64 {
	sum := 0.0
	for _, s := range samples {
		sum += s * s
	}
	return sum
}

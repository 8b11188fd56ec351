package dialog

import "github.com/vox-dialog/dialogd/pkg/audio"

// RMSVAD is a lightweight, dependency-free Voice Activity Detector that
// scores a window by its RMS energy relative to a threshold. It is the
// default VADProvider; the speech-start/end state machine (hysteresis,
// silence timers) is kept out of this type and lives in the Turn Segmenter
// instead, so RMSVAD only answers "how speech-like is this window."
type RMSVAD struct {
	threshold float64
	lastRMS   float64
}

// NewRMSVAD builds an RMS VAD with the given detection threshold in [0,1].
func NewRMSVAD(threshold float64) *RMSVAD {
	return &RMSVAD{threshold: threshold}
}

// Detect returns a probability in [0,1]: 1.0 when the window's RMS energy
// is at or above the threshold, otherwise the window's RMS scaled linearly
// against the threshold (so near-threshold windows read as "maybe speech"
// rather than collapsing straight to 0).
func (v *RMSVAD) Detect(window []int16) (float64, error) {
	rms := audio.RMSEnergy(window)
	v.lastRMS = rms
	if v.threshold <= 0 {
		if rms > 0 {
			return 1.0, nil
		}
		return 0, nil
	}
	if rms >= v.threshold {
		return 1.0, nil
	}
	p := rms / v.threshold
	if p > 1 {
		p = 1
	}
	return p, nil
}

// LastRMS returns the RMS energy of the most recently processed window.
func (v *RMSVAD) LastRMS() float64 { return v.lastRMS }

// Threshold returns the current detection threshold.
func (v *RMSVAD) Threshold() float64 { return v.threshold }

// SetThreshold updates the detection threshold.
func (v *RMSVAD) SetThreshold(t float64) { v.threshold = t }

// Reset clears per-window state (currently just the RMS readback).
func (v *RMSVAD) Reset() { v.lastRMS = 0 }

// Clone returns an independent copy for a new session: providers are
// process-scoped and shared, but the VAD's window state is inherently
// per-stream, so each Session gets its own clone.
func (v *RMSVAD) Clone() VADProvider {
	return &RMSVAD{threshold: v.threshold}
}

func (v *RMSVAD) Name() string { return "rms_vad" }

package dialog

import (
	"fmt"
)

// SegmenterEventType tags what the Turn Segmenter emitted for one window.
type SegmenterEventType string

const (
	SegSpeechStarted    SegmenterEventType = "SpeechStarted"
	SegEndOfSpeech      SegmenterEventType = "EndOfSpeech"
	SegBargeInConfirmed SegmenterEventType = "BargeInConfirmed"
)

// SegmenterEvent is what Segmenter.Push returns when a window causes a
// state transition worth telling the Orchestrator about.
type SegmenterEvent struct {
	Type    SegmenterEventType
	Segment *SpeechSegment // populated for SegEndOfSpeech; nil for SegSpeechStarted and SegBargeInConfirmed
	Forced  bool
}

type segState int

const (
	segIdle segState = iota
	segInSpeech
)

// Segmenter implements the Idle/InSpeech state machine: it
// consumes (window, probability) pairs from the VAD and produces discrete
// SpeechSegments, with forced cutoff at max_segment_ms and a barge-in flag
// threaded through from the Orchestrator. A segment opened while a reply is
// active also gets a live SegBargeInConfirmed check: once it has
// accumulated minInterruptMS of audio it fires that event immediately,
// rather than waiting for the segment to close at EndOfSpeech, so a
// deliberate interruption stops the active reply right away instead of
// after the full end-of-speech silence window elapses.
type Segmenter struct {
	threshold      float64
	eosSilenceMS   int
	maxSegmentMS   int
	sampleRate     int
	windowSamples  int
	minInterruptMS int // how much of a barge-in segment must accumulate before it's confirmed, not just noise

	state           segState
	current         *SpeechSegment
	silentMS        int
	segmentDuration int // ms accumulated in the current segment
	bargeInFired    bool
	nextSegmentSeq  int

	// ReplyActive is polled at SpeechStarted time to decide whether the
	// new segment opened during an active reply (barge-in).
	ReplyActive func() bool
}

// NewSegmenter builds a Segmenter for the given thresholds. windowSamples
// and sampleRate determine how many milliseconds one window represents.
// minInterruptMS is the barge-in dampening window: a segment opened while a
// reply is active must accumulate this many milliseconds before
// SegBargeInConfirmed fires, so a short cough or stray noise doesn't cancel
// an in-progress reply.
func NewSegmenter(threshold float64, eosSilenceMS, maxSegmentMS, sampleRate, windowSamples, minInterruptMS int) *Segmenter {
	return &Segmenter{
		threshold:      threshold,
		eosSilenceMS:   eosSilenceMS,
		maxSegmentMS:   maxSegmentMS,
		sampleRate:     sampleRate,
		windowSamples:  windowSamples,
		minInterruptMS: minInterruptMS,
	}
}

func (s *Segmenter) windowMS() int {
	if s.sampleRate == 0 {
		return 0
	}
	return s.windowSamples * 1000 / s.sampleRate
}

// Push feeds one (window, probability, offset) triple through the state
// machine. It returns a SegmenterEvent when Idle->InSpeech or
// InSpeech->Idle fires, or when a segment opened during an active reply
// reaches minInterruptMS (SegBargeInConfirmed); otherwise ok is false.
func (s *Segmenter) Push(window []int16, probability float64, offset int64) (SegmenterEvent, bool) {
	wms := s.windowMS()
	speech := probability >= s.threshold

	switch s.state {
	case segIdle:
		if !speech {
			return SegmenterEvent{}, false
		}
		s.state = segInSpeech
		s.nextSegmentSeq++
		busy := s.ReplyActive != nil && s.ReplyActive()
		s.current = &SpeechSegment{
			ID:              fmt.Sprintf("seg-%d", s.nextSegmentSeq),
			StartSample:     offset,
			OpenedWhileBusy: busy,
		}
		s.appendWindow(window, offset)
		s.silentMS = 0
		s.segmentDuration = wms
		s.bargeInFired = false
		return SegmenterEvent{Type: SegSpeechStarted}, true

	case segInSpeech:
		s.appendWindow(window, offset)
		s.segmentDuration += wms
		if speech {
			s.silentMS = 0
		} else {
			s.silentMS += wms
		}

		if s.segmentDuration >= s.maxSegmentMS {
			return s.closeSegment(true), true
		}
		if s.silentMS >= s.eosSilenceMS {
			return s.closeSegment(false), true
		}
		if s.current.OpenedWhileBusy && !s.bargeInFired && s.segmentDuration >= s.minInterruptMS {
			s.bargeInFired = true
			return SegmenterEvent{Type: SegBargeInConfirmed}, true
		}
		return SegmenterEvent{}, false
	}
	return SegmenterEvent{}, false
}

func (s *Segmenter) appendWindow(window []int16, offset int64) {
	cp := make([]int16, len(window))
	copy(cp, window)
	s.current.Frames = append(s.current.Frames, AudioFrame{Samples: cp, OffsetSample: offset})
	s.current.EndSample = offset + int64(len(window))
}

func (s *Segmenter) closeSegment(forced bool) SegmenterEvent {
	seg := s.current
	seg.Forced = forced
	s.current = nil
	s.state = segIdle
	s.silentMS = 0
	s.segmentDuration = 0
	s.bargeInFired = false
	return SegmenterEvent{Type: SegEndOfSpeech, Segment: seg, Forced: forced}
}

// ForceClose closes an in-progress segment on demand (CLIENT_SPEECH_END,
// used for push-to-talk) without waiting for silence or the max duration.
// No-op if Idle.
func (s *Segmenter) ForceClose() (SegmenterEvent, bool) {
	if s.state != segInSpeech {
		return SegmenterEvent{}, false
	}
	return s.closeSegment(true), true
}

// InSpeech reports whether the segmenter currently considers the caller to
// be mid-utterance.
func (s *Segmenter) InSpeech() bool { return s.state == segInSpeech }

// Reset returns the segmenter to Idle, discarding any in-progress segment.
func (s *Segmenter) Reset() {
	s.state = segIdle
	s.current = nil
	s.silentMS = 0
	s.segmentDuration = 0
	s.bargeInFired = false
}

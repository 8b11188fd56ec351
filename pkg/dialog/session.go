package dialog

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Session is the per-client container: it owns the Ingestion Buffer, VAD,
// Segmenter, Orchestrator, conversation history, activation state, echo
// filter, and the outbound event queue for one connected client. Each of
// those collaborators is a distinct type with a single job, rather than
// one struct that does everything.
type Session struct {
	id     string
	cfg    Config
	logger Logger

	ingestion   *IngestionBuffer
	vad         VADProvider
	segmenter   *Segmenter
	orch        *Orchestrator
	echoFilter  *EchoFilter

	mu      sync.Mutex
	history []HistoryEntry

	outbound chan OutboundEvent

	closeOnce sync.Once
	closed    bool
}

// NewSession builds a Session wired to the given process-scoped capability
// providers. vad is cloned per-session since providers are shared but VAD
// carries per-stream state.
func NewSession(id string, cfg Config, asr ASRProvider, llm LLMProvider, tts TTSProvider, vad VADProvider, logger Logger) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	if logger == nil {
		logger = NoOpLogger{}
	}

	backlogSamples := cfg.IngestionMaxBacklogMS * cfg.SampleRate / 1000
	s := &Session{
		id:        id,
		cfg:       cfg,
		logger:    logger,
		ingestion: NewIngestionBuffer(cfg.WindowSamples, backlogSamples, cfg.SampleRate, logger),
		segmenter: NewSegmenter(cfg.VADThreshold, cfg.EOSSilenceMS, cfg.MaxSegmentMS, cfg.SampleRate, cfg.WindowSamples, cfg.MinWordsToInterrupt*wordDurationMS),
		orch:      NewOrchestrator(cfg, asr, llm, tts, logger),
		outbound:  make(chan OutboundEvent, cfg.OutboundQueueCap),
	}
	if vad != nil {
		s.vad = vad.Clone()
	}
	if cfg.EchoSuppressionEnabled {
		s.echoFilter = NewEchoFilter(cfg.SampleRate)
	}
	s.segmenter.ReplyActive = s.orch.IsActive

	s.emitOutbound(OutboundEvent{Type: EventSessionStart, SessionID: s.id, Data: s.id})
	return s
}

// ID returns the session's identifier.
func (s *Session) ID() string { return s.id }

// SetMetricsRecorder wires the Session's Orchestrator to report
// turn/barge-in/latency events to m (internal/metrics.Recorder satisfies
// MetricsRecorder structurally).
func (s *Session) SetMetricsRecorder(m MetricsRecorder) {
	s.orch.SetMetricsRecorder(m)
}

// OnAudioFrame feeds a raw PCM frame from the transport. Malformed frames
// surface as an ERROR event and do not tear down the session.
func (s *Session) OnAudioFrame(ctx context.Context, raw []byte) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}

	warning, err := s.ingestion.WriteBytes(raw)
	if err != nil {
		s.emitOutbound(OutboundEvent{
			Type:      EventError,
			SessionID: s.id,
			Data:      ErrorData{Text: err.Error(), Kind: "InvalidFrame"},
		})
		return
	}
	if warning != nil {
		s.emitOutbound(OutboundEvent{
			Type:      EventBackpressure,
			SessionID: s.id,
			Data:      *warning,
		})
	}

	s.ingestion.DrainWindows(func(window []int16, offset int64) {
		s.processWindow(ctx, window, offset)
	})
}

func (s *Session) processWindow(ctx context.Context, window []int16, offset int64) {
	if s.echoFilter != nil && s.echoFilter.IsEcho(window) {
		window = make([]int16, len(window)) // treat as silence, don't let it trip the VAD
	}

	prob := 0.0
	if s.vad != nil {
		p, err := s.vad.Detect(window)
		if err != nil {
			s.logger.Warn("vad error", "session", s.id, "err", err)
		} else {
			prob = p
		}
	}

	ev, ok := s.segmenter.Push(window, prob, offset)
	if !ok {
		return
	}
	switch ev.Type {
	case SegSpeechStarted:
		s.logger.Debug("speech started", "session", s.id)
	case SegBargeInConfirmed:
		s.orch.NotifyBargeIn(ctx)
	case SegEndOfSpeech:
		s.orch.SubmitSegment(ctx, s, ev.Segment)
	}
}

// OnTextInput handles a CLIENT_TEXT_INPUT event as an independent turn that
// starts at once: like a new segment, it cancels any active reply turn
// first. It does not wait for a currently-open audio segment to close, and
// the text is never concatenated with that segment (no mid-speech
// concatenation); the segment becomes its own turn when it closes.
func (s *Session) OnTextInput(ctx context.Context, text string, lang Language, isFinal bool) {
	if !isFinal {
		return // partial dictation previews are not turns
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	s.orch.SubmitText(ctx, s, text)
}

// OnControl handles CLIENT_SPEECH_END (push-to-talk) by forcing the
// segmenter to close whatever segment is open.
func (s *Session) OnControl(ctx context.Context, eventType string) error {
	switch eventType {
	case "CLIENT_SPEECH_END":
		if ev, ok := s.segmenter.ForceClose(); ok {
			s.orch.SubmitSegment(ctx, s, ev.Segment)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown control event %q", ErrProtocolViolation, eventType)
	}
}

// DrainOutbound returns the channel transport code should receive from.
func (s *Session) DrainOutbound() <-chan OutboundEvent { return s.outbound }

// Close cancels the active turn (if any) and releases per-session
// resources. Idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.orch.CancelActive()
		s.ingestion.Reset()
		close(s.outbound)
	})
}

// --- turnHost implementation -------------------------------------------

// emitOutbound enqueues onto the bounded outbound channel, blocking when
// full rather than dropping events. A send racing Close's channel close is
// recovered and dropped: Close has already cancelled the turn that
// produced it, so the event is moot.
func (s *Session) emitOutbound(e OutboundEvent) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	defer func() { recover() }()
	s.outbound <- e
}

func (s *Session) historySnapshot() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, 0, len(s.history))
	for _, h := range s.history {
		out = append(out, Message{Role: h.Role, Content: h.Text})
	}
	return out
}

func (s *Session) appendHistory(e HistoryEntry) {
	s.mu.Lock()
	s.history = append(s.history, e)
	s.mu.Unlock()
}

func (s *Session) recordPlayedAudio(samples []int16) {
	if s.echoFilter != nil {
		s.echoFilter.RecordPlayed(samples)
	}
}

func (s *Session) sessionID() string { return s.id }

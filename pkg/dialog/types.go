// Package dialog implements the per-session dialog pipeline: the state
// machine and concurrency choreography that composes VAD, ASR, LLM and TTS
// capability providers into a single streaming conversation with barge-in,
// backpressure and partial-failure handling.
package dialog

import (
	"context"
	"sync"
	"time"
)

// Logger is the process-wide structured logging sink. Concrete
// implementations (internal/logging) are wired in at startup; a NoOpLogger
// is used when none is supplied so every package here stays log-optional.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// NoOpLogger discards everything. Used as the zero-value Logger.
type NoOpLogger struct{}

func (NoOpLogger) Debug(msg string, args ...interface{}) {}
func (NoOpLogger) Info(msg string, args ...interface{})  {}
func (NoOpLogger) Warn(msg string, args ...interface{})  {}
func (NoOpLogger) Error(msg string, args ...interface{}) {}

// Language is a BCP-47-ish language tag, e.g. "en", "es-MX".
type Language string

// Voice names a synthesis voice. Providers interpret it against their own
// catalog; the core makes no assumption about the set of valid values.
type Voice string

// Role identifies the speaker of a HistoryEntry / Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one turn of LLM chat context.
type Message struct {
	Role    Role
	Content string
}

// AudioFrame is a chunk of 16 kHz / mono / 16-bit PCM audio arriving from
// the client, tagged with its offset in samples from the start of the
// session's inbound stream.
type AudioFrame struct {
	Samples      []int16
	OffsetSample int64
}

// SpeechSegment is a contiguous span of audio delimited by speech-start and
// end-of-speech, as produced by the Turn Segmenter.
type SpeechSegment struct {
	ID               string
	Frames           []AudioFrame
	StartSample      int64
	EndSample        int64
	Forced           bool // true when closed by max_segment_ms, not silence
	OpenedWhileBusy  bool // true when this segment's SpeechStarted fired during an active reply (barge-in)
}

// PCM16 concatenates every frame's samples into one contiguous int16 slice.
func (s *SpeechSegment) PCM16() []int16 {
	n := 0
	for _, f := range s.Frames {
		n += len(f.Samples)
	}
	out := make([]int16, 0, n)
	for _, f := range s.Frames {
		out = append(out, f.Samples...)
	}
	return out
}

// Transcript is the ASR's final output for one SpeechSegment.
type Transcript struct {
	Text      string
	Language  Language
	SegmentID string
}

// Utterance is user-originated text, either from ASR or a direct text
// input event, with an optional carry-over prefix from an interrupted turn.
type Utterance struct {
	Text           string
	CarryoverFrom  string // non-empty when a cancelled turn's user text was prefixed on
}

// EffectiveText returns the text that should actually be sent to the LLM:
// the carry-over prefix (if any) followed by the new text.
func (u Utterance) EffectiveText() string {
	if u.CarryoverFrom == "" {
		return u.Text
	}
	return u.CarryoverFrom + " " + u.Text
}

// TurnState is the Turn Orchestrator's state machine position.
type TurnState string

const (
	TurnListening     TurnState = "Listening"
	TurnTranscribing  TurnState = "Transcribing"
	TurnGenerating    TurnState = "Generating"
	TurnSpeaking      TurnState = "Speaking"
	TurnCompleted     TurnState = "Completed"
	TurnCancelled     TurnState = "Cancelled"
)

// ReplyTurn is one Orchestrator turn: at most one is active per Session.
type ReplyTurn struct {
	ID    string
	State TurnState

	mu            sync.Mutex
	cancelled     bool
	cancelFn      context.CancelFunc
	userText      string
	assistantText string
	audioBytes    int
	startedAt     time.Time
	userSpeechEnd time.Time
}

func newReplyTurn(id string, cancel context.CancelFunc) *ReplyTurn {
	return &ReplyTurn{ID: id, State: TurnListening, cancelFn: cancel, startedAt: time.Now()}
}

// Cancel idempotently sets the cancel flag and cancels the turn's context.
// It does not block on downstream teardown; callers that need that
// guarantee wait on the Orchestrator's internal teardown channel instead.
func (t *ReplyTurn) Cancel() {
	t.mu.Lock()
	already := t.cancelled
	t.cancelled = true
	t.mu.Unlock()
	if !already && t.cancelFn != nil {
		t.cancelFn()
	}
}

// Cancelled reports whether Cancel has been called.
func (t *ReplyTurn) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

func (t *ReplyTurn) appendAssistantText(s string) {
	t.mu.Lock()
	t.assistantText += s
	t.mu.Unlock()
}

func (t *ReplyTurn) snapshot() (user, assistant string, cancelled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.userText, t.assistantText, t.cancelled
}

// HistoryEntry is one line of recorded conversation, appended exactly once
// per turn whether it finished or was cancelled.
type HistoryEntry struct {
	Role      Role
	Text      string
	Timestamp time.Time
}

// EventType tags an OutboundEvent.
type EventType string

const (
	EventSessionStart EventType = "SESSION_START"
	EventTextChunk    EventType = "TEXT_CHUNK"
	EventAudioChunk   EventType = "AUDIO_CHUNK"
	EventAsrUpdate    EventType = "ASR_UPDATE"
	EventSystemMsg    EventType = "SYSTEM_MESSAGE"
	EventError        EventType = "ERROR"
	EventBackpressure EventType = "BACKPRESSURE_DROPPED"
)

// TextChunkData is the payload of an EventTextChunk OutboundEvent.
type TextChunkData struct {
	Text    string
	IsFinal bool
}

// AudioChunkData is the payload of an EventAudioChunk OutboundEvent.
type AudioChunkData struct {
	Bytes      []byte
	Codec      string // "pcm16" | "wav" | "mp3"
	SampleRate int
}

// AsrUpdateData is the payload of an EventAsrUpdate OutboundEvent.
type AsrUpdateData struct {
	Text    string
	IsFinal bool
}

// ErrorData is the payload of an EventError OutboundEvent.
type ErrorData struct {
	Text string
	Kind string
}

// OutboundEvent is the tagged union streamed out of a Session toward the
// transport layer (out of scope for this module).
type OutboundEvent struct {
	Type      EventType
	SessionID string
	Data      interface{}
}

// BackpressureWarning is the Data of an EventBackpressure event, emitted when
// the Ingestion Buffer drops samples because the client outran consumption.
type BackpressureWarning struct {
	DroppedSamples int
}

// Config carries every tunable governing a session's pipeline, VAD and
// turn-taking behavior. DefaultConfig() returns a fully populated Config; it
// does not merge over an existing one, and a Session keeps the Config it was
// built with (no control message changes it at run time).
type Config struct {
	SampleRate int // Hz, fixed at 16000 per the input contract
	WindowSamples int // VAD window size, default 512

	VADThreshold      float64
	EOSSilenceMS      int
	MaxSegmentMS      int
	IngestionMaxBacklogMS int

	MaxContextMessages int
	MaxPendingChars    int // sentence splitter flush threshold
	OutboundQueueCap   int // bounded backpressure queue size

	Voice    Voice
	Language Language

	SystemPrompt string

	ASRTimeout          time.Duration
	LLMFirstTokenTimeout time.Duration
	LLMPerTokenTimeout   time.Duration
	TTSTimeout          time.Duration
	ProviderRetries     int
	RetryBaseDelay      time.Duration
	RetryMaxDelay       time.Duration

	CarryoverWindowMS int

	EnablePromptActivation   bool
	ActivationKeywords       []string
	ActivationFuzzyThreshold float64 // matchr Jaro-Winkler similarity, 0..1
	ActivationTimeoutSeconds int
	ActivationReply          string
	DeactivationReply        string

	MinWordsToInterrupt int // barge-in dampening while a reply turn is active

	ShutdownGraceMS int

	EchoSuppressionEnabled bool
}

// DefaultConfig returns sane values for the 16 kHz mono input contract and
// every pipeline timing/activation option.
func DefaultConfig() Config {
	return Config{
		SampleRate:            16000,
		WindowSamples:         512,
		VADThreshold:          0.02,
		EOSSilenceMS:          1200,
		MaxSegmentMS:          5000,
		IngestionMaxBacklogMS: 10000,
		MaxContextMessages:    20,
		MaxPendingChars:       120,
		OutboundQueueCap:      64,
		Voice:                 "default",
		Language:              "en",
		ASRTimeout:            15 * time.Second,
		LLMFirstTokenTimeout:  10 * time.Second,
		LLMPerTokenTimeout:    30 * time.Second,
		TTSTimeout:            20 * time.Second,
		ProviderRetries:       2,
		RetryBaseDelay:        200 * time.Millisecond,
		RetryMaxDelay:         2 * time.Second,
		CarryoverWindowMS:     8000,
		ActivationFuzzyThreshold: 0.88,
		ActivationTimeoutSeconds: 0,
		MinWordsToInterrupt:   1,
		ShutdownGraceMS:       5000,
		EchoSuppressionEnabled: true,
	}
}

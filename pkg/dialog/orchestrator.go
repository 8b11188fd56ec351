package dialog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/antzucaro/matchr"
)

// turnHost is the slice of Session that the Orchestrator needs in order to
// drive a turn without owning history/outbound-queue/echo state itself:
// Session exclusively owns its pipeline components, history and outbound
// queue. Session implements this; tests can stub it.
type turnHost interface {
	emitOutbound(OutboundEvent)
	historySnapshot() []Message
	appendHistory(HistoryEntry)
	recordPlayedAudio(samples []int16)
	sessionID() string
}

// MetricsRecorder is the minimal metrics sink the Orchestrator reports
// turn/barge-in/latency events to. internal/metrics.Recorder satisfies this
// structurally, so pkg/dialog (a reusable library package) never imports
// the internal/ metrics wiring itself.
type MetricsRecorder interface {
	TurnCompleted(ctx context.Context, state string)
	BargeIn(ctx context.Context)
	StageLatency(ctx context.Context, stage string, d time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) TurnCompleted(context.Context, string)            {}
func (noopRecorder) BargeIn(context.Context)                          {}
func (noopRecorder) StageLatency(context.Context, string, time.Duration) {}

// Orchestrator is the Turn Orchestrator: the state machine driving one
// logical conversation turn from segment/text input through transcript,
// LLM generation and TTS synthesis, owning cancellation end to end. It is a
// standalone component, kept independent of transport I/O, driven by a
// streaming RunReplyPipeline and talking to its Session only through
// turnHost.
type Orchestrator struct {
	cfg    Config
	asr    ASRProvider
	llm    LLMProvider
	tts    TTSProvider
	logger Logger

	mu           sync.Mutex
	activeTurn   *ReplyTurn
	teardownDone chan struct{}

	metrics MetricsRecorder

	// carry-over bookkeeping
	lastCancelledUserText string
	lastCancelledAt       time.Time

	// activation gate bookkeeping
	activated      bool
	lastActivityAt time.Time
}

// NewOrchestrator wires the three generative capability providers. asr may
// be nil when the session only ever receives CLIENT_TEXT_INPUT.
func NewOrchestrator(cfg Config, asr ASRProvider, llm LLMProvider, tts TTSProvider, logger Logger) *Orchestrator {
	if logger == nil {
		logger = NoOpLogger{}
	}
	return &Orchestrator{
		cfg:       cfg,
		asr:       asr,
		llm:       llm,
		tts:       tts,
		logger:    logger,
		activated: !cfg.EnablePromptActivation,
		metrics:   noopRecorder{},
	}
}

// SetMetricsRecorder wires a metrics sink, replacing the default no-op.
func (o *Orchestrator) SetMetricsRecorder(m MetricsRecorder) {
	if m == nil {
		m = noopRecorder{}
	}
	o.mu.Lock()
	o.metrics = m
	o.mu.Unlock()
}

// IsActive reports whether a ReplyTurn is currently in flight. The
// Segmenter polls this to flag SpeechStarted as a barge-in.
func (o *Orchestrator) IsActive() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.activeTurn != nil
}

// CancelActive idempotently cancels the in-flight turn, if any, and blocks
// until its teardown goroutine has observed the cancellation and exited.
func (o *Orchestrator) CancelActive() {
	o.mu.Lock()
	turn := o.activeTurn
	done := o.teardownDone
	o.mu.Unlock()
	if turn == nil {
		return
	}
	turn.Cancel()
	if done != nil {
		<-done
	}
}

// wordDurationMS is the per-word duration used to convert
// Config.MinWordsToInterrupt into a millisecond dampening threshold.
const wordDurationMS = 250

// NotifyBargeIn is called once a Segmenter has confirmed (via
// SegBargeInConfirmed) that an in-progress segment opened during an active
// reply has accumulated enough speech to count as a deliberate interruption,
// rather than noise. It cancels the active turn's context directly, without
// waiting on the Orchestrator's teardown channel, so the caller on the
// audio-ingestion path is never blocked on a provider call unwinding.
func (o *Orchestrator) NotifyBargeIn(ctx context.Context) {
	o.mu.Lock()
	turn := o.activeTurn
	o.mu.Unlock()
	if turn == nil {
		return
	}
	o.metrics.BargeIn(ctx)
	turn.Cancel()
}

// segmentDurationMS estimates how many milliseconds of audio a segment
// spans from its frame count, used only for the barge-in dampening check
// below since we have no transcript yet at that point.
func segmentDurationMS(seg *SpeechSegment, sampleRate int) int {
	if sampleRate <= 0 {
		return 0
	}
	n := 0
	for _, f := range seg.Frames {
		n += len(f.Samples)
	}
	return n * 1000 / sampleRate
}

// SubmitSegment begins a turn from a closed SpeechSegment
// submit_segment). If a turn is active, it is cancelled and torn down
// first so at most one turn ever runs concurrently.
func (o *Orchestrator) SubmitSegment(ctx context.Context, host turnHost, seg *SpeechSegment) {
	if seg.OpenedWhileBusy && o.IsActive() {
		// Barge-in dampening: a very short interjection while the bot is
		// speaking (shorter than MinWordsToInterrupt worth of audio) is
		// treated as noise, not a deliberate interruption, and is dropped
		// without touching the active turn. Longer interruptions are
		// normally already cancelled by NotifyBargeIn well before the
		// segment closes; this is the fallback for segments that never
		// crossed that threshold and for segments processed before this
		// turn existed.
		minMS := o.cfg.MinWordsToInterrupt * wordDurationMS
		if segmentDurationMS(seg, o.cfg.SampleRate) < minMS {
			o.logger.Debug("dropping short barge-in segment", "segment_id", seg.ID)
			return
		}
		o.metrics.BargeIn(ctx)
	}
	o.CancelActive()
	o.runTurn(host, func(ctx context.Context, turn *ReplyTurn) (Utterance, bool, error) {
		turn.State = TurnTranscribing
		tr, err := o.recognize(ctx, seg)
		if err != nil {
			return Utterance{}, false, err
		}
		if strings.TrimSpace(tr.Text) == "" {
			host.emitOutbound(OutboundEvent{
				Type:      EventAsrUpdate,
				SessionID: host.sessionID(),
				Data:      AsrUpdateData{Text: "", IsFinal: true},
			})
			return Utterance{}, true, nil // handled=true, empty turn
		}
		host.emitOutbound(OutboundEvent{
			Type:      EventAsrUpdate,
			SessionID: host.sessionID(),
			Data:      AsrUpdateData{Text: tr.Text, IsFinal: true},
		})
		turn.userSpeechEnd = time.Now()
		return o.buildUtterance(tr.Text), false, nil
	})
}

// SubmitText begins a turn from direct text input,
// skipping ASR entirely.
func (o *Orchestrator) SubmitText(ctx context.Context, host turnHost, text string) {
	o.CancelActive()
	o.runTurn(host, func(ctx context.Context, turn *ReplyTurn) (Utterance, bool, error) {
		turn.State = TurnTranscribing
		turn.userSpeechEnd = time.Now()
		if strings.TrimSpace(text) == "" {
			return Utterance{}, true, nil
		}
		return o.buildUtterance(text), false, nil
	})
}

func (o *Orchestrator) recognize(ctx context.Context, seg *SpeechSegment) (Transcript, error) {
	if o.asr == nil {
		return Transcript{}, ErrNilProvider
	}
	rctx, cancel := context.WithTimeout(ctx, o.cfg.ASRTimeout)
	defer cancel()

	started := time.Now()
	var tr Transcript
	err := o.withRetry(rctx, func() error {
		var innerErr error
		tr, innerErr = o.asr.Recognize(rctx, seg.PCM16(), o.cfg.SampleRate, o.cfg.Language)
		return innerErr
	})
	o.metrics.StageLatency(ctx, "asr", time.Since(started))
	if err != nil {
		if rctx.Err() != nil {
			return Transcript{}, fmt.Errorf("%w: asr deadline exceeded", ErrProviderTimeout)
		}
		return Transcript{}, err
	}
	tr.SegmentID = seg.ID
	return tr, nil
}

// buildUtterance applies the activation gate and context carry-over rules
// to raw user text, returning the Utterance to send to the LLM.
// The activation gate itself may fully consume the turn (see runTurn).
func (o *Orchestrator) buildUtterance(text string) Utterance {
	carry := ""
	if o.cfg.CarryoverWindowMS > 0 && o.lastCancelledUserText != "" {
		if time.Since(o.lastCancelledAt) <= time.Duration(o.cfg.CarryoverWindowMS)*time.Millisecond {
			carry = o.lastCancelledUserText
		}
	}
	o.lastCancelledUserText = ""
	return Utterance{Text: text, CarryoverFrom: carry}
}

// applyActivationGate implements the wake-word activation edge cases. It returns
// (effectiveText, shouldCallLLM). When the gate swallows the turn entirely
// (inactive + no keyword), shouldCallLLM is false and the scripted prompt
// has already been emitted.
func (o *Orchestrator) applyActivationGate(host turnHost, utt Utterance) (string, bool) {
	if !o.cfg.EnablePromptActivation {
		o.touchActivity()
		return utt.EffectiveText(), true
	}

	if o.cfg.ActivationTimeoutSeconds > 0 && o.activated &&
		time.Since(o.lastActivityAt) > time.Duration(o.cfg.ActivationTimeoutSeconds)*time.Second {
		o.activated = false
		host.emitOutbound(OutboundEvent{
			Type:      EventSystemMsg,
			SessionID: host.sessionID(),
			Data:      o.cfg.DeactivationReply,
		})
	}

	if o.activated {
		o.touchActivity()
		return utt.EffectiveText(), true
	}

	matched, _, remainder := fuzzyFindKeyword(utt.EffectiveText(), o.cfg.ActivationKeywords, o.cfg.ActivationFuzzyThreshold)
	if !matched {
		host.emitOutbound(OutboundEvent{
			Type:      EventSystemMsg,
			SessionID: host.sessionID(),
			Data:      o.cfg.DeactivationReply,
		})
		return "", false
	}

	o.activated = true
	o.touchActivity()
	host.emitOutbound(OutboundEvent{
		Type:      EventSystemMsg,
		SessionID: host.sessionID(),
		Data:      o.cfg.ActivationReply,
	})
	return strings.TrimSpace(remainder), true
}

func (o *Orchestrator) touchActivity() { o.lastActivityAt = time.Now() }

// fuzzyFindKeyword looks for any configured keyword inside text using
// Jaro-Winkler similarity over equal-length word windows (grounded on the
// antzucaro/matchr dependency for a fuzzy match,
// not exact substring containment, so misheard wake-words like "hello
// assistent" still activate the session).
func fuzzyFindKeyword(text string, keywords []string, threshold float64) (matched bool, keyword string, remainder string) {
	words := strings.Fields(text)
	if len(words) == 0 {
		return false, "", ""
	}
	for _, kw := range keywords {
		kwWords := strings.Fields(strings.ToLower(kw))
		n := len(kwWords)
		if n == 0 || n > len(words) {
			continue
		}
		for i := 0; i+n <= len(words); i++ {
			candidate := strings.ToLower(strings.Join(words[i:i+n], " "))
			candidate = strings.Trim(candidate, ".,!?;:")
			score := matchr.JaroWinkler(candidate, strings.ToLower(kw))
			if score >= threshold {
				return true, kw, strings.Join(words[i+n:], " ")
			}
		}
	}
	return false, "", ""
}

// runTurn owns the Listening -> Transcribing -> Generating -> Speaking ->
// Completed/Cancelled lifecycle for one turn. resolve produces the
// Utterance (or signals a handled-but-empty turn) from either ASR or
// direct text input.
func (o *Orchestrator) runTurn(host turnHost, resolve func(ctx context.Context, turn *ReplyTurn) (Utterance, bool, error)) {
	turnCtx, cancel := context.WithCancel(context.Background())
	turn := newReplyTurn(fmt.Sprintf("turn-%d", time.Now().UnixNano()), cancel)
	done := make(chan struct{})

	o.mu.Lock()
	o.activeTurn = turn
	o.teardownDone = done
	o.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		defer func() {
			o.mu.Lock()
			if o.activeTurn == turn {
				o.activeTurn = nil
				o.teardownDone = nil
			}
			o.mu.Unlock()
		}()

		utt, handledEmpty, err := resolve(turnCtx, turn)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				host.emitOutbound(OutboundEvent{
					Type:      EventError,
					SessionID: host.sessionID(),
					Data:      ErrorData{Text: err.Error(), Kind: classifyErrorKind(err)},
				})
			}
			return
		}
		if handledEmpty {
			return // empty transcript: no history appended
		}

		effectiveText, callLLM := o.applyActivationGate(host, utt)
		if !callLLM {
			return // gated by activation, nothing forwarded to the LLM
		}

		turn.mu.Lock()
		turn.userText = effectiveText
		turn.mu.Unlock()

		turn.State = TurnGenerating
		o.speakReply(turnCtx, host, turn, effectiveText)

		user, assistant, cancelled := turn.snapshot()
		host.appendHistory(HistoryEntry{Role: RoleUser, Text: user, Timestamp: turn.startedAt})
		host.appendHistory(HistoryEntry{Role: RoleAssistant, Text: assistant, Timestamp: time.Now()})

		if cancelled {
			turn.State = TurnCancelled
			o.lastCancelledUserText = user
			o.lastCancelledAt = time.Now()
		} else {
			turn.State = TurnCompleted
		}
		o.metrics.TurnCompleted(turnCtx, string(turn.State))
	}()
}

// speakReply runs the Reply Pipeline for one turn: LLM tokens ->
// sentence splitter -> TTS, emitting TextChunk/AudioChunk events in order.
// Cancellation here is unconditional: the MinWordsToInterrupt dampening
// decision has already been made, either by NotifyBargeIn as the
// interrupting segment opened or by SubmitSegment's fallback check at its
// close.
func (o *Orchestrator) speakReply(ctx context.Context, host turnHost, turn *ReplyTurn, userText string) {
	ctx, watchdog := newTokenWatchdog(ctx, o.cfg.LLMFirstTokenTimeout, o.cfg.LLMPerTokenTimeout)
	defer watchdog.stop()

	history := host.historySnapshot()
	if o.cfg.MaxContextMessages > 0 && len(history) > o.cfg.MaxContextMessages {
		history = history[len(history)-o.cfg.MaxContextMessages:]
	}

	pipelineCfg := ReplyPipelineConfig{QueueCapacity: 4, MaxPendingChars: o.cfg.MaxPendingChars}

	started := time.Now()
	var firstTokenOnce, firstChunkOnce sync.Once

	onText := func(sentence string) {
		watchdog.touch()
		firstTokenOnce.Do(func() { o.metrics.StageLatency(ctx, "llm_first_token", time.Since(started)) })
		turn.appendAssistantText(sentence + " ")
		host.emitOutbound(OutboundEvent{
			Type:      EventTextChunk,
			SessionID: host.sessionID(),
			Data:      TextChunkData{Text: sentence, IsFinal: false},
		})
	}
	onAudio := func(chunk SpokenChunk) {
		firstChunkOnce.Do(func() { o.metrics.StageLatency(ctx, "tts_first_chunk", time.Since(started)) })
		watchdog.touch()
		turn.mu.Lock()
		turn.audioBytes += len(chunk.Bytes)
		turn.mu.Unlock()
		host.recordPlayedAudio(bytesToInt16Best(chunk))
		host.emitOutbound(OutboundEvent{
			Type:      EventAudioChunk,
			SessionID: host.sessionID(),
			Data:      AudioChunkData{Bytes: chunk.Bytes, Codec: chunk.Codec, SampleRate: chunk.SampleRate},
		})
	}

	var ttsWithTimeout TTSProvider = o.tts
	if o.cfg.TTSTimeout > 0 {
		ttsWithTimeout = &timeoutTTS{inner: o.tts, timeout: o.cfg.TTSTimeout}
	}

	turn.State = TurnGenerating
	_, err := RunReplyPipeline(ctx, o.llm, ttsWithTimeout, o.cfg.SystemPrompt, history, userText, o.cfg.Voice, o.cfg.Language, pipelineCfg, onText, onAudio)
	turn.State = TurnSpeaking

	host.emitOutbound(OutboundEvent{
		Type:      EventTextChunk,
		SessionID: host.sessionID(),
		Data:      TextChunkData{Text: "", IsFinal: true},
	})

	if err != nil && !errors.Is(err, context.Canceled) && ctx.Err() == nil {
		host.emitOutbound(OutboundEvent{
			Type:      EventError,
			SessionID: host.sessionID(),
			Data:      ErrorData{Text: err.Error(), Kind: classifyErrorKind(err)},
		})
	}
}

// bytesToInt16Best best-effort decodes a TTS chunk back to int16 samples
// for echo-filter bookkeeping; non-pcm16 codecs are skipped (nil) since the
// echo filter only ever correlates against raw PCM it might hear again on
// the mic.
func bytesToInt16Best(chunk SpokenChunk) []int16 {
	if chunk.Codec != "" && chunk.Codec != "pcm16" {
		return nil
	}
	if len(chunk.Bytes)%2 != 0 {
		return nil
	}
	out := make([]int16, len(chunk.Bytes)/2)
	for i := range out {
		out[i] = int16(uint16(chunk.Bytes[2*i]) | uint16(chunk.Bytes[2*i+1])<<8)
	}
	return out
}

func classifyErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrProviderTimeout):
		return "ProviderTimeout"
	case errors.Is(err, ErrProviderUnavailable):
		return "ProviderUnavailable"
	case errors.Is(err, ErrNilProvider):
		return "ProviderUnavailable"
	default:
		return "Unknown"
	}
}

// withRetry retries fn on ErrProviderTransient with exponential backoff, up
// to ProviderRetries retries after the first attempt, then escalates to
// ErrProviderUnavailable.
func (o *Orchestrator) withRetry(ctx context.Context, fn func() error) error {
	delay := o.cfg.RetryBaseDelay
	if delay <= 0 {
		delay = 200 * time.Millisecond
	}
	var err error
	for attempt := 0; attempt <= o.cfg.ProviderRetries; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrProviderTransient) {
			return err
		}
		if attempt == o.cfg.ProviderRetries {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
		if o.cfg.RetryMaxDelay > 0 && delay > o.cfg.RetryMaxDelay {
			delay = o.cfg.RetryMaxDelay
		}
	}
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}

// tokenWatchdog cancels its context if LLM token generation goes quiet for
// longer than perToken once the initial first-token grace period elapses
// deadlines applying to this provider call.
type tokenWatchdog struct {
	mu       sync.Mutex
	timer    *time.Timer
	perToken time.Duration
}

func newTokenWatchdog(parent context.Context, firstToken, perToken time.Duration) (context.Context, *tokenWatchdog) {
	ctx, cancel := context.WithCancel(parent)
	w := &tokenWatchdog{perToken: perToken}
	if firstToken <= 0 {
		firstToken = 10 * time.Second
	}
	w.timer = time.AfterFunc(firstToken, cancel)
	return ctx, w
}

func (w *tokenWatchdog) touch() {
	w.mu.Lock()
	defer w.mu.Unlock()
	d := w.perToken
	if d <= 0 {
		d = 30 * time.Second
	}
	w.timer.Reset(d)
}

func (w *tokenWatchdog) stop() {
	w.timer.Stop()
}

// timeoutTTS wraps a TTSProvider so each Synthesize call is bounded,
// independent of the overall turn's token watchdog.
type timeoutTTS struct {
	inner   TTSProvider
	timeout time.Duration
}

func (t *timeoutTTS) Synthesize(ctx context.Context, text string, voice Voice, lang Language, onChunk func([]byte, string, int) error) error {
	tctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	err := t.inner.Synthesize(tctx, text, voice, lang, onChunk)
	if err != nil && tctx.Err() != nil && ctx.Err() == nil {
		return fmt.Errorf("%w: tts deadline exceeded", ErrProviderTimeout)
	}
	return err
}
func (t *timeoutTTS) Abort() error  { return t.inner.Abort() }
func (t *timeoutTTS) Name() string { return t.inner.Name() }

package dialog

import (
	"context"
	"testing"
	"time"

	"github.com/vox-dialog/dialogd/pkg/audio"
)

func testSessionConfig() Config {
	cfg := DefaultConfig()
	cfg.SampleRate = 16000
	cfg.WindowSamples = 512
	cfg.VADThreshold = 0.3
	cfg.EOSSilenceMS = 64
	cfg.MaxSegmentMS = 100000
	cfg.IngestionMaxBacklogMS = 10000
	cfg.ASRTimeout = time.Second
	cfg.LLMFirstTokenTimeout = time.Second
	cfg.LLMPerTokenTimeout = time.Second
	cfg.TTSTimeout = time.Second
	cfg.EchoSuppressionEnabled = true
	return cfg
}

func TestSessionVoiceTurnEndToEnd(t *testing.T) {
	cfg := testSessionConfig()
	asr := &fakeASR{text: "hello there"}
	llm := &fakeStreamingLLM{tokens: []string{"Hi", "!"}}
	tts := &fakeTTS{}
	vad := NewRMSVAD(cfg.VADThreshold)

	s := NewSession("s1", cfg, asr, llm, tts, vad, nil)
	defer s.Close()

	ctx := context.Background()
	speech := audio.Int16ToBytes(speechWindow(512))
	s.OnAudioFrame(ctx, speech)
	s.OnAudioFrame(ctx, speech)
	silence := audio.Int16ToBytes(silentWindow(512))
	s.OnAudioFrame(ctx, silence)
	s.OnAudioFrame(ctx, silence)

	for s.orch.IsActive() { // wait for the turn spawned by EndOfSpeech to finish
		time.Sleep(time.Millisecond)
	}

	var gotAsrFinal, gotAudio bool
	draining := true
	for draining {
		select {
		case e := <-s.DrainOutbound():
			switch e.Type {
			case EventAsrUpdate:
				if e.Data.(AsrUpdateData).IsFinal {
					gotAsrFinal = true
				}
			case EventAudioChunk:
				gotAudio = true
			}
		default:
			draining = false
		}
	}

	if !gotAsrFinal {
		t.Error("expected a final ASR_UPDATE event")
	}
	if !gotAudio {
		t.Error("expected at least one AUDIO_CHUNK event")
	}
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	cfg := testSessionConfig()
	s := NewSession("s2", cfg, &fakeASR{}, &fakeStreamingLLM{}, &fakeTTS{}, NewRMSVAD(0.3), nil)
	s.Close()
	s.Close() // must not panic
}

func TestSessionOnControlForcesSegmentClose(t *testing.T) {
	cfg := testSessionConfig()
	asr := &fakeASR{text: "partial utterance"}
	llm := &fakeStreamingLLM{tokens: []string{"ok."}}
	tts := &fakeTTS{}
	s := NewSession("s3", cfg, asr, llm, tts, NewRMSVAD(cfg.VADThreshold), nil)
	defer s.Close()

	ctx := context.Background()
	s.OnAudioFrame(ctx, audio.Int16ToBytes(speechWindow(512)))
	if err := s.OnControl(ctx, "CLIENT_SPEECH_END"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.orch.CancelActive()

	found := false
	for {
		select {
		case e := <-s.DrainOutbound():
			if e.Type == EventAsrUpdate {
				found = true
			}
		default:
			if found {
				return
			}
			t.Fatal("expected an ASR_UPDATE event after forced segment close")
		}
	}
}

func TestSessionBargeInCancelsActiveTurnAtSpeechOnset(t *testing.T) {
	cfg := testSessionConfig()
	cfg.MinWordsToInterrupt = 0 // confirm as soon as the segment has any duration

	block := make(chan struct{})
	llm := &blockingThenCapturingLLM{capture: new(string), block: block}
	tts := &fakeTTS{}
	s := NewSession("s5", cfg, &fakeASR{text: "first"}, llm, tts, NewRMSVAD(cfg.VADThreshold), nil)
	defer s.Close()

	ctx := context.Background()
	speech := audio.Int16ToBytes(speechWindow(512))
	silence := audio.Int16ToBytes(silentWindow(512))

	// Open and close a segment so the orchestrator starts a turn that blocks
	// in LLM generation (simulating an in-flight reply).
	s.OnAudioFrame(ctx, speech)
	s.OnAudioFrame(ctx, silence)
	s.OnAudioFrame(ctx, silence)
	time.Sleep(20 * time.Millisecond)

	if !s.orch.IsActive() {
		t.Fatal("expected an active turn before the barge-in")
	}

	// A second segment opening while busy should cancel the active turn
	// within a couple of windows, well before its own EndOfSpeech.
	s.OnAudioFrame(ctx, speech)
	s.OnAudioFrame(ctx, speech)

	deadline := time.After(time.Second)
	for s.orch.IsActive() {
		select {
		case <-deadline:
			t.Fatal("expected barge-in to cancel the active turn before its segment closed")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestSessionOnControlUnknownEvent(t *testing.T) {
	cfg := testSessionConfig()
	s := NewSession("s4", cfg, &fakeASR{}, &fakeStreamingLLM{}, &fakeTTS{}, NewRMSVAD(0.3), nil)
	defer s.Close()

	if err := s.OnControl(context.Background(), "NOT_A_REAL_EVENT"); err == nil {
		t.Error("expected ErrProtocolViolation for an unknown control event")
	}
}

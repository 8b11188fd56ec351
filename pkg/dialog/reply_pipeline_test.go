package dialog

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestSentenceSplitterBasic(t *testing.T) {
	s := &SentenceSplitter{}
	var got []string
	for _, tok := range []string{"Hello", " there", ". ", "How are", " you", "?"} {
		got = append(got, s.Push(tok)...)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 sentences, got %v", got)
	}
	if got[0] != "Hello there." || got[1] != "How are you?" {
		t.Errorf("unexpected sentences: %v", got)
	}
	if trailing := s.Flush(); trailing != "" {
		t.Errorf("expected no trailing text, got %q", trailing)
	}
}

func TestSentenceSplitterFlushesPartial(t *testing.T) {
	s := &SentenceSplitter{}
	s.Push("no terminator here")
	if trailing := s.Flush(); trailing != "no terminator here" {
		t.Errorf("expected trailing partial, got %q", trailing)
	}
}

func TestSentenceSplitterSplitsOnCJKTerminators(t *testing.T) {
	s := &SentenceSplitter{}
	var got []string
	for _, tok := range []string{"你好", "。", "吃饭了吗", "？", "太好了", "！", "还好"} {
		got = append(got, s.Push(tok)...)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 sentences, got %v", got)
	}
	if got[0] != "你好。" || got[1] != "吃饭了吗？" || got[2] != "太好了！" {
		t.Errorf("unexpected sentences: %v", got)
	}
	if trailing := s.Flush(); trailing != "还好" {
		t.Errorf("expected trailing partial %q, got %q", "还好", trailing)
	}
}

type fakeStreamingLLM struct {
	tokens []string
}

func (f *fakeStreamingLLM) Generate(ctx context.Context, systemPrompt string, history []Message, userText string, onToken func(string) error) error {
	for _, tok := range f.tokens {
		if err := onToken(tok); err != nil {
			return err
		}
	}
	return nil
}
func (f *fakeStreamingLLM) Name() string { return "fake-llm" }

type fakeTTS struct {
	synthesized []string
}

func (f *fakeTTS) Synthesize(ctx context.Context, text string, voice Voice, lang Language, onChunk func([]byte, string, int) error) error {
	f.synthesized = append(f.synthesized, text)
	return onChunk([]byte(text), "pcm16", 16000)
}
func (f *fakeTTS) Abort() error  { return nil }
func (f *fakeTTS) Name() string { return "fake-tts" }

func TestRunReplyPipelineOrdersSentencesAcrossQueue(t *testing.T) {
	llm := &fakeStreamingLLM{tokens: []string{"One. ", "Two. ", "Three."}}
	tts := &fakeTTS{}

	var textOrder []string
	var seqOrder []int

	fullText, err := RunReplyPipeline(
		context.Background(), llm, tts,
		"system", nil, "hi", Voice("f1"), Language("en"),
		ReplyPipelineConfig{QueueCapacity: 1},
		func(sentence string) { textOrder = append(textOrder, sentence) },
		func(chunk SpokenChunk) { seqOrder = append(seqOrder, chunk.Seq) },
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(fullText, "One") || !strings.Contains(fullText, "Three") {
		t.Errorf("expected full text to contain all tokens, got %q", fullText)
	}
	if len(textOrder) != 3 {
		t.Fatalf("expected 3 sentences spoken, got %v", textOrder)
	}
	for i, seq := range seqOrder {
		if seq != i+1 {
			t.Errorf("expected monotonically increasing seq, got %v", seqOrder)
			break
		}
	}
}

func TestRunReplyPipelineStopsOnLLMError(t *testing.T) {
	boom := errors.New("boom")
	llm := &fakeStreamingLLM{}
	failing := &fakeStreamingLLMErr{err: boom}
	_ = llm
	tts := &fakeTTS{}

	_, err := RunReplyPipeline(
		context.Background(), failing, tts,
		"system", nil, "hi", Voice("f1"), Language("en"),
		ReplyPipelineConfig{}, nil, nil,
	)
	if !errors.Is(err, boom) {
		t.Errorf("expected boom error, got %v", err)
	}
}

type fakeStreamingLLMErr struct{ err error }

func (f *fakeStreamingLLMErr) Generate(ctx context.Context, systemPrompt string, history []Message, userText string, onToken func(string) error) error {
	return f.err
}
func (f *fakeStreamingLLMErr) Name() string { return "fake-llm-err" }

func TestRunReplyPipelineRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	llm := &fakeStreamingLLM{tokens: []string{"Hello. "}}
	tts := &fakeTTS{}

	_, err := RunReplyPipeline(ctx, llm, tts, "system", nil, "hi", Voice("f1"), Language("en"), ReplyPipelineConfig{}, nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// Package asr adapts speech-to-text SDKs and REST APIs to dialog.ASRProvider.
package asr

import (
	"bytes"
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/vox-dialog/dialogd/pkg/audio"
	"github.com/vox-dialog/dialogd/pkg/dialog"
)

// GroqASR transcribes via Groq's Whisper endpoint, which mirrors OpenAI's
// audio/transcriptions API: the sashabaranov/go-openai SDK client pointed
// at Groq's base URL.
type GroqASR struct {
	client     *openai.Client
	model      string
	sampleRate int
}

func NewGroqASR(apiKey, model string) *GroqASR {
	if model == "" {
		model = "whisper-large-v3-turbo"
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = "https://api.groq.com/openai/v1"
	return &GroqASR{
		client:     openai.NewClientWithConfig(cfg),
		model:      model,
		sampleRate: 16000,
	}
}

func (a *GroqASR) Recognize(ctx context.Context, pcm []int16, sampleRate int, lang dialog.Language) (dialog.Transcript, error) {
	wav := audio.WrapWAVFromSamples(pcm, sampleRate)
	req := openai.AudioRequest{
		Model:    a.model,
		Reader:   bytes.NewReader(wav),
		FilePath: "audio.wav",
		Language: string(lang),
	}
	resp, err := a.client.CreateTranscription(ctx, req)
	if err != nil {
		return dialog.Transcript{}, fmt.Errorf("%w: %v", dialog.ErrProviderTransient, err)
	}
	return dialog.Transcript{Text: resp.Text, Language: lang}, nil
}

func (a *GroqASR) Name() string { return "groq" }

package asr

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/vox-dialog/dialogd/pkg/audio"
	"github.com/vox-dialog/dialogd/pkg/dialog"
)

// OpenAIASR transcribes via the OpenAI Whisper audio/transcriptions
// endpoint using the official openai-go SDK.
type OpenAIASR struct {
	client openai.Client
	model  openai.AudioModel
}

func NewOpenAIASR(apiKey, model string, opts ...option.RequestOption) *OpenAIASR {
	if model == "" {
		model = openai.AudioModelWhisper1
	}
	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OpenAIASR{client: openai.NewClient(reqOpts...), model: openai.AudioModel(model)}
}

func (a *OpenAIASR) Recognize(ctx context.Context, pcm []int16, sampleRate int, lang dialog.Language) (dialog.Transcript, error) {
	wav := audio.WrapWAVFromSamples(pcm, sampleRate)
	params := openai.AudioTranscriptionNewParams{
		Model: a.model,
		File:  openai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
	}
	if lang != "" {
		params.Language = openai.String(string(lang))
	}
	resp, err := a.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return dialog.Transcript{}, ctx.Err()
		}
		return dialog.Transcript{}, fmt.Errorf("%w: %v", dialog.ErrProviderTransient, err)
	}
	return dialog.Transcript{Text: resp.Text, Language: lang}, nil
}

func (a *OpenAIASR) Name() string { return "openai" }

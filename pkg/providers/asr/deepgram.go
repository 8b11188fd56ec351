package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/vox-dialog/dialogd/pkg/audio"
	"github.com/vox-dialog/dialogd/pkg/dialog"
)

// DeepgramASR calls the Deepgram prerecorded /v1/listen endpoint directly
// over hand-rolled net/http; no official Deepgram Go SDK is used here.
type DeepgramASR struct {
	apiKey string
	url    string
}

func NewDeepgramASR(apiKey string) *DeepgramASR {
	return &DeepgramASR{apiKey: apiKey, url: "https://api.deepgram.com/v1/listen"}
}

func (a *DeepgramASR) Recognize(ctx context.Context, pcm []int16, sampleRate int, lang dialog.Language) (dialog.Transcript, error) {
	u, err := url.Parse(a.url)
	if err != nil {
		return dialog.Transcript{}, err
	}
	params := u.Query()
	params.Set("model", "nova-2")
	params.Set("smart_format", "true")
	if lang != "" {
		params.Set("language", string(lang))
	}
	u.RawQuery = params.Encode()

	raw := audio.Int16ToBytes(pcm)
	req, err := http.NewRequestWithContext(ctx, "POST", u.String(), bytes.NewReader(raw))
	if err != nil {
		return dialog.Transcript{}, err
	}
	req.Header.Set("Authorization", "Token "+a.apiKey)
	req.Header.Set("Content-Type", fmt.Sprintf("audio/l16; rate=%d; channels=1", sampleRate))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return dialog.Transcript{}, ctx.Err()
		}
		return dialog.Transcript{}, fmt.Errorf("%w: %v", dialog.ErrProviderTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return dialog.Transcript{}, fmt.Errorf("%w: deepgram status %d: %s", dialog.ErrProviderUnavailable, resp.StatusCode, string(body))
	}

	var result struct {
		Results struct {
			Channels []struct {
				Alternatives []struct {
					Transcript string `json:"transcript"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return dialog.Transcript{}, err
	}
	if len(result.Results.Channels) == 0 || len(result.Results.Channels[0].Alternatives) == 0 {
		return dialog.Transcript{Language: lang}, nil
	}
	return dialog.Transcript{Text: result.Results.Channels[0].Alternatives[0].Transcript, Language: lang}, nil
}

func (a *DeepgramASR) Name() string { return "deepgram" }

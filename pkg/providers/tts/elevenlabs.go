package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/vox-dialog/dialogd/pkg/dialog"
)

// ElevenLabsTTS streams speech from ElevenLabs' text-to-speech/stream HTTP
// endpoint. Grounded on the VoiceSettings/output-format handling in
// other_examples' elevenlabs tts.go; simplified to the chunked-HTTP path
// (its synthesizeHTTP) rather than that file's multi-stream websocket mode,
// since dialog.TTSProvider's contract is one call per sentence rather than
// a persistent multi-context stream.
type ElevenLabsTTS struct {
	apiKey       string
	voiceID      string
	model        string
	outputFormat string
	stability    float64
	similarity   float64
	endpointBase string

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewElevenLabsTTS(apiKey, voiceID, model string) *ElevenLabsTTS {
	if model == "" {
		model = "eleven_turbo_v2_5"
	}
	return &ElevenLabsTTS{
		apiKey:       apiKey,
		voiceID:      voiceID,
		model:        model,
		outputFormat: "pcm_24000",
		stability:    0.5,
		similarity:   0.75,
		endpointBase: "https://api.elevenlabs.io",
	}
}

func (t *ElevenLabsTTS) Synthesize(ctx context.Context, text string, voice dialog.Voice, lang dialog.Language, onChunk func(chunk []byte, codec string, sampleRate int) error) error {
	voiceID := t.voiceID
	if voice != "" {
		voiceID = string(voice)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s/stream?output_format=%s", t.endpointBase, voiceID, t.outputFormat)
	payload := map[string]interface{}{
		"text":     text,
		"model_id": t.model,
		"voice_settings": map[string]interface{}{
			"stability":        t.stability,
			"similarity_boost": t.similarity,
		},
	}
	if lang != "" {
		payload["language_code"] = string(lang)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	reqCtx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("xi-api-key", t.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.Canceled) {
			return nil
		}
		return fmt.Errorf("%w: %v", dialog.ErrProviderTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: elevenlabs status %d: %s", dialog.ErrProviderUnavailable, resp.StatusCode, string(b))
	}

	sampleRate, codec := parseElevenLabsFormat(t.outputFormat)
	buf := make([]byte, 4096)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if err := onChunk(chunk, codec, sampleRate); err != nil {
				return err
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			if errors.Is(reqCtx.Err(), context.Canceled) {
				return nil
			}
			return fmt.Errorf("%w: %v", dialog.ErrProviderTransient, readErr)
		}
	}
}

// Abort cancels the in-flight HTTP request, if any, so a barge-in stops
// playback without waiting for the stream to finish.
func (t *ElevenLabsTTS) Abort() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
	}
	return nil
}

func (t *ElevenLabsTTS) Name() string { return "elevenlabs" }

func parseElevenLabsFormat(format string) (int, string) {
	switch format {
	case "ulaw_8000":
		return 8000, "mulaw"
	case "alaw_8000":
		return 8000, "alaw"
	case "pcm_16000":
		return 16000, "pcm16"
	case "pcm_22050":
		return 22050, "pcm16"
	case "pcm_24000":
		return 24000, "pcm16"
	case "pcm_44100":
		return 44100, "pcm16"
	default:
		return 24000, "pcm16"
	}
}

package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/vox-dialog/dialogd/pkg/audio"
	"github.com/vox-dialog/dialogd/pkg/dialog"
)

// AssemblyAIASR calls AssemblyAI's upload/submit/poll transcription flow
// over hand-rolled net/http; no official AssemblyAI Go SDK is used here.
type AssemblyAIASR struct {
	apiKey string
}

func NewAssemblyAIASR(apiKey string) *AssemblyAIASR {
	return &AssemblyAIASR{apiKey: apiKey}
}

func (a *AssemblyAIASR) Recognize(ctx context.Context, pcm []int16, sampleRate int, lang dialog.Language) (dialog.Transcript, error) {
	uploadURL, err := a.upload(ctx, audio.Int16ToBytes(pcm))
	if err != nil {
		return dialog.Transcript{}, err
	}
	transcriptID, err := a.submit(ctx, uploadURL, lang)
	if err != nil {
		return dialog.Transcript{}, err
	}
	for {
		select {
		case <-ctx.Done():
			return dialog.Transcript{}, ctx.Err()
		case <-time.After(500 * time.Millisecond):
			text, status, err := a.poll(ctx, transcriptID)
			if err != nil {
				return dialog.Transcript{}, err
			}
			if status == "completed" {
				return dialog.Transcript{Text: text, Language: lang}, nil
			}
			if status == "error" {
				return dialog.Transcript{}, fmt.Errorf("%w: assemblyai transcription failed", dialog.ErrProviderUnavailable)
			}
		}
	}
}

func (a *AssemblyAIASR) upload(ctx context.Context, pcm []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", "https://api.assemblyai.com/v2/upload", bytes.NewReader(pcm))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", a.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", dialog.ErrProviderTransient, err)
	}
	defer resp.Body.Close()

	var result struct {
		UploadURL string `json:"upload_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.UploadURL, nil
}

func (a *AssemblyAIASR) submit(ctx context.Context, uploadURL string, lang dialog.Language) (string, error) {
	payload := map[string]interface{}{"audio_url": uploadURL}
	if lang != "" {
		payload["language_code"] = string(lang)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", "https://api.assemblyai.com/v2/transcript", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", a.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", dialog.ErrProviderTransient, err)
	}
	defer resp.Body.Close()

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.ID, nil
}

func (a *AssemblyAIASR) poll(ctx context.Context, id string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", "https://api.assemblyai.com/v2/transcript/"+id, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Authorization", a.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", dialog.ErrProviderTransient, err)
	}
	defer resp.Body.Close()

	var result struct {
		Status string `json:"status"`
		Text   string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", "", err
	}
	return result.Text, result.Status, nil
}

func (a *AssemblyAIASR) Name() string { return "assemblyai" }

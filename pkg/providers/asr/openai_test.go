package asr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/option"

	"github.com/vox-dialog/dialogd/pkg/dialog"
)

func TestOpenAIASRRecognize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(struct {
			Text string `json:"text"`
		}{Text: "transcribed text"})
	}))
	defer server.Close()

	a := NewOpenAIASR("test-key", "whisper-1", option.WithBaseURL(server.URL+"/"))

	tr, err := a.Recognize(context.Background(), make([]int16, 1600), 16000, dialog.Language("en"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Text != "transcribed text" {
		t.Errorf("expected 'transcribed text', got %q", tr.Text)
	}
	if a.Name() != "openai" {
		t.Errorf("unexpected name: %q", a.Name())
	}
}

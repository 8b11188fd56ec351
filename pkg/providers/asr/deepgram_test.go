package asr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vox-dialog/dialogd/pkg/dialog"
)

func TestDeepgramASRRecognize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": map[string]interface{}{
				"channels": []map[string]interface{}{
					{"alternatives": []map[string]interface{}{{"transcript": "deepgram text"}}},
				},
			},
		})
	}))
	defer server.Close()

	a := &DeepgramASR{apiKey: "test-key", url: server.URL}
	tr, err := a.Recognize(context.Background(), make([]int16, 1600), 16000, dialog.Language("en"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Text != "deepgram text" {
		t.Errorf("expected 'deepgram text', got %q", tr.Text)
	}
	if a.Name() != "deepgram" {
		t.Errorf("unexpected name: %q", a.Name())
	}
}

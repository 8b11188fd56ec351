package tts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vox-dialog/dialogd/pkg/dialog"
)

func TestElevenLabsTTSSynthesizeStreamsChunks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("xi-api-key") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		flusher := w.(http.Flusher)
		w.Write([]byte{1, 2, 3, 4})
		flusher.Flush()
		w.Write([]byte{5, 6})
		flusher.Flush()
	}))
	defer server.Close()

	tts := NewElevenLabsTTS("test-key", "voice1", "")
	tts.endpointBase = server.URL

	var got []byte
	var codec string
	var rate int
	err := tts.Synthesize(context.Background(), "hi", dialog.Voice(""), dialog.Language("en"), func(chunk []byte, c string, sr int) error {
		got = append(got, chunk...)
		codec = c
		rate = sr
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 6 {
		t.Errorf("expected 6 bytes, got %d", len(got))
	}
	if codec != "pcm16" || rate != 24000 {
		t.Errorf("expected pcm16/24000, got %s/%d", codec, rate)
	}
	if tts.Name() != "elevenlabs" {
		t.Errorf("unexpected name: %q", tts.Name())
	}
}

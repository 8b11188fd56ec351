package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGoogleLLMStreamsTokens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		chunks := []string{
			`{"candidates":[{"content":{"role":"model","parts":[{"text":"Hel"}]}}]}`,
			`{"candidates":[{"content":{"role":"model","parts":[{"text":"lo."}]}}]}`,
		}
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
			flusher.Flush()
		}
	}))
	defer server.Close()

	llm, err := NewGoogleLLMWithBaseURL(context.Background(), "test-key", "gemini-1.5-flash", server.URL)
	if err != nil {
		t.Fatalf("unexpected error constructing client: %v", err)
	}

	var got string
	err = llm.Generate(context.Background(), "", nil, "hi", func(tok string) error {
		got += tok
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Hello." {
		t.Errorf("expected 'Hello.', got %q", got)
	}
	if llm.Name() != "google" {
		t.Errorf("unexpected name: %q", llm.Name())
	}
}

func TestGoogleLLMPropagatesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	llm, err := NewGoogleLLM(context.Background(), "test-key", "gemini-1.5-flash")
	if err != nil {
		t.Fatalf("unexpected error constructing client: %v", err)
	}
	err = llm.Generate(ctx, "", nil, "hi", func(string) error { return nil })
	if err == nil {
		t.Error("expected an error for an already-cancelled context")
	}
}

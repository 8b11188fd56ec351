package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaLLMStreamsTokens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		flusher := w.(http.Flusher)
		lines := []string{
			`{"model":"llama3.2","message":{"role":"assistant","content":"Hel"},"done":false}`,
			`{"model":"llama3.2","message":{"role":"assistant","content":"lo."},"done":false}`,
			`{"model":"llama3.2","message":{"role":"assistant","content":""},"done":true}`,
		}
		for _, l := range lines {
			fmt.Fprintf(w, "%s\n", l)
			flusher.Flush()
		}
	}))
	defer server.Close()

	llm, err := NewOllamaLLM(server.URL, "llama3.2")
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
	if llm.Name() != "ollama" {
		t.Errorf("unexpected name: %q", llm.Name())
	}
}

func TestOllamaLLMRequiresModel(t *testing.T) {
	if _, err := NewOllamaLLM("http://localhost:11434", ""); err == nil {
		t.Error("expected an error when model name is empty")
	}
}

func TestOllamaLLMStopsOnTokenCallbackError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		flusher := w.(http.Flusher)
		fmt.Fprintf(w, "%s\n", `{"model":"llama3.2","message":{"role":"assistant","content":"x"},"done":false}`)
		flusher.Flush()
	}))
	defer server.Close()

	llm, err := NewOllamaLLM(server.URL, "llama3.2")
	if err != nil {
		t.Fatalf("unexpected error constructing client: %v", err)
	}
	boom := fmt.Errorf("stop")
	err = llm.Generate(context.Background(), "", nil, "hi", func(string) error { return boom })
	if err != boom {
		t.Errorf("expected callback error to propagate, got %v", err)
	}
}

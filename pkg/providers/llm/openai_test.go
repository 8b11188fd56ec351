package llm

import (
	"fmt"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/option"
)

func TestOpenAILLMStreamsTokens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		chunks := []string{
			`{"id":"1","object":"chat.completion.chunk","model":"gpt-4o","choices":[{"index":0,"delta":{"content":"Hel"},"finish_reason":null}]}`,
			`{"id":"1","object":"chat.completion.chunk","model":"gpt-4o","choices":[{"index":0,"delta":{"content":"lo."},"finish_reason":null}]}`,
		}
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	defer server.Close()

	llm := NewOpenAILLM("test-key", "gpt-4o", option.WithBaseURL(server.URL+"/"))

	var got string
	err := llm.Generate(context.Background(), "", nil, "hi", func(tok string) error {
		got += tok
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Hello." {
		t.Errorf("expected 'Hello.', got %q", got)
	}
	if llm.Name() != "openai" {
		t.Errorf("unexpected name: %q", llm.Name())
	}
}

func TestOpenAILLMStopsOnTokenCallbackError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprintf(w, "data: %s\n\n", `{"id":"1","object":"chat.completion.chunk","model":"gpt-4o","choices":[{"index":0,"delta":{"content":"x"},"finish_reason":null}]}`)
		flusher.Flush()
	}))
	defer server.Close()

	llm := NewOpenAILLM("test-key", "gpt-4o", option.WithBaseURL(server.URL+"/"))
	boom := fmt.Errorf("stop")
	err := llm.Generate(context.Background(), "", nil, "hi", func(string) error { return boom })
	if err != boom {
		t.Errorf("expected callback error to propagate, got %v", err)
	}
}

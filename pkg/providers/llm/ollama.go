package llm

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/ollama/ollama/api"

	"github.com/vox-dialog/dialogd/pkg/dialog"
)

// OllamaLLM streams chat completions from a local or self-hosted Ollama
// instance via the callback-based api.Client.Chat streaming API. Grounded
// on the ollama/ollama/api usage in
// _examples/lookatitude-beluga-ai/llms/ollama/ollama.go, adapted from its
// StreamChat channel-relay pattern directly into dialog's onToken callback.
type OllamaLLM struct {
	client *api.Client
	model  string
}

func NewOllamaLLM(host, model string) (*OllamaLLM, error) {
	if model == "" {
		return nil, errors.New("ollama: model name is required")
	}
	if host == "" {
		host = "http://127.0.0.1:11434"
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("ollama: invalid host %q: %w", host, err)
	}
	return &OllamaLLM{client: api.NewClient(u, nil), model: model}, nil
}

func (l *OllamaLLM) Generate(ctx context.Context, systemPrompt string, history []dialog.Message, userText string, onToken func(string) error) error {
	messages := make([]api.Message, 0, len(history)+2)
	if systemPrompt != "" {
		messages = append(messages, api.Message{Role: "system", Content: systemPrompt})
	}
	for _, m := range history {
		switch m.Role {
		case dialog.RoleUser:
			messages = append(messages, api.Message{Role: "user", Content: m.Content})
		case dialog.RoleAssistant:
			messages = append(messages, api.Message{Role: "assistant", Content: m.Content})
		}
	}
	messages = append(messages, api.Message{Role: "user", Content: userText})

	stream := true
	req := &api.ChatRequest{
		Model:    l.model,
		Messages: messages,
		Stream:   &stream,
	}

	var callbackErr error
	err := l.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		if resp.Message.Content != "" {
			if err := onToken(resp.Message.Content); err != nil {
				callbackErr = err
				return err
			}
		}
		return nil
	})
	if callbackErr != nil {
		return callbackErr
	}
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", dialog.ErrProviderTransient, err)
	}
	return nil
}

func (l *OllamaLLM) Name() string { return "ollama" }

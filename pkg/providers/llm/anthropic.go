// Package llm adapts third-party language-model SDKs to dialog.LLMProvider.
// Each adapter's Generate feeds the SDK's streaming response into dialog's
// onToken callback token by token; cancellation reaches the SDK through the
// ctx it is given, and an error from onToken ends the stream.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/vox-dialog/dialogd/pkg/dialog"
)

// AnthropicLLM streams completions from the Claude Messages API.
type AnthropicLLM struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropicLLM builds a provider. apiKey is resolved by the caller from
// the env var named in the module's api_key_env_var setting.
func NewAnthropicLLM(apiKey, model string, opts ...option.RequestOption) *AnthropicLLM {
	if model == "" {
		model = string(anthropic.ModelClaude3_5SonnetLatest)
	}
	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &AnthropicLLM{
		client: anthropic.NewClient(reqOpts...),
		model:  anthropic.Model(model),
	}
}

func (l *AnthropicLLM) Generate(ctx context.Context, systemPrompt string, history []dialog.Message, userText string, onToken func(string) error) error {
	messages := make([]anthropic.MessageParam, 0, len(history)+1)
	for _, m := range history {
		switch m.Role {
		case dialog.RoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case dialog.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(userText)))

	params := anthropic.MessageNewParams{
		Model:     l.model,
		MaxTokens: 1024,
		Messages:  messages,
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	stream := l.client.Messages.NewStreaming(ctx, params)
	for stream.Next() {
		event := stream.Current()
		delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
		if !ok {
			continue
		}
		text := delta.Delta.Text
		if text == "" {
			continue
		}
		if err := onToken(text); err != nil {
			return err
		}
	}
	if err := stream.Err(); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", dialog.ErrProviderTransient, err)
	}
	return nil
}

func (l *AnthropicLLM) Name() string { return "anthropic" }

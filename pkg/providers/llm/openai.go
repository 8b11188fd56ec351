package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/vox-dialog/dialogd/pkg/dialog"
)

// OpenAILLM streams chat completions from the OpenAI (or any
// OpenAI-compatible) Chat Completions endpoint via the openai-go SDK's
// server-sent-events iterator.
type OpenAILLM struct {
	client openai.Client
	model  openai.ChatModel
}

func NewOpenAILLM(apiKey, model string, opts ...option.RequestOption) *OpenAILLM {
	if model == "" {
		model = openai.ChatModelGPT4o
	}
	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OpenAILLM{
		client: openai.NewClient(reqOpts...),
		model:  model,
	}
}

func (l *OpenAILLM) Generate(ctx context.Context, systemPrompt string, history []dialog.Message, userText string, onToken func(string) error) error {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	if systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(systemPrompt))
	}
	for _, m := range history {
		switch m.Role {
		case dialog.RoleUser:
			messages = append(messages, openai.UserMessage(m.Content))
		case dialog.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		}
	}
	messages = append(messages, openai.UserMessage(userText))

	stream := l.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model:    l.model,
		Messages: messages,
	})
	return drainChatStream(ctx, stream, onToken)
}

func drainChatStream(ctx context.Context, stream *ssestream.Stream[openai.ChatCompletionChunk], onToken func(string) error) error {
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		text := chunk.Choices[0].Delta.Content
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

func (l *OpenAILLM) Name() string { return "openai" }

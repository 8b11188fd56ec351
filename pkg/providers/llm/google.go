// Package llm adapts third-party language-model SDKs to dialog.LLMProvider.
package llm

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/vox-dialog/dialogd/pkg/dialog"
)

// GoogleLLM streams completions from the Gemini API via
// google.golang.org/genai. Roles are remapped (system->user,
// assistant->model) since Gemini's wire format only distinguishes
// user/model turns.
type GoogleLLM struct {
	client *genai.Client
	model  string
}

func NewGoogleLLM(ctx context.Context, apiKey, model string) (*GoogleLLM, error) {
	return NewGoogleLLMWithBaseURL(ctx, apiKey, model, "")
}

// NewGoogleLLMWithBaseURL overrides the Gemini API base URL, letting tests
// point the client at an httptest server instead of the live API.
func NewGoogleLLMWithBaseURL(ctx context.Context, apiKey, model, baseURL string) (*GoogleLLM, error) {
	if model == "" {
		model = "gemini-1.5-flash"
	}
	cc := &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dialog.ErrProviderUnavailable, err)
	}
	return &GoogleLLM{client: client, model: model}, nil
}

func (l *GoogleLLM) Generate(ctx context.Context, systemPrompt string, history []dialog.Message, userText string, onToken func(string) error) error {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, m := range history {
		role := genai.RoleUser
		if m.Role == dialog.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	contents = append(contents, genai.NewContentFromText(userText, genai.RoleUser))

	var cfg *genai.GenerateContentConfig
	if systemPrompt != "" {
		cfg = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		}
	}

	for resp, err := range l.client.Models.GenerateContentStream(ctx, l.model, contents, cfg) {
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %v", dialog.ErrProviderTransient, err)
		}
		text := resp.Text()
		if text == "" {
			continue
		}
		if err := onToken(text); err != nil {
			return err
		}
	}
	return nil
}

func (l *GoogleLLM) Name() string { return "google" }

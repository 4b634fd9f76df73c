package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// GeminiProvider adapts a *genai.Client to the Client interface so the LLM
// Judge (C4) and Contact Discovery Controller (C7) can run against Gemini
// without knowing which backend they're talking to.
//
// Grounded on blackcoderx-falcon's pkg/llm/gemini.go, which wraps the same
// google.golang.org/genai SDK behind a provider-neutral Chat method; this
// adapter keeps that message-conversion shape but targets the
// openai.ChatCompletionRequest/Response types the rest of this codebase
// already speaks, rather than introducing a second message type.
type GeminiProvider struct {
	Inner *genai.Client
	Model string
}

// NewGeminiProvider dials Gemini with apiKey, defaulting model to
// "gemini-2.5-flash-lite" when empty, matching the teacher's default.
func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	if model == "" {
		model = "gemini-2.5-flash-lite"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiProvider{Inner: client, Model: model}, nil
}

// CreateChatCompletion implements Client by translating an OpenAI-shaped
// chat request into Gemini's Contents/SystemInstruction format and
// translating the single reply back into an OpenAI-shaped response.
func (p *GeminiProvider) CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	model := request.Model
	if model == "" {
		model = p.Model
	}

	systemInstruction, conversation := splitSystemMessages(request.Messages)
	contents := toGeminiContents(conversation)

	var cfg *genai.GenerateContentConfig
	if systemInstruction != "" {
		cfg = &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{
				Parts: []*genai.Part{genai.NewPartFromText(systemInstruction)},
			},
		}
	}

	resp, err := p.Inner.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return openai.ChatCompletionResponse{}, fmt.Errorf("gemini (model: %s) request failed: %w", model, err)
	}

	return openai.ChatCompletionResponse{
		Model: model,
		Choices: []openai.ChatCompletionChoice{
			{
				Index: 0,
				Message: openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleAssistant,
					Content: resp.Text(),
				},
				FinishReason: openai.FinishReasonStop,
			},
		},
	}, nil
}

// splitSystemMessages pulls out and concatenates any system messages,
// since Gemini carries system instructions out of band from the turn
// history rather than as a "system"-role message.
func splitSystemMessages(messages []openai.ChatCompletionMessage) (string, []openai.ChatCompletionMessage) {
	var system string
	var rest []openai.ChatCompletionMessage
	for _, m := range messages {
		if m.Role == openai.ChatMessageRoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}

// toGeminiContents converts OpenAI-style turns to Gemini's Content list.
// Gemini uses "model" where OpenAI uses "assistant".
func toGeminiContents(messages []openai.ChatCompletionMessage) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := m.Role
		if role == openai.ChatMessageRoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{genai.NewPartFromText(m.Content)},
		})
	}
	return contents
}

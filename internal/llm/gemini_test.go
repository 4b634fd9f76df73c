package llm

import (
	"context"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

func TestSplitSystemMessagesConcatenatesMultiple(t *testing.T) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: "be terse"},
		{Role: openai.ChatMessageRoleUser, Content: "hello"},
		{Role: openai.ChatMessageRoleSystem, Content: "never guess"},
	}
	system, rest := splitSystemMessages(messages)
	if system != "be terse\n\nnever guess" {
		t.Fatalf("unexpected system instruction: %q", system)
	}
	if len(rest) != 1 || rest[0].Content != "hello" {
		t.Fatalf("expected only the user message to remain, got %+v", rest)
	}
}

func TestToGeminiContentsMapsAssistantRoleToModel(t *testing.T) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: "hi"},
		{Role: openai.ChatMessageRoleAssistant, Content: "hello there"},
	}
	contents := toGeminiContents(messages)
	if len(contents) != 2 {
		t.Fatalf("expected 2 contents, got %d", len(contents))
	}
	if contents[0].Role != openai.ChatMessageRoleUser {
		t.Fatalf("expected user role preserved, got %q", contents[0].Role)
	}
	if contents[1].Role != "model" {
		t.Fatalf("expected assistant role mapped to model, got %q", contents[1].Role)
	}
}

func TestNewSelectsOpenAIProviderByDefault(t *testing.T) {
	client, err := New(context.Background(), "", "", "test-key", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := client.(*OpenAIProvider); !ok {
		t.Fatalf("expected an *OpenAIProvider for empty/openai provider, got %T", client)
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	if _, err := New(context.Background(), "carrier-pigeon", "", "key", "model"); err == nil {
		t.Fatalf("expected an error for an unknown provider")
	}
}

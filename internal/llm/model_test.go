package llm

import (
	"testing"

	"github.com/tmc/langchaingo/llms"
)

func TestToLangchain(t *testing.T) {
	msgs := []Message{
		{Role: RoleSystem, Content: "rules"},
		{Role: RoleUser, Content: "question"},
		{Role: RoleAssistant, Content: "answer"},
	}

	out := toLangchain(msgs)
	if len(out) != 3 {
		t.Fatalf("got %d messages, want 3", len(out))
	}

	wantTypes := []llms.ChatMessageType{
		llms.ChatMessageTypeSystem,
		llms.ChatMessageTypeHuman,
		llms.ChatMessageTypeAI,
	}
	for i, want := range wantTypes {
		if out[i].Role != want {
			t.Errorf("message %d role = %v, want %v", i, out[i].Role, want)
		}
	}
}

func TestBuildCompletion_ProviderTokens(t *testing.T) {
	choice := &llms.ContentChoice{
		Content: "the answer",
		GenerationInfo: map[string]any{
			"PromptTokens":     120,
			"CompletionTokens": 15,
		},
	}

	c := buildCompletion(nil, choice, choice.Content)
	if c.PromptTokens != 120 || c.CompletionTokens != 15 {
		t.Errorf("tokens = %d/%d, want 120/15", c.PromptTokens, c.CompletionTokens)
	}
}

func TestBuildCompletion_FallbackEstimate(t *testing.T) {
	msgs := []Message{{Role: RoleUser, Content: "what is the refund policy"}}
	choice := &llms.ContentChoice{Content: "thirty days"}

	c := buildCompletion(msgs, choice, choice.Content)
	if c.PromptTokens == 0 {
		t.Error("prompt tokens should fall back to the estimate")
	}
	if c.CompletionTokens == 0 {
		t.Error("completion tokens should fall back to the estimate")
	}
}

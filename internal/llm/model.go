// Package llm provides answer generation using langchaingo.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/raphaelgruber/sitechat-go/internal/config"
	"github.com/raphaelgruber/sitechat-go/internal/parser"
)

// Role identifies the author of a prompt message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in the prompt message list.
type Message struct {
	Role    Role
	Content string
}

// Completion is the result of one generation call.
type Completion struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// Model wraps a langchaingo chat model.
type Model struct {
	llm       llms.Model
	modelName string
}

// NewModel creates an LLM model based on configuration.
func NewModel(cfg config.Config) (*Model, error) {
	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return &Model{llm: model, modelName: cfg.LLMModel}, nil
}

// Model returns the LLM model name.
func (m *Model) Model() string {
	return m.modelName
}

// Complete generates an answer for the message list.
func (m *Model) Complete(ctx context.Context, messages []Message) (*Completion, error) {
	content, err := m.llm.GenerateContent(ctx, toLangchain(messages))
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	if len(content.Choices) == 0 {
		return nil, fmt.Errorf("no response choices")
	}
	return buildCompletion(messages, content.Choices[0], content.Choices[0].Content), nil
}

// CompleteStream generates an answer, invoking onToken for each content
// delta as it arrives. The returned completion carries the full answer.
func (m *Model) CompleteStream(ctx context.Context, messages []Message, onToken func(token string) error) (*Completion, error) {
	var sb strings.Builder

	content, err := m.llm.GenerateContent(ctx, toLangchain(messages),
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			sb.Write(chunk)
			return onToken(string(chunk))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("generate stream: %w", err)
	}
	if len(content.Choices) == 0 {
		return nil, fmt.Errorf("no response choices")
	}

	full := content.Choices[0].Content
	if full == "" {
		full = sb.String()
	}
	return buildCompletion(messages, content.Choices[0], full), nil
}

func toLangchain(messages []Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		var t llms.ChatMessageType
		switch msg.Role {
		case RoleSystem:
			t = llms.ChatMessageTypeSystem
		case RoleAssistant:
			t = llms.ChatMessageTypeAI
		default:
			t = llms.ChatMessageTypeHuman
		}
		out = append(out, llms.TextParts(t, msg.Content))
	}
	return out
}

// buildCompletion reads token counts from the provider's generation
// info, falling back to the character approximation when the provider
// reports none (ollama).
func buildCompletion(messages []Message, choice *llms.ContentChoice, content string) *Completion {
	prompt := infoInt(choice.GenerationInfo, "PromptTokens")
	completion := infoInt(choice.GenerationInfo, "CompletionTokens")

	if prompt == 0 {
		for _, msg := range messages {
			prompt += parser.EstimateTokens(msg.Content)
		}
	}
	if completion == 0 {
		completion = parser.EstimateTokens(content)
	}

	return &Completion{
		Content:          content,
		PromptTokens:     prompt,
		CompletionTokens: completion,
	}
}

func infoInt(info map[string]any, key string) int {
	if info == nil {
		return 0
	}
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

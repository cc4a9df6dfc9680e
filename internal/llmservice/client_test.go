package llmservice

import (
	"context"
	"errors"
	"testing"

	"github.com/tmc/langchaingo/llms"

	"ocr-rag/internal/config"
)

type scriptedModel struct {
	reply  string
	err    error
	prompt string
	opts   llms.CallOptions
}

func (m *scriptedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, o := range options {
		o(&m.opts)
	}
	for _, part := range messages[0].Parts {
		if tc, ok := part.(llms.TextContent); ok {
			m.prompt += tc.Text
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.reply}}}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestGenerateContent(t *testing.T) {
	m := &scriptedModel{reply: "42"}
	got, err := GenerateContent(context.Background(), m, "question?", 0.3)
	if err != nil {
		t.Fatalf("GenerateContent() error = %v", err)
	}
	if got != "42" || m.prompt != "question?" {
		t.Fatalf("got %q with prompt %q", got, m.prompt)
	}
	if m.opts.Temperature != 0.3 {
		t.Fatalf("temperature = %v", m.opts.Temperature)
	}

	m = &scriptedModel{err: errors.New("boom")}
	if _, err := GenerateContent(context.Background(), m, "q", 0); err == nil {
		t.Fatalf("expected error")
	}
}

func TestStripThink(t *testing.T) {
	in := "<think>\nlet me reason\n</think>\nThe answer is 4."
	if got := StripThink(in); got != "The answer is 4." {
		t.Fatalf("StripThink() = %q", got)
	}
}

func TestNewModelUnsupportedProvider(t *testing.T) {
	if _, err := NewModel(context.Background(), &config.LLMConfig{Provider: "nope"}); err == nil {
		t.Fatalf("expected error")
	}
}

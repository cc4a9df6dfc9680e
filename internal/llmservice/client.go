package llmservice

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"ocr-rag/internal/config"
	"ocr-rag/internal/models"
)

var thinkTagRe = regexp.MustCompile(models.ThinkTag)

// NewModel builds the chat model named by cfg.Provider.
func NewModel(ctx context.Context, cfg *config.LLMConfig) (llms.Model, error) {
	log.Debug().Str("provider", cfg.Provider).Str("base_url", cfg.BaseURL).Str("model", cfg.Model).Msg("Creating LLM client")

	var (
		llm llms.Model
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case "ollama", "":
		llm, err = ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
	case "openai":
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err = openai.New(opts...)
	case "googleai", "gemini":
		llm, err = googleai.New(ctx,
			googleai.WithAPIKey(cfg.Key),
			googleai.WithDefaultModel(cfg.Model),
		)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s llm: %w", cfg.Provider, err)
	}
	return llm, nil
}

// GenerateContent sends one prompt as a single human message and returns the
// text of the first choice.
func GenerateContent(ctx context.Context, llm llms.Model, prompt string, temperature float64) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}
	res, err := llm.GenerateContent(ctx, messages, llms.WithTemperature(temperature))
	if err != nil {
		return "", err
	}
	if res == nil || len(res.Choices) == 0 {
		return "", fmt.Errorf("empty llm choices")
	}
	return res.Choices[0].Content, nil
}

// StripThink removes <think>...</think> blocks emitted by reasoning models.
func StripThink(text string) string {
	return strings.TrimSpace(thinkTagRe.ReplaceAllString(text, ""))
}

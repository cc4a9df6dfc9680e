// Package rag turns retrieved documents and a conversation transcript into an
// answer with one language model call.
package rag

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"

	"ocr-rag/internal/config"
	"ocr-rag/internal/llmservice"
	"ocr-rag/internal/models"
)

// ContextType selects the prompt used for a synthesis call.
type ContextType int

const (
	ContextLocal ContextType = iota
	ContextWeb
)

func (c ContextType) String() string {
	if c == ContextWeb {
		return "web"
	}
	return "local"
}

type Synthesizer struct {
	llm         llms.Model
	temperature float64
	stripThink  bool
	templates   map[ContextType]prompts.PromptTemplate
}

func NewSynthesizer(llm llms.Model, cfg *config.LLMConfig) *Synthesizer {
	inputs := []string{"context", "question"}
	return &Synthesizer{
		llm:         llm,
		temperature: cfg.Temperature,
		stripThink:  cfg.StripThink,
		templates: map[ContextType]prompts.PromptTemplate{
			ContextLocal: prompts.NewPromptTemplate(models.LocalPromptTemplate, inputs),
			ContextWeb:   prompts.NewPromptTemplate(models.WebPromptTemplate, inputs),
		},
	}
}

// Prompt renders the composite prompt without calling the model.
func (s *Synthesizer) Prompt(docs []models.Document, conversation string, ct ContextType) (string, error) {
	tmpl, ok := s.templates[ct]
	if !ok {
		return "", fmt.Errorf("unknown context type %d", ct)
	}
	return tmpl.Format(map[string]any{
		"context":  FormatDocuments(docs),
		"question": conversation,
	})
}

// Synthesize never fails: model errors come back as the answer text.
func (s *Synthesizer) Synthesize(ctx context.Context, docs []models.Document, conversation string, ct ContextType) string {
	prompt, err := s.Prompt(docs, conversation, ct)
	if err != nil {
		log.Error().Err(err).Str("context_type", ct.String()).Msg("Failed to format prompt")
		return models.LLMFailurePrefix + err.Error()
	}

	log.Debug().Str("context_type", ct.String()).Int("docs", len(docs)).Int("prompt_len", len(prompt)).Msg("Invoking LLM")
	answer, err := llmservice.GenerateContent(ctx, s.llm, prompt, s.temperature)
	if err != nil {
		log.Error().Err(err).Str("context_type", ct.String()).Msg("LLM call failed")
		return models.LLMFailurePrefix + err.Error()
	}
	if s.stripThink {
		answer = llmservice.StripThink(answer)
	}
	return answer
}

// FormatDocuments renders one line per document prefixed with its image
// number and file, N/A when unknown.
func FormatDocuments(docs []models.Document) string {
	lines := make([]string, 0, len(docs))
	for _, d := range docs {
		number := d.ImageLabel
		if number == "" {
			number = "N/A"
			if d.Metadata.ImageNumber != nil {
				number = strconv.Itoa(*d.Metadata.ImageNumber)
			}
		}
		file := d.Metadata.ImageFile
		if file == "" {
			file = "N/A"
		}
		lines = append(lines, fmt.Sprintf("[Image Number: %s, File: %s] %s", number, file, d.Content))
	}
	return strings.Join(lines, "\n")
}

// BuildConversationContext writes prior turns as User/Assistant pairs and
// leaves the current question open for the assistant.
func BuildConversationContext(turns []models.HistoryTurn, query string) string {
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "User: %s\nAssistant: %s\n\n", t.Question, t.Answer)
	}
	fmt.Fprintf(&b, "User: %s\nAssistant: ", query)
	return b.String()
}

// Citations collects highlight boxes for every doc carrying both a source and
// a bbox, and the Source:[...] tags appended to the answer.
func Citations(docs []models.Document) (string, []models.SourceBBox) {
	var (
		tags   []string
		bboxes = []models.SourceBBox{}
	)
	for _, d := range docs {
		src := d.Metadata.Source
		if src != "" && d.Metadata.BBox != nil {
			bboxes = append(bboxes, models.SourceBBox{Source: src, BBox: *d.Metadata.BBox})
		}
		if src == "" || src == models.SourceSelectableText || src == models.SourceUnknown {
			continue
		}
		if d.Metadata.BBox != nil {
			tags = append(tags, fmt.Sprintf("Source:[File: %s, BBox: %s]", src, d.Metadata.BBox))
		} else {
			tags = append(tags, fmt.Sprintf("Source:[File: %s]", src))
		}
	}
	return strings.Join(tags, " "), bboxes
}

// AppendCitations adds the citation tags after a blank line.
func AppendCitations(answer, tags string) string {
	if tags == "" {
		return answer
	}
	return answer + "\n\n" + tags
}

// Package testutil holds deterministic stand-ins for the external services
// (embedding, LLM, OCR, rasterization) used across package tests.
package testutil

import (
	"context"
	"errors"
	"strings"
	"sync"
	"unicode"

	"github.com/tmc/langchaingo/llms"
)

const vocabDims = 128

// VocabEmbedder gives every distinct lower-cased word its own dimension, plus
// a constant bias dimension so no vector is zero.
type VocabEmbedder struct {
	mu    sync.Mutex
	vocab map[string]int
	Err   error
}

func NewVocabEmbedder() *VocabEmbedder {
	return &VocabEmbedder{vocab: map[string]int{}}
}

func (e *VocabEmbedder) vector(text string) []float32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	vec := make([]float32, vocabDims)
	vec[0] = 0.5
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		idx, ok := e.vocab[w]
		if !ok {
			idx = 1 + len(e.vocab)%(vocabDims-1)
			e.vocab[w] = idx
		}
		vec[idx]++
	}
	return vec
}

func (e *VocabEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *VocabEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	return e.vector(text), nil
}

// ScriptedLLM answers prompts in order from Replies (the last reply repeats)
// and records every prompt it saw.
type ScriptedLLM struct {
	mu      sync.Mutex
	Replies []string
	Err     error
	Prompts []string
}

func (m *ScriptedLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var prompt strings.Builder
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if tc, ok := part.(llms.TextContent); ok {
				prompt.WriteString(tc.Text)
			}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Prompts = append(m.Prompts, prompt.String())
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Replies) == 0 {
		return nil, errors.New("no scripted reply")
	}
	idx := min(len(m.Prompts)-1, len(m.Replies)-1)
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.Replies[idx]}}}, nil
}

func (m *ScriptedLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// Calls is the number of prompts received so far.
func (m *ScriptedLLM) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Prompts)
}

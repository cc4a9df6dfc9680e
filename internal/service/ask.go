package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"ocr-rag/internal/metrics"
	"ocr-rag/internal/models"
	"ocr-rag/internal/rag"
	"ocr-rag/internal/storage"
	"ocr-rag/internal/workflow"
)

// Ask runs one question turn for an indexed session. A session that was
// never indexed yields ErrIndexNotFound.
func (s *Service) Ask(ctx context.Context, sessionID, query string) (*models.PromptResponse, error) {
	sessionID, err := checkSession(sessionID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, ErrQueryRequired
	}
	if t := s.cfg.Server.TurnTimeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(t)*time.Second)
		defer cancel()
	}

	timings := metrics.NewTimings()
	sink := s.sink(timings)
	total := metrics.Measure(sink, metrics.StageTotalQuestion)
	st, err := s.runTurn(ctx, sessionID, query, sink)
	total()
	if err != nil {
		return nil, err
	}

	tags, bboxes := rag.Citations(st.Docs)
	log.Info().Str("session_id", sessionID).Int("docs", len(st.Docs)).Bool("web_fallback", st.WebFallback).Msg("Question answered")

	return &models.PromptResponse{
		SessionID:   sessionID,
		Query:       query,
		Answer:      rag.AppendCitations(st.Answer, tags),
		BBoxes:      bboxes,
		Timestamp:   st.Timestamp,
		Performance: timings.Map(),
		WebFallback: st.WebFallback,
	}, nil
}

func (s *Service) runTurn(ctx context.Context, sessionID, query string, sink metrics.Sink) (*workflow.State, error) {
	messages, err := s.history.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	st := &workflow.State{Query: query, SessionID: sessionID, Messages: messages}
	if err := s.workflow.Run(ctx, st, sink); err != nil {
		return nil, err
	}
	return st, nil
}

// Reset clears the session history and drops its index. With purge the
// stored artifacts go too. Resetting an unknown session succeeds.
func (s *Service) Reset(ctx context.Context, sessionID string, purge bool) error {
	sessionID, err := checkSession(sessionID)
	if err != nil {
		return err
	}
	if err := s.history.Clear(ctx, sessionID); err != nil {
		return err
	}
	if err := s.index.Delete(sessionID); err != nil {
		return err
	}
	if purge {
		if err := s.store.DeletePrefix(ctx, storage.SessionPrefix(sessionID)); err != nil {
			return err
		}
	}
	log.Info().Str("session_id", sessionID).Bool("purge", purge).Msg("Session reset")
	return nil
}

// History returns the session's turns, oldest first; never nil.
func (s *Service) History(ctx context.Context, sessionID string) ([]models.HistoryTurn, error) {
	sessionID, err := checkSession(sessionID)
	if err != nil {
		return nil, err
	}
	turns, err := s.history.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if turns == nil {
		turns = []models.HistoryTurn{}
	}
	return turns, nil
}

// Artifact reads one stored artifact of a session.
func (s *Service) Artifact(ctx context.Context, sessionID, name string) ([]byte, error) {
	sessionID, err := checkSession(sessionID)
	if err != nil {
		return nil, err
	}
	return s.store.Download(ctx, storage.Key(sessionID, name))
}

// Snippet is a matching line of the consolidated OCR text.
type Snippet struct {
	File string `json:"file"`
	Text string `json:"snippet"`
}

// SearchOCRText does a case-insensitive substring search over the session's
// consolidated OCR text.
func (s *Service) SearchOCRText(ctx context.Context, sessionID, query string) ([]Snippet, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, ErrQueryRequired
	}
	raw, err := s.Artifact(ctx, sessionID, ocrTextName)
	if err != nil {
		return nil, err
	}

	snippets := []Snippet{}
	file := ""
	for _, line := range strings.Split(string(raw), "\n") {
		if name, ok := strings.CutPrefix(line, "File: "); ok {
			file = name
			continue
		}
		if strings.TrimSpace(line) != "" && strings.Contains(strings.ToLower(line), query) {
			snippets = append(snippets, Snippet{File: file, Text: strings.TrimSpace(line)})
		}
	}
	return snippets, nil
}

// Package service implements the upload, question, reset and history
// entrypoints on top of OCR, indexing and the question workflow.
package service

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"ocr-rag/internal/chromemdb"
	"ocr-rag/internal/config"
	"ocr-rag/internal/helper"
	"ocr-rag/internal/history"
	"ocr-rag/internal/metrics"
	"ocr-rag/internal/ocr"
	"ocr-rag/internal/parser"
	"ocr-rag/internal/pdfimage"
	"ocr-rag/internal/rag"
	"ocr-rag/internal/storage"
	"ocr-rag/internal/workflow"
)

var (
	ErrSessionRequired = errors.New("session_id is required")
	ErrInvalidSession  = helper.ErrInvalidSessionID
	ErrQueryRequired   = errors.New("query is required")
	ErrNoFiles         = errors.New("no files uploaded")
	ErrExtractionEmpty = errors.New("no text extracted from PDFs")
	ErrUploadMismatch  = errors.New("files_base64 and filenames must have the same length")
	ErrInvalidPDF      = pdfimage.ErrInvalidPDF
	ErrIndexNotFound   = chromemdb.ErrIndexNotFound
)

const ocrTextName = "ocr_full_text.txt"

// Deps are the collaborators a Service is built from.
type Deps struct {
	Storage     storage.Storage
	Index       *chromemdb.VectorDBManager
	History     history.Store
	OCR         ocr.Engine
	Rasterizer  pdfimage.Rasterizer
	Synthesizer workflow.Synthesizer
	// nil disables web fallback
	Web       workflow.WebSearcher
	Collector *metrics.Collector
}

type Service struct {
	cfg        *config.Config
	store      storage.Storage
	index      *chromemdb.VectorDBManager
	history    history.Store
	engine     ocr.Engine
	rasterizer pdfimage.Rasterizer
	parser     *parser.Parser
	workflow   *workflow.Orchestrator
	collector  *metrics.Collector
	now        func() time.Time
}

func New(cfg *config.Config, deps Deps) (*Service, error) {
	switch {
	case deps.Storage == nil:
		return nil, fmt.Errorf("storage is required")
	case deps.Index == nil:
		return nil, fmt.Errorf("vector index is required")
	case deps.History == nil:
		return nil, fmt.Errorf("history store is required")
	case deps.OCR == nil:
		return nil, fmt.Errorf("ocr engine is required")
	case deps.Rasterizer == nil:
		return nil, fmt.Errorf("rasterizer is required")
	case deps.Synthesizer == nil:
		return nil, fmt.Errorf("synthesizer is required")
	}
	if deps.Collector == nil {
		deps.Collector = metrics.NewCollector()
	}

	orchestrator := workflow.New(workflow.Options{
		Loader:         workflow.VectorDBLoader{Manager: deps.Index},
		Synthesizer:    deps.Synthesizer,
		Web:            deps.Web,
		History:        deps.History,
		TopK:           cfg.RAG.TopK,
		ModelLabel:     cfg.LLM.Label,
		ExcludeDomains: cfg.WebSearch.ExcludeDomains,
		MaxWebResults:  cfg.WebSearch.MaxResults,
	})

	return &Service{
		cfg:        cfg,
		store:      deps.Storage,
		index:      deps.Index,
		history:    deps.History,
		engine:     deps.OCR,
		rasterizer: deps.Rasterizer,
		parser:     parser.NewParser(cfg),
		workflow:   orchestrator,
		collector:  deps.Collector,
		now:        time.Now,
	}, nil
}

// Metrics returns the aggregate stage timings since start.
func (s *Service) Metrics() map[string]metrics.StageSummary {
	return s.collector.Summary()
}

// SaveMetrics writes the aggregate stage timings to a timestamped workbook
// in the data dir and returns its path.
func (s *Service) SaveMetrics() (string, error) {
	if err := helper.CreateFolder(s.cfg.Storage.DataDir); err != nil {
		return "", err
	}
	name := fmt.Sprintf("performance_metrics_%s.xlsx", s.now().Format("20060102_150405"))
	path := filepath.Join(s.cfg.Storage.DataDir, name)
	if err := s.collector.SaveWorkbook(path); err != nil {
		return "", err
	}
	log.Info().Str("path", path).Strs("stages", s.collector.Stages()).Msg("Performance metrics saved")
	return path, nil
}

// OCRVersion reports the engine identity for health checks.
func (s *Service) OCRVersion() string {
	if v, ok := s.engine.(interface{ Version() string }); ok {
		return v.Version()
	}
	return s.engine.Name()
}

// checkSession trims id and rejects ids that are empty or outside the
// session id alphabet.
func checkSession(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrSessionRequired
	}
	if !helper.ValidSessionID(id) {
		return "", ErrInvalidSession
	}
	return id, nil
}

func (s *Service) sink(timings *metrics.Timings) metrics.Sink {
	return metrics.Multi{timings, s.collector, metrics.Logger{}}
}

var _ workflow.Synthesizer = (*rag.Synthesizer)(nil)

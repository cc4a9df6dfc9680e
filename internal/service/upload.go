package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"ocr-rag/internal/helper"
	"ocr-rag/internal/metrics"
	"ocr-rag/internal/models"
	"ocr-rag/internal/ocr"
	"ocr-rag/internal/parser"
	"ocr-rag/internal/pdfimage"
	"ocr-rag/internal/storage"
)

type pathSource interface {
	Path() string
}

// Upload rasterizes and OCRs every PDF, stores the page artifacts and
// replaces the session index with the new chunks. An empty or "string"
// session id starts a new session.
func (s *Service) Upload(ctx context.Context, sessionID string, sources []Source) (*models.UploadResult, error) {
	if len(sources) == 0 {
		return nil, ErrNoFiles
	}
	sessionID, err := helper.EnsureSessionID(sessionID)
	if err != nil {
		return nil, err
	}
	logger := log.With().Str("session_id", sessionID).Logger()

	timings := metrics.NewTimings()
	sink := s.sink(timings)
	defer metrics.Measure(sink, metrics.StageTotalUpload)()

	done := metrics.Measure(sink, metrics.StagePDFExtraction)
	names := make([]string, 0, len(sources))
	var images []pdfimage.Image
	for _, src := range sources {
		pages, err := s.rasterize(ctx, sessionID, src)
		if err != nil {
			return nil, err
		}
		names = append(names, src.Name())
		images = append(images, pages...)
	}
	done()
	logger.Info().Strs("pdf_names", names).Int("images", len(images)).Msg("PDF pages rendered")

	done = metrics.Measure(sink, metrics.StageOCR)
	pages, err := s.recognize(ctx, images)
	done()
	if err != nil {
		return nil, err
	}

	var (
		fullText  strings.Builder
		contents  []string
		metadatas []models.ChunkMetadata
	)
	for i, img := range images {
		result, err := s.parser.ParsePage(img.Name, pages[i])
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&fullText, "File: %s\n%s\n\n", img.Name, result.Text)

		if err := s.put(ctx, sessionID, img.Name, img.Data); err != nil {
			return nil, err
		}
		coords := parser.CoordinatesName(img.Name)
		if err := s.put(ctx, sessionID, coords, parser.CoordinatesTSV(result.Tokens)); err != nil {
			return nil, err
		}
		for _, c := range result.Chunks {
			contents = append(contents, c.Content)
			metadatas = append(metadatas, c.Metadata)
		}
	}
	if err := s.put(ctx, sessionID, ocrTextName, []byte(fullText.String())); err != nil {
		return nil, err
	}

	if len(contents) == 0 {
		logger.Warn().Msg("No text extracted from PDFs")
		return nil, ErrExtractionEmpty
	}

	done = metrics.Measure(sink, metrics.StageEmbedding)
	err = s.index.Build(ctx, sessionID, contents, metadatas)
	done()
	if err != nil {
		return nil, fmt.Errorf("failed to build vector index: %w", err)
	}
	logger.Info().Int("chunks", len(contents)).Msg("Session index built")

	return &models.UploadResult{
		SessionID:   sessionID,
		PDFNames:    names,
		ChunkCount:  len(contents),
		FullOCRText: fullText.String(),
		Performance: timings.Map(),
	}, nil
}

// rasterize validates one PDF, keeps a copy in storage and renders its pages.
func (s *Service) rasterize(ctx context.Context, sessionID string, src Source) ([]pdfimage.Image, error) {
	data, err := src.Read()
	if err != nil {
		return nil, err
	}
	if _, err := pdfimage.PageCount(data); err != nil {
		return nil, fmt.Errorf("%s: %w", src.Name(), err)
	}
	if err := s.put(ctx, sessionID, src.Name(), data); err != nil {
		return nil, err
	}

	path := ""
	if ps, ok := src.(pathSource); ok {
		path = ps.Path()
	} else {
		tmp, err := os.CreateTemp("", "upload-*.pdf")
		if err != nil {
			return nil, fmt.Errorf("failed to spool %s: %w", src.Name(), err)
		}
		path = tmp.Name()
		defer os.Remove(path)
		_, werr := tmp.Write(data)
		if cerr := tmp.Close(); werr == nil {
			werr = cerr
		}
		if werr != nil {
			return nil, fmt.Errorf("failed to spool %s: %w", src.Name(), werr)
		}
	}

	images, err := s.rasterizer.Rasterize(ctx, path, src.Name())
	if err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", src.Name(), err)
	}
	return images, nil
}

// recognize OCRs images on a bounded worker pool; results keep image order.
func (s *Service) recognize(ctx context.Context, images []pdfimage.Image) ([]ocr.Page, error) {
	workers := s.cfg.OCR.Workers
	if workers <= 0 {
		workers = 1
	}
	pages := make([]ocr.Page, len(images))
	errs := make([]error, len(images))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i := range images {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}
			page, err := s.engine.Recognize(ctx, images[i].Data)
			if err != nil {
				errs[i] = fmt.Errorf("ocr failed for %s: %w", images[i].Name, err)
				return
			}
			if page.Width == 0 || page.Height == 0 {
				if w, h, err := ocr.ImageSize(images[i].Data); err == nil {
					page.Width, page.Height = w, h
				}
			}
			pages[i] = page
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return pages, nil
}

func (s *Service) put(ctx context.Context, sessionID, name string, data []byte) error {
	return s.store.Upload(ctx, storage.Key(sessionID, name), data, storage.ContentType(name))
}

package pdfimage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"

	"ocr-rag/internal/config"
)

// Pdftoppm renders pages with the poppler pdftoppm binary, one process per
// page, at most workers at a time.
type Pdftoppm struct {
	bin     string
	dpi     int
	workers int
}

func NewPdftoppm(cfg *config.OCRConfig) *Pdftoppm {
	p := &Pdftoppm{bin: cfg.PdftoppmPath, dpi: cfg.DPI, workers: cfg.Workers}
	if p.bin == "" {
		p.bin = "pdftoppm"
	}
	if p.dpi <= 0 {
		p.dpi = 150
	}
	if p.workers <= 0 {
		p.workers = 1
	}
	return p
}

func (p *Pdftoppm) Rasterize(ctx context.Context, pdfPath, pdfName string) ([]Image, error) {
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read pdf: %w", err)
	}
	total, err := PageCount(data)
	if err != nil {
		return nil, err
	}

	workDir, err := os.MkdirTemp("", "pdfimage-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	images := make([]Image, total)
	errs := make([]error, total)
	sem := make(chan struct{}, p.workers)
	var wg sync.WaitGroup
	for page := 1; page <= total; page++ {
		wg.Add(1)
		go func(page int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := ctx.Err(); err != nil {
				errs[page-1] = err
				return
			}
			out, err := p.renderPage(ctx, pdfPath, workDir, page)
			if err != nil {
				errs[page-1] = err
				return
			}
			images[page-1] = Image{Name: ImageName(pdfName, page), Page: page, Data: out}
		}(page)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	log.Debug().Str("pdf", pdfName).Int("pages", total).Msg("Rendered pdf pages")
	return images, nil
}

func (p *Pdftoppm) renderPage(ctx context.Context, pdfPath, workDir string, page int) ([]byte, error) {
	prefix := filepath.Join(workDir, fmt.Sprintf("page-%d", page))
	args := []string{
		"-jpeg",
		"-r", strconv.Itoa(p.dpi),
		"-f", strconv.Itoa(page),
		"-l", strconv.Itoa(page),
		"-singlefile",
		pdfPath,
		prefix,
	}
	cmd := exec.CommandContext(ctx, p.bin, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("pdftoppm failed on page %d: %w: %s", page, err, out)
	}
	data, err := os.ReadFile(prefix + ".jpg")
	if err != nil {
		return nil, fmt.Errorf("rendered image not found for page %d: %w", page, err)
	}
	return data, nil
}

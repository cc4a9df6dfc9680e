package testutil

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"ocr-rag/internal/models"
	"ocr-rag/internal/ocr"
	"ocr-rag/internal/pdfimage"
)

// MinimalPDF builds a PDF with the given number of empty pages and a valid
// cross-reference table.
func MinimalPDF(pages int) []byte {
	kids := make([]string, pages)
	objs := []string{"1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n", ""}
	for i := 0; i < pages; i++ {
		num := 3 + i
		kids[i] = fmt.Sprintf("%d 0 R", num)
		objs = append(objs, fmt.Sprintf("%d 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 200 200] >>\nendobj\n", num))
	}
	objs[1] = fmt.Sprintf("2 0 obj\n<< /Type /Pages /Kids [%s] /Count %d >>\nendobj\n", strings.Join(kids, " "), pages)

	out := []byte("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = len(out)
		out = append(out, o...)
	}
	xref := len(out)
	out = append(out, fmt.Sprintf("xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)...)
	for _, off := range offsets {
		out = append(out, fmt.Sprintf("%010d 00000 n \n", off)...)
	}
	out = append(out, fmt.Sprintf("trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)...)
	return out
}

// StubRasterizer counts pages with the real PDF parser and returns one fake
// image per page whose bytes are the image name.
type StubRasterizer struct {
	Err error
}

func (r StubRasterizer) Rasterize(ctx context.Context, pdfPath, pdfName string) ([]pdfimage.Image, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		return nil, err
	}
	n, err := pdfimage.PageCount(data)
	if err != nil {
		return nil, err
	}
	images := make([]pdfimage.Image, n)
	for i := range images {
		name := pdfimage.ImageName(pdfName, i+1)
		images[i] = pdfimage.Image{Name: name, Page: i + 1, Data: []byte(name)}
	}
	return images, nil
}

// StubOCR returns Pages[string(image)], falling back to Default.
type StubOCR struct {
	mu      sync.Mutex
	Pages   map[string]ocr.Page
	Default ocr.Page
	Err     error
	seen    []string
}

func (e *StubOCR) Name() string { return "stub" }

func (e *StubOCR) Recognize(ctx context.Context, image []byte) (ocr.Page, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seen = append(e.seen, string(image))
	if e.Err != nil {
		return ocr.Page{}, e.Err
	}
	if p, ok := e.Pages[string(image)]; ok {
		return p, nil
	}
	return e.Default, nil
}

// Seen lists the images recognized so far.
func (e *StubOCR) Seen() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.seen...)
}

// Line lays words out left to right on one row starting at (left, top).
func Line(top, left int, words ...string) []models.Token {
	tokens := make([]models.Token, 0, len(words))
	x := left
	for _, w := range words {
		width := 10 * len(w)
		tokens = append(tokens, models.Token{Text: w, Left: x, Top: top, Width: width, Height: 12})
		x += width + 5
	}
	return tokens
}

var ErrStub = errors.New("stub failure")

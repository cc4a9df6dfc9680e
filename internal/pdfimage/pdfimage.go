// Package pdfimage validates uploaded PDFs and renders their pages to JPEG
// images for OCR.
package pdfimage

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/ledongthuc/pdf"

	"ocr-rag/internal/helper"
)

var ErrInvalidPDF = errors.New("invalid pdf")

// Image is one rendered page.
type Image struct {
	Name string
	Page int
	Data []byte
}

// Rasterizer renders every page of the PDF at pdfPath. pdfName is the
// upload name used to derive image names.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdfPath, pdfName string) ([]Image, error)
}

// PageCount opens the document and returns its number of pages.
func PageCount(data []byte) (n int, err error) {
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\n\r "), []byte("%PDF-")) {
		return 0, fmt.Errorf("%w: missing %%PDF header", ErrInvalidPDF)
	}
	// the parser panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("%w: %v", ErrInvalidPDF, r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	n = r.NumPage()
	if n == 0 {
		return 0, fmt.Errorf("%w: no pages", ErrInvalidPDF)
	}
	return n, nil
}

// ImageName is the stored name of a rendered page: <pdf>_page<N>_img<N>.jpeg.
// Each page renders to one image, so the image number is the page number.
func ImageName(pdfName string, page int) string {
	return fmt.Sprintf("%s_page%d_img%d.jpeg", helper.SafeName(pdfName), page, page)
}

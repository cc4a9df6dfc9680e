// Package ocr turns page images into word-level tokens with pixel boxes.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"ocr-rag/internal/models"
)

// Page is the OCR output for one image.
type Page struct {
	Width  int
	Height int
	Tokens []models.Token
}

// Engine recognizes words on an encoded image.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, image []byte) (Page, error)
}

// DropEmpty removes tokens whose trimmed text is empty and trims the rest.
func DropEmpty(tokens []models.Token) []models.Token {
	out := make([]models.Token, 0, len(tokens))
	for _, t := range tokens {
		text := strings.TrimSpace(t.Text)
		if text == "" {
			continue
		}
		t.Text = text
		out = append(out, t)
	}
	return out
}

// ImageSize decodes only the image header.
func ImageSize(data []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to decode image header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

package ocr

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"

	"ocr-rag/internal/models"
)

// TesseractEngine runs Tesseract through gosseract, one client per image.
type TesseractEngine struct {
	languages     []string
	dpi           int
	clientFactory func() *gosseract.Client
}

func NewTesseractEngine(languages []string, dpi int) *TesseractEngine {
	return &TesseractEngine{
		languages:     append([]string(nil), languages...),
		dpi:           dpi,
		clientFactory: gosseract.NewClient,
	}
}

func (e *TesseractEngine) Name() string { return "tesseract" }

// Recognize returns every word box Tesseract reports, unsorted.
func (e *TesseractEngine) Recognize(ctx context.Context, img []byte) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	width, height, err := ImageSize(img)
	if err != nil {
		return Page{}, err
	}

	c := e.clientFactory()
	defer c.Close()

	if len(e.languages) > 0 {
		if err := c.SetLanguage(e.languages...); err != nil {
			return Page{}, fmt.Errorf("set languages: %w", err)
		}
	}
	if e.dpi > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(e.dpi)); err != nil {
			return Page{}, fmt.Errorf("set dpi: %w", err)
		}
	}
	if err := c.SetImageFromBytes(img); err != nil {
		return Page{}, fmt.Errorf("set image: %w", err)
	}

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return Page{}, fmt.Errorf("recognize words: %w", err)
	}
	tokens := make([]models.Token, 0, len(boxes))
	for _, b := range boxes {
		tokens = append(tokens, models.Token{
			Text:   b.Word,
			Left:   b.Box.Min.X,
			Top:    b.Box.Min.Y,
			Width:  b.Box.Dx(),
			Height: b.Box.Dy(),
		})
	}
	return Page{Width: width, Height: height, Tokens: DropEmpty(tokens)}, nil
}

// Version reports the linked Tesseract version.
func Version() string {
	return gosseract.Version()
}

func (e *TesseractEngine) Version() string { return Version() }

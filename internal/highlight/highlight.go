// Package highlight outlines chunk bounding boxes on stored page images.
package highlight

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"strconv"
	"strings"

	"ocr-rag/internal/models"
)

var Red = color.RGBA{R: 255, A: 255}

// ParseBBox reads "x1,y1,x2,y2" (brackets and spaces allowed).
func ParseBBox(raw string) (models.BBox, error) {
	raw = strings.Trim(strings.TrimSpace(raw), "[]")
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return models.BBox{}, fmt.Errorf("bbox needs 4 values, got %d", len(parts))
	}
	var box models.BBox
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return models.BBox{}, fmt.Errorf("invalid bbox value %q", p)
		}
		box[i] = v
	}
	if !box.Valid() {
		return models.BBox{}, fmt.Errorf("bbox %s has min > max", box)
	}
	return box, nil
}

// Draw decodes img, outlines every box with a stroke-wide red border and
// returns the result as PNG.
func Draw(img []byte, boxes []models.BBox, stroke int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if stroke <= 0 {
		stroke = 2
	}
	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, src, bounds.Min, draw.Src)

	fill := image.NewUniform(Red)
	for _, b := range boxes {
		r := image.Rect(b.XMin(), b.YMin(), b.XMax(), b.YMax()).Add(bounds.Min)
		edges := []image.Rectangle{
			image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+stroke),
			image.Rect(r.Min.X, r.Max.Y-stroke, r.Max.X, r.Max.Y),
			image.Rect(r.Min.X, r.Min.Y, r.Min.X+stroke, r.Max.Y),
			image.Rect(r.Max.X-stroke, r.Min.Y, r.Max.X, r.Max.Y),
		}
		for _, e := range edges {
			draw.Draw(dst, e.Intersect(bounds), fill, image.Point{}, draw.Src)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

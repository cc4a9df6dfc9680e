package models

import (
	"encoding/json"
	"fmt"
)

// Token is one OCR word with its pixel rectangle on the page image.
type Token struct {
	Text   string `json:"text"`
	Left   int    `json:"left"`
	Top    int    `json:"top"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Right is the exclusive right edge of the token.
func (t Token) Right() int { return t.Left + t.Width }

// Bottom is the exclusive bottom edge of the token.
func (t Token) Bottom() int { return t.Top + t.Height }

// BBox is [x_min, y_min, x_max, y_max] in page pixels.
type BBox [4]int

func (b BBox) XMin() int { return b[0] }
func (b BBox) YMin() int { return b[1] }
func (b BBox) XMax() int { return b[2] }
func (b BBox) YMax() int { return b[3] }

// Valid reports whether min <= max on both axes.
func (b BBox) Valid() bool { return b[0] <= b[2] && b[1] <= b[3] }

// Contains reports whether the token rectangle lies inside the box.
func (b BBox) Contains(t Token) bool {
	return t.Left >= b[0] && t.Top >= b[1] && t.Right() <= b[2] && t.Bottom() <= b[3]
}

// String renders the box the way citations expect it: [1, 2, 3, 4].
func (b BBox) String() string {
	return fmt.Sprintf("[%d, %d, %d, %d]", b[0], b[1], b[2], b[3])
}

// ChunkMetadata is the provenance attached to a chunk in the vector index.
type ChunkMetadata struct {
	Source      string `json:"source"`
	ImageFile   string `json:"image_file"`
	ImageNumber *int   `json:"image_number"`
	BBox        *BBox  `json:"bbox,omitempty"`
	PageWidth   int    `json:"page_width"`
	PageHeight  int    `json:"page_height"`
}

// Chunk is a bounded span of reconstructed page text.
type Chunk struct {
	Content  string
	Metadata ChunkMetadata
	// token index range [TokenStart, TokenEnd) that contributed to the bbox
	TokenStart int
	TokenEnd   int
}

// Document is a retrieved passage handed to answer synthesis. Web results
// reuse the shape with the URL in ImageFile/ImageNumberLabel.
type Document struct {
	Content    string        `json:"content"`
	Metadata   ChunkMetadata `json:"metadata"`
	Similarity float32       `json:"similarity,omitempty"`
	// label used in the prompt in place of the numeric image number (web URLs)
	ImageLabel string `json:"-"`
}

// MarshalBBox encodes a bbox for string-only metadata maps.
func MarshalBBox(b BBox) string {
	raw, _ := json.Marshal(b)
	return string(raw)
}

// UnmarshalBBox is the inverse of MarshalBBox.
func UnmarshalBBox(s string) (*BBox, error) {
	if s == "" {
		return nil, nil
	}
	var b BBox
	if err := json.Unmarshal([]byte(s), &b); err != nil {
		return nil, fmt.Errorf("failed to decode bbox %q: %w", s, err)
	}
	return &b, nil
}

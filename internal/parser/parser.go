// Package parser rebuilds reading order from OCR tokens and cuts the page
// text into overlapping chunks, each tied to the rectangle of the tokens it
// was built from.
//
// Reading order is approximated by sorting tokens on (top, left). Multi-column
// and rotated layouts interleave; no column detection is attempted.
package parser

import (
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"

	"ocr-rag/internal/config"
	"ocr-rag/internal/models"
	"ocr-rag/internal/ocr"
)

const (
	defaultChunkSize    = 600
	defaultChunkOverlap = 200
)

var imageNumberRe = regexp.MustCompile(models.ImageNumberRegex)

// PageResult is everything derived from one OCR'd image.
type PageResult struct {
	Source string
	// tokens in reading order
	Tokens []models.Token
	Text   string
	Chunks []models.Chunk
}

type Parser struct {
	splitter textsplitter.TextSplitter
}

func NewParser(cfg *config.Config) *Parser {
	size, overlap := defaultChunkSize, defaultChunkOverlap
	if cfg != nil && cfg.RAG.ChunkSize > 0 {
		size = cfg.RAG.ChunkSize
		overlap = cfg.RAG.ChunkOverlap
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 3
	}
	return &Parser{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
			textsplitter.WithSeparators([]string{"\n\n", "\n", " ", ""}),
		),
	}
}

// ParsePage orders the page tokens, splits the joined text and attaches a
// bbox to every emitted chunk. A page without tokens yields no chunks.
func (p *Parser) ParsePage(imageName string, page ocr.Page) (*PageResult, error) {
	source := filepath.Base(imageName)
	tokens := SortTokens(ocr.DropEmpty(page.Tokens))
	result := &PageResult{Source: source, Tokens: tokens}
	if len(tokens) == 0 {
		return result, nil
	}

	result.Text = JoinTokens(tokens)
	pieces, err := p.splitter.SplitText(result.Text)
	if err != nil {
		return nil, fmt.Errorf("failed to split page text for %s: %w", source, err)
	}

	base := models.ChunkMetadata{
		Source:      source,
		ImageFile:   source,
		ImageNumber: ImageNumber(source),
		PageWidth:   page.Width,
		PageHeight:  page.Height,
	}
	result.Chunks = AssignTokens(pieces, tokens, base)
	return result, nil
}

// SortTokens returns a copy of tokens ordered top-to-bottom, left-to-right.
func SortTokens(tokens []models.Token) []models.Token {
	sorted := append([]models.Token(nil), tokens...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Top != sorted[j].Top {
			return sorted[i].Top < sorted[j].Top
		}
		return sorted[i].Left < sorted[j].Left
	})
	return sorted
}

// JoinTokens space-joins token texts.
func JoinTokens(tokens []models.Token) string {
	texts := make([]string, len(tokens))
	for i, t := range tokens {
		texts[i] = t.Text
	}
	return strings.Join(texts, " ")
}

// AssignTokens walks tokens once, handing consecutive tokens to each piece
// until the covered text is as long as the piece. Pieces that get no tokens
// are dropped; tokens left over after the last piece extend the final chunk,
// so every token lands in exactly one bbox.
func AssignTokens(pieces []string, tokens []models.Token, base models.ChunkMetadata) []models.Chunk {
	var chunks []models.Chunk
	idx := 0
	for _, piece := range pieces {
		start := idx
		target := utf8.RuneCountInString(piece)
		covered := 0
		for idx < len(tokens) && covered < target {
			covered += utf8.RuneCountInString(tokens[idx].Text) + 1
			idx++
		}
		if idx == start {
			continue
		}
		meta := base
		box := BoundingBox(tokens[start:idx])
		meta.BBox = &box
		chunks = append(chunks, models.Chunk{
			Content:    piece,
			Metadata:   meta,
			TokenStart: start,
			TokenEnd:   idx,
		})
	}

	if n := len(chunks); n > 0 && idx < len(tokens) {
		last := &chunks[n-1]
		last.TokenEnd = len(tokens)
		box := BoundingBox(tokens[last.TokenStart:last.TokenEnd])
		last.Metadata.BBox = &box
	}
	return chunks
}

// BoundingBox is the smallest rectangle containing every token. tokens must
// not be empty.
func BoundingBox(tokens []models.Token) models.BBox {
	box := models.BBox{tokens[0].Left, tokens[0].Top, tokens[0].Right(), tokens[0].Bottom()}
	for _, t := range tokens[1:] {
		box[0] = min(box[0], t.Left)
		box[1] = min(box[1], t.Top)
		box[2] = max(box[2], t.Right())
		box[3] = max(box[3], t.Bottom())
	}
	return box
}

// ImageNumber parses the _img<N> sequence number out of a file name.
func ImageNumber(name string) *int {
	m := imageNumberRe.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &n
}

// CoordinatesTSV renders the ordered token table written next to each image.
func CoordinatesTSV(tokens []models.Token) []byte {
	var buf bytes.Buffer
	buf.WriteString("text\tleft\ttop\twidth\theight\n")
	for _, t := range tokens {
		fmt.Fprintf(&buf, "%s\t%d\t%d\t%d\t%d\n", t.Text, t.Left, t.Top, t.Width, t.Height)
	}
	return buf.Bytes()
}

// CoordinatesName is the artifact name for an image's token table.
func CoordinatesName(imageName string) string {
	base := filepath.Base(imageName)
	return strings.TrimSuffix(base, filepath.Ext(base)) + "_coordinates.txt"
}

// Package websearch queries the Tavily search API for fallback context.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ocr-rag/internal/config"
	"ocr-rag/internal/models"
)

// Result is one web hit.
type Result struct {
	URL     string  `json:"url"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type TavilyClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewTavilyClient(cfg *config.WebSearchConfig) *TavilyClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TavilyClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type searchRequest struct {
	Query          string   `json:"query"`
	MaxResults     int      `json:"max_results"`
	ExcludeDomains []string `json:"exclude_domains,omitempty"`
	SearchDepth    string   `json:"search_depth"`
}

// Search returns at most maxResults hits. Callers decide how to surface
// errors; nothing here retries.
func (c *TavilyClient) Search(ctx context.Context, query string, excludedDomains []string, maxResults int) ([]Result, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("tavily api key is not configured")
	}
	if maxResults <= 0 {
		maxResults = 3
	}

	body, err := json.Marshal(searchRequest{
		Query:          query,
		MaxResults:     maxResults,
		ExcludeDomains: excludedDomains,
		SearchDepth:    "basic",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search request failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read search response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("search response status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed struct {
		Results []Result `json:"results"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse search json failed: %w", err)
	}
	if len(parsed.Results) > maxResults {
		parsed.Results = parsed.Results[:maxResults]
	}
	return parsed.Results, nil
}

// ToDocuments shapes hits like retrieved chunks so synthesis can consume
// them. The URL stands in for both the image label and the file name.
func ToDocuments(results []Result) []models.Document {
	docs := make([]models.Document, 0, len(results))
	for _, r := range results {
		docs = append(docs, models.Document{
			Content:    r.Content,
			Similarity: float32(r.Score),
			ImageLabel: r.URL,
			Metadata: models.ChunkMetadata{
				Source:    models.WebSourceLabel,
				ImageFile: r.URL,
			},
		})
	}
	return docs
}

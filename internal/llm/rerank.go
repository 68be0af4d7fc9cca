package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// RerankClient scores (query, document) pairs with a cross-encoder served by a
// llama.cpp-compatible /v1/rerank endpoint.
type RerankClient struct {
	BaseURL string
	APIKey  string
	Model   string
	client  *http.Client
}

// NewRerankClient creates a new rerank client.
func NewRerankClient(baseURL, apiKey, model string) *RerankClient {
	return &RerankClient{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		client:  newHTTPClient(),
	}
}

// RerankRequest represents the request payload for the rerank API.
type RerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

// RerankResult is the relevance of the document at Index.
type RerankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

// RerankResponse represents the response from the rerank API.
type RerankResponse struct {
	Results []RerankResult `json:"results"`
}

// Score returns one relevance score per passage, in passage order.
func (c *RerankClient) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return []float64{}, nil
	}

	body, err := json.Marshal(RerankRequest{
		Model:     c.Model,
		Query:     query,
		Documents: passages,
		TopN:      len(passages),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/v1/rerank", c.BaseURL), bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("bad status %d: %s", resp.StatusCode, string(raw))
	}

	var rerankResp RerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&rerankResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(rerankResp.Results) != len(passages) {
		return nil, fmt.Errorf("expected %d scores, got %d", len(passages), len(rerankResp.Results))
	}

	scores := make([]float64, len(passages))
	seen := make([]bool, len(passages))
	for _, r := range rerankResp.Results {
		if r.Index < 0 || r.Index >= len(passages) || seen[r.Index] {
			return nil, fmt.Errorf("invalid result index %d", r.Index)
		}
		seen[r.Index] = true
		scores[r.Index] = r.RelevanceScore
	}
	return scores, nil
}

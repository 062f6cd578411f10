// Package knowledge provides a client for the internal knowledge base
// hybrid search service.
package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultTimeout = 15 * time.Second

// Client performs hybrid searches against the knowledge base service.
type Client interface {
	Search(ctx context.Context, req SearchRequest) ([]Chunk, error)
}

// SearchRequest is the request body for POST /internal/search/hybrid.
type SearchRequest struct {
	Query           string `json:"query"`
	KnowledgeBaseID string `json:"knowledge_base_id"`
	TenantID        string `json:"tenant_id"`
	TopK            int    `json:"top_k"`
}

// Chunk is a single retrieved knowledge base passage.
type Chunk struct {
	ID              string  `json:"id"`
	KnowledgeBaseID string  `json:"knowledge_base_id"`
	DocumentName    string  `json:"document_name,omitempty"`
	Content         string  `json:"content"`
	Score           float64 `json:"score"`
}

type searchResponse struct {
	Chunks []Chunk `json:"chunks"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the service base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit throttles searches to rps requests per second. Zero or
// negative disables throttling.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

type httpClient struct {
	baseURL string
	secret  string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a knowledge search client. Requests authenticate with
// the shared internal secret header.
func NewClient(baseURL, secret string, opts ...Option) Client {
	c := &httpClient{
		baseURL: baseURL,
		secret:  secret,
		limiter: rate.NewLimiter(10, 10),
		http: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, req SearchRequest) ([]Chunk, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "knowledge: rate limit wait")
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "knowledge: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/internal/search/hybrid", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "knowledge: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Internal-Secret", c.secret)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "knowledge: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "knowledge: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("knowledge: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result searchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "knowledge: unmarshal response")
	}

	return result.Chunks, nil
}

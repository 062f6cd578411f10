// Package adminapi provides a client for the tenant administration
// service's internal endpoints.
package adminapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

const defaultTimeout = 10 * time.Second

// Client fetches tenant-scoped settings from the admin service.
type Client interface {
	// FetchPipelineConfig returns the raw pipeline configuration document
	// for a tenant. Callers own decoding and fallback behavior.
	FetchPipelineConfig(ctx context.Context, tenantID string) (json.RawMessage, error)
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

type httpClient struct {
	baseURL string
	secret  string
	http    *http.Client
}

// NewClient creates an admin API client authenticating with the shared
// internal secret header.
func NewClient(baseURL, secret string, opts ...Option) Client {
	c := &httpClient{
		baseURL: baseURL,
		secret:  secret,
		http: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) FetchPipelineConfig(ctx context.Context, tenantID string) (json.RawMessage, error) {
	url := fmt.Sprintf("%s/internal/tenants/%s/pipeline-config", c.baseURL, tenantID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "adminapi: create request")
	}
	httpReq.Header.Set("X-Internal-Secret", c.secret)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "adminapi: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "adminapi: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("adminapi: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	if !json.Valid(respBody) {
		return nil, eris.New("adminapi: response is not valid JSON")
	}

	return respBody, nil
}

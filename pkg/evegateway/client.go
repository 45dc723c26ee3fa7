// Package evegateway is the typed client for the EVE upstream API. It owns
// batching, retries, the error budget and the two cache tiers; callers work
// with the capability interfaces rather than the concrete client.
package evegateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go-battlewatch/pkg/config"
	"go-battlewatch/pkg/database"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	nameCacheTTL      = 24 * time.Hour
	nameLocalCacheTTL = 5 * time.Minute
	entityCacheTTL    = time.Hour
)

// Client is the upstream API client. It implements NameResolver,
// EntityFetcher and KillmailFetcher.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	budget     *ErrorBudget
	names      Cache
	entities   Cache
}

var (
	_ NameResolver    = (*Client)(nil)
	_ EntityFetcher   = (*Client)(nil)
	_ KillmailFetcher = (*Client)(nil)
)

// NewClient creates the upstream client with both cache tiers wired. redis may
// be nil, in which case only the in-process tier is used.
func NewClient(redis *database.Redis) *Client {
	transport := http.DefaultTransport
	if config.GetBoolEnv("ENABLE_TELEMETRY", false) {
		transport = otelhttp.NewTransport(transport)
	}

	names := Cache(NewMemoryCache())
	entities := Cache(NewMemoryCache())
	if redis != nil {
		names = NewTieredCache(NewRedisCache(redis, "esi:names"), NewMemoryCache(), nameLocalCacheTTL)
		entities = NewTieredCache(NewRedisCache(redis, "esi:entities"), NewMemoryCache(), nameLocalCacheTTL)
	}

	return &Client{
		baseURL:   config.GetEnv("ESI_BASE_URL", "https://esi.evetech.net/latest"),
		userAgent: config.GetEnv("ESI_USER_AGENT", "battlewatch/1.0"),
		httpClient: &http.Client{
			Timeout:   config.GetDurationEnv("ESI_TIMEOUT", 10*time.Second),
			Transport: transport,
		},
		budget:   NewErrorBudget(),
		names:    names,
		entities: entities,
	}
}

// Budget exposes the error budget for status reporting.
func (c *Client) Budget() *ErrorBudget {
	return c.budget
}

func bytesReader(b []byte) io.ReadCloser {
	return io.NopCloser(bytes.NewReader(b))
}

// getJSON performs a GET against path and decodes the 2xx body into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.doWithRetry(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := statusToError(resp.StatusCode); err != nil {
		io.Copy(io.Discard, resp.Body)
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// postJSON performs a POST with a JSON body and decodes the 2xx body into out.
func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytesReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return bytesReader(payload), nil
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.doWithRetry(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := statusToError(resp.StatusCode); err != nil {
		io.Copy(io.Discard, resp.Body)
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

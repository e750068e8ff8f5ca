package linkscout

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const userAgent = "Mozilla/5.0 (compatible; LinkScout/1.0)"

// FetcherConfig contains page fetcher configuration
type FetcherConfig struct {
	HTTPTimeout   time.Duration
	MaxBodyBytes  int64 // Larger documents are truncated
	MaxConcurrent int   // Concurrent fetches allowed
}

// DefaultFetcherConfig returns default fetcher configuration
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		HTTPTimeout:   30 * time.Second,
		MaxBodyBytes:  5 * 1024 * 1024, // 5MB
		MaxConcurrent: 4,
	}
}

// FetchedPage is a downloaded HTML document and its extracted content
type FetchedPage struct {
	PageContent
	HTML []byte
}

// Fetcher downloads project pages so their text can be mined
type Fetcher struct {
	config     FetcherConfig
	httpClient *http.Client
	slots      chan struct{}
}

// NewFetcher creates a Fetcher whose requests carry trace context
func NewFetcher(config FetcherConfig) *Fetcher {
	defaults := DefaultFetcherConfig()
	if config.HTTPTimeout <= 0 {
		config.HTTPTimeout = defaults.HTTPTimeout
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = defaults.MaxBodyBytes
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = defaults.MaxConcurrent
	}

	return &Fetcher{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.HTTPTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		slots: make(chan struct{}, config.MaxConcurrent),
	}
}

// Fetch downloads an http(s) URL and extracts its title and text
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) (*FetchedPage, error) {
	parsedURL, err := url.Parse(targetURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("URL must be http or https")
	}

	select {
	case f.slots <- struct{}{}:
		defer func() { <-f.slots }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	content, err := ExtractContent(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	return &FetchedPage{PageContent: *content, HTML: body}, nil
}

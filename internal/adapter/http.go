package adapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/feral-file/ff-storefront-indexer/internal/logger"
)

// HTTPResponse is a fully read HTTP response
type HTTPResponse struct {
	StatusCode int
	Header     http.Header
	// FinalURL is the URL after following redirects
	FinalURL *url.URL
	Body     []byte
	// Truncated reports whether Body was cut at the configured limit
	Truncated bool
}

// HTTPClient defines an interface for HTTP client operations to enable mocking
//
//go:generate mockgen -source=http.go -destination=../mocks/http.go -package=mocks -mock_names=HTTPClient=MockHTTPClient
type HTTPClient interface {
	// Get performs a GET request and returns the response read up to the body limit.
	// Non-2xx statuses are returned as responses, not errors. A 429 is retried with
	// backoff and returned as a response once retries are exhausted.
	Get(ctx context.Context, url string, headers map[string]string) (*HTTPResponse, error)
}

// HTTPClientConfig holds HTTP client configuration
type HTTPClientConfig struct {
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
	// MaxRateLimitWait bounds the total time spent retrying 429 responses
	MaxRateLimitWait time.Duration
}

// RealHTTPClient implements HTTPClient using the standard http package
type RealHTTPClient struct {
	client *http.Client
	config HTTPClientConfig
}

// NewHTTPClient creates a new real HTTP client
func NewHTTPClient(cfg HTTPClientConfig) HTTPClient {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 2 * 1024 * 1024
	}
	if cfg.MaxRateLimitWait <= 0 {
		cfg.MaxRateLimitWait = 10 * time.Second
	}

	return &RealHTTPClient{
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		config: cfg,
	}
}

// Get performs a GET request with exponential backoff retry for rate limiting
func (c *RealHTTPClient) Get(ctx context.Context, rawURL string, headers map[string]string) (*HTTPResponse, error) {
	var result *HTTPResponse

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		if c.config.UserAgent != "" {
			req.Header.Set("User-Agent", c.config.UserAgent)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			// Transport failures are surfaced to the caller, probes decide how to record them
			return backoff.Permanent(fmt.Errorf("failed to perform request: %w", err))
		}
		defer func() {
			if err := resp.Body.Close(); err != nil {
				logger.Warn("failed to close response body", zap.Error(err), zap.String("url", rawURL))
			}
		}()

		body, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBodyBytes+1))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to read response body: %w", err))
		}

		truncated := int64(len(body)) > c.config.MaxBodyBytes
		if truncated {
			body = body[:c.config.MaxBodyBytes]
		}

		result = &HTTPResponse{
			StatusCode: resp.StatusCode,
			Header:     resp.Header.Clone(),
			FinalURL:   resp.Request.URL,
			Body:       body,
			Truncated:  truncated,
		}

		// Handle rate limiting - retry with backoff
		if resp.StatusCode == http.StatusTooManyRequests {
			if wait := retryAfter(resp.Header); wait > c.config.MaxRateLimitWait {
				return backoff.Permanent(errRateLimited)
			}
			logger.Debug("rate limited, retrying with backoff", zap.String("url", rawURL))
			return errRateLimited
		}

		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = c.config.MaxRateLimitWait
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.5

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		if errors.Is(err, errRateLimited) && result != nil {
			return result, nil
		}
		return nil, err
	}

	return result, nil
}

var errRateLimited = errors.New("rate limited (429)")

// retryAfter parses a Retry-After header given in seconds
func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// IsTransportError reports whether err was caused by the network rather than the remote
// application, e.g. timeouts, DNS resolution, TLS handshake or connection failures
func IsTransportError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

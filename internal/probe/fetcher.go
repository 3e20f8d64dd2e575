package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/feral-file/ff-storefront-indexer/internal/adapter"
	"github.com/feral-file/ff-storefront-indexer/internal/domain"
	"github.com/feral-file/ff-storefront-indexer/internal/logger"
	"github.com/feral-file/ff-storefront-indexer/internal/metrics"
	"github.com/feral-file/ff-storefront-indexer/internal/ratelimit"
)

const (
	kindPage     = "page"
	kindProducts = "products"
)

// Fetcher fetches storefront evidence through the shared HTTP client and per-host limiter.
// Transport failures are returned wrapped in domain.ErrProbeFailure; HTTP error statuses
// are returned as results so callers can treat them as observations.
//
//go:generate mockgen -source=fetcher.go -destination=../mocks/fetcher.go -package=mocks -mock_names=Fetcher=MockFetcher
type Fetcher interface {
	// FetchPage fetches an HTML page
	FetchPage(ctx context.Context, pageURL string) (*Page, error)

	// FetchProducts fetches one page of the storefront's public products endpoint
	FetchProducts(ctx context.Context, storeURL string, limit int, page int) (*ProductsPage, error)
}

type fetcher struct {
	http    adapter.HTTPClient
	limiter ratelimit.Limiter
}

// NewFetcher creates a new fetcher. limiter may be nil.
func NewFetcher(httpClient adapter.HTTPClient, limiter ratelimit.Limiter) Fetcher {
	return &fetcher{
		http:    httpClient,
		limiter: limiter,
	}
}

// FetchPage fetches an HTML page
func (f *fetcher) FetchPage(ctx context.Context, pageURL string) (*Page, error) {
	resp, err := f.get(ctx, kindPage, pageURL, map[string]string{"Accept": "text/html,application/xhtml+xml"})
	if err != nil {
		return nil, err
	}

	mt := detectMIME(resp.Header, resp.Body)

	var doc *goquery.Document
	if (mt == "text/html" || mt == "application/xhtml+xml") && len(resp.Body) > 0 {
		doc, err = goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
		if err != nil {
			logger.DebugCtx(ctx, "Failed to parse HTML", zap.String("url", pageURL), zap.Error(err))
			doc = nil
		}
	}

	return NewPage(resp.FinalURL, resp.StatusCode, resp.Header, resp.Body, mt, doc), nil
}

// FetchProducts fetches one page of /products.json
func (f *fetcher) FetchProducts(ctx context.Context, storeURL string, limit int, page int) (*ProductsPage, error) {
	endpoint, err := ProductsURL(storeURL, limit, page)
	if err != nil {
		return nil, err
	}

	resp, err := f.get(ctx, kindProducts, endpoint, map[string]string{"Accept": "application/json"})
	if err != nil {
		return nil, err
	}

	result := &ProductsPage{StatusCode: resp.StatusCode}
	if resp.StatusCode != http.StatusOK || resp.Truncated {
		return result, nil
	}

	mt := detectMIME(resp.Header, resp.Body)
	if mt != "application/json" && !mimetype.Detect(resp.Body).Is("application/json") {
		return result, nil
	}

	var payload struct {
		Products *[]Product `json:"products"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		// A malformed answer says nothing about whether the endpoint exists
		return nil, fmt.Errorf("%w: decode products: %s", domain.ErrProbeFailure, err.Error())
	}

	result.IsJSON = true
	if payload.Products != nil {
		result.HasProducts = true
		result.Products = *payload.Products
	}
	return result, nil
}

func (f *fetcher) get(ctx context.Context, kind string, rawURL string, headers map[string]string) (*adapter.HTTPResponse, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidInput, err.Error())
	}

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, u.Hostname()); err != nil {
			metrics.ProbeRequests.WithLabelValues(kind, "throttled").Inc()
			return nil, fmt.Errorf("%w: rate limiter: %s", domain.ErrProbeFailure, err.Error())
		}
	}

	resp, err := f.http.Get(ctx, rawURL, headers)
	if err != nil {
		result := "error"
		if adapter.IsTransportError(err) {
			result = "transport_error"
		}
		metrics.ProbeRequests.WithLabelValues(kind, result).Inc()
		return nil, fmt.Errorf("%w: %s", domain.ErrProbeFailure, err.Error())
	}

	metrics.ProbeRequests.WithLabelValues(kind, strconv.Itoa(resp.StatusCode)).Inc()
	return resp, nil
}

// ProductsURL builds the products endpoint URL for a storefront
func ProductsURL(storeURL string, limit int, page int) (string, error) {
	u, err := url.Parse(storeURL)
	if err != nil {
		return "", fmt.Errorf("%w: %s", domain.ErrInvalidInput, err.Error())
	}

	endpoint := &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/products.json"}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if page > 1 {
		q.Set("page", strconv.Itoa(page))
	}
	endpoint.RawQuery = q.Encode()
	return endpoint.String(), nil
}

// detectMIME returns the media type from Content-Type, sniffing the body when the header is missing or generic
func detectMIME(h http.Header, body []byte) string {
	if ct := h.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil && mt != "application/octet-stream" && mt != "text/plain" {
			return strings.ToLower(mt)
		}
	}
	if len(body) == 0 {
		return ""
	}
	mt, _, _ := mime.ParseMediaType(mimetype.Detect(body).String())
	return mt
}

package probe_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-storefront-indexer/internal/adapter"
	"github.com/feral-file/ff-storefront-indexer/internal/domain"
	"github.com/feral-file/ff-storefront-indexer/internal/probe"
)

const homepageHTML = `<!doctype html>
<html><head><title>Shop</title><script>var Shopify = {};</script><style>body{}</style></head>
<body><h1>Welcome   to our
shop</h1>
<script>console.log("hidden")</script>
<p>Free shipping</p></body></html>`

func newFetcher() probe.Fetcher {
	return probe.NewFetcher(adapter.NewHTTPClient(adapter.HTTPClientConfig{
		Timeout:          2 * time.Second,
		UserAgent:        "probe-test",
		MaxRateLimitWait: time.Millisecond,
	}), nil)
}

func TestFetchPage_HTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "probe-test", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("X-ShopId", "42")
		_, _ = w.Write([]byte(homepageHTML))
	}))
	defer srv.Close()

	page, err := newFetcher().FetchPage(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.True(t, page.OK())
	assert.True(t, page.IsHTML())
	assert.Equal(t, "42", page.Header.Get("X-ShopId"))
	require.NotNil(t, page.Doc)
	assert.Equal(t, "Welcome to our shop Free shipping", page.Text())
	assert.Contains(t, page.LowerHTML(), "var shopify")
}

func TestFetchPage_SniffsMissingContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Content-Type"] = nil
		_, _ = w.Write([]byte(homepageHTML))
	}))
	defer srv.Close()

	page, err := newFetcher().FetchPage(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "text/html", page.MIME)
	assert.NotNil(t, page.Doc)
}

func TestFetchPage_RateLimitedIsAResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	page, err := newFetcher().FetchPage(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.True(t, page.RateLimited())
	assert.False(t, page.OK())
}

func TestFetchPage_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	page, err := newFetcher().FetchPage(context.Background(), url)
	assert.Nil(t, page)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrProbeFailure))
}

func TestFetchProducts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products.json", r.URL.Path)
		assert.Equal(t, "250", r.URL.Query().Get("limit"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"products":[
			{"id":1,"title":"Ebook","vendor":"Acme","tags":["digital","guide"],"updated_at":"2026-03-01T10:00:00Z","variants":[{"requires_shipping":false}]},
			{"id":2,"title":"Mug","vendor":"Acme","tags":"gift, kitchen","published_at":"2026-04-01T10:00:00Z","variants":[{"requires_shipping":true}]}
		]}`))
	}))
	defer srv.Close()

	page, err := newFetcher().FetchProducts(context.Background(), srv.URL, 250, 2)
	require.NoError(t, err)

	assert.True(t, page.IsJSON)
	assert.True(t, page.HasProducts)
	require.Len(t, page.Products, 2)
	assert.Equal(t, probe.Tags{"digital", "guide"}, page.Products[0].Tags)
	assert.Equal(t, probe.Tags{"gift", "kitchen"}, page.Products[1].Tags)
	assert.True(t, page.Products[0].Digital())
	assert.False(t, page.Products[1].Digital())
	require.NotNil(t, page.Products[1].LatestActivity())
	assert.Equal(t, 2026, page.Products[1].LatestActivity().Year())
}

func TestFetchProducts_NotJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>Not found</body></html>"))
	}))
	defer srv.Close()

	page, err := newFetcher().FetchProducts(context.Background(), srv.URL, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.False(t, page.IsJSON)
	assert.False(t, page.HasProducts)
}

func TestFetchProducts_JSONWithoutProducts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":"nope"}`))
	}))
	defer srv.Close()

	page, err := newFetcher().FetchProducts(context.Background(), srv.URL, 1, 1)
	require.NoError(t, err)
	assert.True(t, page.IsJSON)
	assert.False(t, page.HasProducts)
}

func TestFetchProducts_MalformedJSONFails(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"mistyped field", `{"products":[{"id":"not-a-number","title":"Mug"}]}`},
		{"truncated document", `{"products":[{"id":1,"title":"Mug"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			page, err := newFetcher().FetchProducts(context.Background(), srv.URL, 1, 1)
			require.Error(t, err)
			assert.Nil(t, page)
			assert.True(t, domain.IsProbeFailure(err))
			assert.Contains(t, err.Error(), "decode products")
		})
	}
}

func TestProductsURL(t *testing.T) {
	u, err := probe.ProductsURL("https://shop.example.com/collections/all", 50, 1)
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example.com/products.json?limit=50", u)

	u, err = probe.ProductsURL("https://shop.example.com", 250, 3)
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example.com/products.json?limit=250&page=3", u)
}

func TestEvidence_FetchesOnce(t *testing.T) {
	var pageHits, productHits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/products.json" {
			productHits.Add(1)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"products":[]}`))
			return
		}
		pageHits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(homepageHTML))
	}))
	defer srv.Close()

	ev := probe.NewEvidence(newFetcher(), srv.URL, 1)
	for range 3 {
		_, err := ev.Homepage(context.Background())
		require.NoError(t, err)
		_, err = ev.Products(context.Background())
		require.NoError(t, err)
	}

	assert.Equal(t, int32(1), pageHits.Load())
	assert.Equal(t, int32(1), productHits.Load())
}

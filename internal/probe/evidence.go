package probe

import (
	"context"
	"sync"
)

// Evidence memoizes the storefront homepage and a products sample so that
// independent signals evaluated concurrently share one request each
type Evidence struct {
	fetcher       Fetcher
	storeURL      string
	productsLimit int

	pageOnce sync.Once
	page     *Page
	pageErr  error

	productsOnce sync.Once
	products     *ProductsPage
	productsErr  error
}

// NewEvidence creates an evidence memo for a storefront
func NewEvidence(fetcher Fetcher, storeURL string, productsLimit int) *Evidence {
	return &Evidence{
		fetcher:       fetcher,
		storeURL:      storeURL,
		productsLimit: productsLimit,
	}
}

// StoreURL returns the storefront URL
func (e *Evidence) StoreURL() string {
	return e.storeURL
}

// Homepage returns the storefront homepage, fetching it on first use
func (e *Evidence) Homepage(ctx context.Context) (*Page, error) {
	e.pageOnce.Do(func() {
		e.page, e.pageErr = e.fetcher.FetchPage(ctx, e.storeURL)
	})
	return e.page, e.pageErr
}

// Products returns the first page of the products endpoint, fetching it on first use
func (e *Evidence) Products(ctx context.Context) (*ProductsPage, error) {
	e.productsOnce.Do(func() {
		e.products, e.productsErr = e.fetcher.FetchProducts(ctx, e.storeURL, e.productsLimit, 1)
	})
	return e.products, e.productsErr
}

package probe

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Page is a fetched storefront page
type Page struct {
	URL        *url.URL
	StatusCode int
	Header     http.Header
	Body       []byte
	MIME       string
	// Doc is set when the body was parsed as HTML
	Doc *goquery.Document

	lowerHTML string
	text      string
}

// RateLimited reports whether the storefront answered 429
func (p *Page) RateLimited() bool {
	return p.StatusCode == http.StatusTooManyRequests
}

// OK reports whether the status is 2xx
func (p *Page) OK() bool {
	return p.StatusCode >= 200 && p.StatusCode < 300
}

// IsHTML reports whether the body is HTML
func (p *Page) IsHTML() bool {
	return p.MIME == "text/html" || p.MIME == "application/xhtml+xml"
}

// LowerHTML returns the raw body lowercased
func (p *Page) LowerHTML() string {
	return p.lowerHTML
}

// Text returns the visible text of the page with whitespace collapsed
func (p *Page) Text() string {
	return p.text
}

// index precomputes derived views so a page can be shared by concurrent signals
func (p *Page) index() {
	p.lowerHTML = strings.ToLower(string(p.Body))
	if p.Doc == nil {
		return
	}

	body := p.Doc.Find("body").Clone()
	body.Find("script, style, noscript, template, svg").Remove()
	p.text = strings.Join(strings.Fields(body.Text()), " ")
}

// NewPage builds a page from raw parts; used by fetchers and tests
func NewPage(u *url.URL, statusCode int, header http.Header, body []byte, mimeType string, doc *goquery.Document) *Page {
	p := &Page{
		URL:        u,
		StatusCode: statusCode,
		Header:     header,
		Body:       body,
		MIME:       mimeType,
		Doc:        doc,
	}
	p.index()
	return p
}

// Path returns the final URL path after redirects
func (p *Page) Path() string {
	if p.URL == nil {
		return ""
	}
	return p.URL.Path
}

// ProductsPage is one page of the public products endpoint
type ProductsPage struct {
	StatusCode int
	// IsJSON reports whether the body was valid JSON
	IsJSON bool
	// HasProducts reports whether the JSON carried a products array
	HasProducts bool
	Products    []Product
}

// RateLimited reports whether the storefront answered 429
func (p *ProductsPage) RateLimited() bool {
	return p.StatusCode == http.StatusTooManyRequests
}

// Product is the subset of a storefront product used for classification and health
type Product struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Handle      string     `json:"handle"`
	Vendor      string     `json:"vendor"`
	ProductType string     `json:"product_type"`
	Tags        Tags       `json:"tags"`
	CreatedAt   *time.Time `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
	PublishedAt *time.Time `json:"published_at"`
	Variants    []Variant  `json:"variants"`
}

// Variant is a product variant
type Variant struct {
	RequiresShipping *bool `json:"requires_shipping"`
}

// Digital reports whether no variant of the product requires shipping
func (p Product) Digital() bool {
	if len(p.Variants) == 0 {
		return false
	}
	for _, v := range p.Variants {
		if v.RequiresShipping == nil || *v.RequiresShipping {
			return false
		}
	}
	return true
}

// LatestActivity returns the most recent of the product's timestamps
func (p Product) LatestActivity() *time.Time {
	var latest *time.Time
	for _, t := range []*time.Time{p.CreatedAt, p.UpdatedAt, p.PublishedAt} {
		if t != nil && (latest == nil || t.After(*latest)) {
			latest = t
		}
	}
	return latest
}

// Tags accepts either a JSON array of strings or a comma separated string
type Tags []string

// UnmarshalJSON implements json.Unmarshaler
func (t *Tags) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*t = list
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Unknown shapes carry no tags
		*t = nil
		return nil //nolint:nilerr
	}

	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*t = out
	return nil
}

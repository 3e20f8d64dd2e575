package registry_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-storefront-indexer/internal/domain"
	"github.com/feral-file/ff-storefront-indexer/internal/registry"
)

func TestLoadPlatform_Default(t *testing.T) {
	p, err := registry.LoadPlatform("")
	require.NoError(t, err)

	assert.Equal(t, "shopify", p.Name)
	assert.Equal(t, 0.4, p.Weight(registry.SignalResourceEndpoint))
	assert.Equal(t, 0.3, p.Weight(registry.SignalPlatformHeader))
	assert.Equal(t, 0.2, p.Weight(registry.SignalAssetDomain))
	assert.Equal(t, 0.1, p.Weight(registry.SignalHostnamePattern))
	assert.Contains(t, p.AssetMarkers, "cdn.shopify.com")
	assert.Contains(t, p.HostnameSuffixes, ".myshopify.com")
	assert.Contains(t, p.Headers, registry.HeaderMarker{Name: "powered-by", Contains: "shopify"})
	assert.Contains(t, p.ClosedMarkers, "store is unavailable")
	assert.NotContains(t, p.ClosedMarkers, "closing down")
	assert.Contains(t, p.PasswordSelectors, `form[action*="/password"]`)
	assert.Equal(t, []string{"/password"}, p.PasswordPaths)
}

func TestParsePlatform(t *testing.T) {
	tests := []struct {
		name        string
		yaml        string
		expectedErr string
	}{
		{
			name: "normalizes case",
			yaml: `
name: custom
signals:
  resource_endpoint: {weight: 0.5}
  platform_header: {weight: 0.2}
  asset_domain: {weight: 0.2}
  hostname_pattern: {weight: 0.1}
headers:
  - name: X-Powered-By
    contains: ACME
asset_markers: [CDN.Acme.IO]
`,
		},
		{
			name:        "missing name",
			yaml:        `signals: {}`,
			expectedErr: "platform name is required",
		},
		{
			name: "missing weight",
			yaml: `
name: custom
signals:
  resource_endpoint: {weight: 0.5}
`,
			expectedErr: "weight must be positive",
		},
		{
			name: "unknown signal",
			yaml: `
name: custom
signals:
  resource_endpoint: {weight: 0.5}
  platform_header: {weight: 0.2}
  asset_domain: {weight: 0.2}
  hostname_pattern: {weight: 0.1}
  favicon: {weight: 0.1}
`,
			expectedErr: "unknown signal favicon",
		},
		{
			name:        "invalid yaml",
			yaml:        "name: [",
			expectedErr: "failed to parse platform YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := registry.ParsePlatform([]byte(tt.yaml))
			if tt.expectedErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []registry.HeaderMarker{{Name: "x-powered-by", Contains: "acme"}}, p.Headers)
			assert.Equal(t, []string{"cdn.acme.io"}, p.AssetMarkers)
		})
	}
}

func TestLoadPlatform_File(t *testing.T) {
	_, err := registry.LoadPlatform(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read platform file")
}

func TestLoadTaxonomy_Default(t *testing.T) {
	tx, err := registry.LoadTaxonomy("")
	require.NoError(t, err)

	for _, c := range domain.Taxonomy {
		assert.NotEmpty(t, tx.Category(c).Cues, "category %s has no cues", c)
	}

	rules := tx.Category(domain.CategoryWholesaleB2B).Rules
	require.Len(t, rules, 1)

	matched, err := rules[0].Eval(registry.RuleEnv{Tags: []string{"retail", "wholesale-only"}})
	require.NoError(t, err)
	assert.True(t, matched)

	matched, err = rules[0].Eval(registry.RuleEnv{Tags: []string{"retail"}})
	require.NoError(t, err)
	assert.False(t, matched)

	assert.Contains(t, tx.BehavioralTags[domain.BehavioralTagRunsPaidAds], "connect.facebook.net")
	assert.Contains(t, tx.BehavioralTags[domain.BehavioralTagReviewsApp], "judge.me")
	assert.Contains(t, tx.BehavioralTags[domain.BehavioralTagMultiCurrency], `name="currency_code"`)
}

func TestParseTaxonomy(t *testing.T) {
	tests := []struct {
		name        string
		yaml        string
		expectedErr string
	}{
		{
			name: "unknown category",
			yaml: `
categories:
  crypto:
    cues: []
`,
			expectedErr: `unknown category "crypto"`,
		},
		{
			name: "bad cue source",
			yaml: `
categories:
  subscription:
    cues:
      - {name: a, weight: 0.5, source: headers, any: [x]}
`,
			expectedErr: "unknown cue source",
		},
		{
			name: "weight out of range",
			yaml: `
categories:
  subscription:
    cues:
      - {name: a, weight: 1.5, source: text, any: [x]}
`,
			expectedErr: "weight must be in (0, 1]",
		},
		{
			name: "empty keywords",
			yaml: `
categories:
  subscription:
    cues:
      - {name: a, weight: 0.5, source: text}
`,
			expectedErr: "cue has no keywords",
		},
		{
			name: "non boolean rule",
			yaml: `
categories:
  subscription:
    rules:
      - {name: r, weight: 0.5, expression: "ProductCount + 1"}
`,
			expectedErr: "failed to compile rule",
		},
		{
			name: "unknown identifier",
			yaml: `
categories:
  subscription:
    rules:
      - {name: r, weight: 0.5, expression: "Revenue > 10"}
`,
			expectedErr: "failed to compile rule",
		},
		{
			name: "valid rule",
			yaml: `
categories:
  digital_products:
    rules:
      - {name: mostly_digital, weight: 0.8, expression: "ProductCount >= 3 && DigitalRatio >= 0.9"}
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, err := registry.ParseTaxonomy([]byte(tt.yaml))
			if tt.expectedErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedErr)
				return
			}
			require.NoError(t, err)

			rule := tx.Category(domain.CategoryDigitalProducts).Rules[0]
			matched, err := rule.Eval(registry.RuleEnv{ProductCount: 4, DigitalRatio: 1})
			require.NoError(t, err)
			assert.True(t, matched)
		})
	}
}

func TestLoadTaxonomy_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taxonomy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
categories:
  subscription:
    cues:
      - {name: boxes, weight: 0.7, source: TEXT, any: [Monthly Box]}
`), 0600))

	_, err := registry.LoadTaxonomy(path)
	require.Error(t, err, "cue sources are case sensitive")

	require.NoError(t, os.WriteFile(path, []byte(`
categories:
  subscription:
    cues:
      - {name: boxes, weight: 0.7, source: text, any: [Monthly Box]}
`), 0600))

	tx, err := registry.LoadTaxonomy(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"monthly box"}, tx.Category(domain.CategorySubscription).Cues[0].Any)
	assert.Empty(t, tx.Category(domain.CategoryDropshipping).Cues)
}

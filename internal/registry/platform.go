package registry

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Verification signal names
const (
	SignalResourceEndpoint = "resource_endpoint"
	SignalPlatformHeader   = "platform_header"
	SignalAssetDomain      = "asset_domain"
	SignalHostnamePattern  = "hostname_pattern"
)

var platformSignalNames = []string{
	SignalResourceEndpoint,
	SignalPlatformHeader,
	SignalAssetDomain,
	SignalHostnamePattern,
}

//go:embed defaults/platform.yaml
var defaultPlatformYAML []byte

// Platform describes how a storefront platform is recognized
type Platform struct {
	Name             string                    `yaml:"name"`
	Signals          map[string]SignalSettings `yaml:"signals"`
	Headers          []HeaderMarker            `yaml:"headers"`
	AssetMarkers     []string                  `yaml:"asset_markers"`
	HostnameSuffixes []string                  `yaml:"hostname_suffixes"`

	// Health check markers
	ClosedMarkers     []string `yaml:"closed_markers"`
	PasswordSelectors []string `yaml:"password_selectors"`
	PasswordPaths     []string `yaml:"password_paths"`
}

// SignalSettings holds the configuration of a single verification signal
type SignalSettings struct {
	Weight float64 `yaml:"weight"`
}

// HeaderMarker matches a response header by name and optional value substring
type HeaderMarker struct {
	Name     string `yaml:"name"`
	Contains string `yaml:"contains"`
}

// Weight returns the configured weight of a signal
func (p *Platform) Weight(signal string) float64 {
	return p.Signals[signal].Weight
}

// LoadPlatform loads a platform definition from a YAML file, or the built-in
// definition when filePath is empty
func LoadPlatform(filePath string) (*Platform, error) {
	data := defaultPlatformYAML
	if filePath != "" {
		var err error
		data, err = os.ReadFile(filePath) //nolint:gosec,G304 // This should be a trusted file
		if err != nil {
			return nil, fmt.Errorf("failed to read platform file: %w", err)
		}
	}

	return ParsePlatform(data)
}

// ParsePlatform parses and validates a platform definition
func ParsePlatform(data []byte) (*Platform, error) {
	var p Platform
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse platform YAML: %w", err)
	}

	if p.Name == "" {
		return nil, fmt.Errorf("platform name is required")
	}
	for _, name := range platformSignalNames {
		if w := p.Weight(name); w <= 0 {
			return nil, fmt.Errorf("signal %s: weight must be positive", name)
		}
	}
	for name := range p.Signals {
		if !isPlatformSignal(name) {
			return nil, fmt.Errorf("unknown signal %s", name)
		}
	}

	for i := range p.Headers {
		p.Headers[i].Name = strings.ToLower(p.Headers[i].Name)
		p.Headers[i].Contains = strings.ToLower(p.Headers[i].Contains)
	}
	p.AssetMarkers = lowerAll(p.AssetMarkers)
	p.HostnameSuffixes = lowerAll(p.HostnameSuffixes)
	p.ClosedMarkers = lowerAll(p.ClosedMarkers)
	p.PasswordPaths = lowerAll(p.PasswordPaths)

	return &p, nil
}

func isPlatformSignal(name string) bool {
	for _, n := range platformSignalNames {
		if n == name {
			return true
		}
	}
	return false
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

package normalizer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/purell"

	"github.com/feral-file/ff-storefront-indexer/internal/domain"
)

// ErrInvalidURL is returned when a raw URL is not syntactically valid
var ErrInvalidURL = fmt.Errorf("%w: invalid URL", domain.ErrInvalidInput)

// Candidate is a normalized candidate URL
type Candidate struct {
	// URL is the canonical URL
	URL string
	// Host is the lowercased hostname without port
	Host string
	// DedupKey is the hex encoded SHA-256 of URL
	DedupKey string
}

const purellFlags = purell.FlagLowercaseScheme |
	purell.FlagLowercaseHost |
	purell.FlagUppercaseEscapes |
	purell.FlagDecodeUnnecessaryEscapes |
	purell.FlagRemoveDefaultPort |
	purell.FlagRemoveEmptyQuerySeparator |
	purell.FlagRemoveTrailingSlash |
	purell.FlagRemoveDotSegments |
	purell.FlagRemoveFragment |
	purell.FlagRemoveDuplicateSlashes

// trackingKeys are query keys stripped regardless of value
var trackingKeys = map[string]struct{}{
	"fbclid":  {},
	"gclid":   {},
	"dclid":   {},
	"gbraid":  {},
	"wbraid":  {},
	"msclkid": {},
	"mc_cid":  {},
	"mc_eid":  {},
	"igshid":  {},
	"yclid":   {},
	"_ga":     {},
	"_gl":     {},
	"ref":     {},
	"ref_src": {},
	"srsltid": {},
	"_pos":    {},
	"_sid":    {},
	"_ss":     {},
}

// IsTrackingKey reports whether a query key is a known tracking parameter
func IsTrackingKey(key string) bool {
	k := strings.ToLower(key)
	if strings.HasPrefix(k, "utm") {
		return true
	}
	_, ok := trackingKeys[k]
	return ok
}

// Normalize canonicalizes a raw candidate URL and computes its dedup key.
// It fails only on syntactically invalid input.
func Normalize(raw string) (*Candidate, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	if strings.IndexFunc(s, func(r rune) bool { return unicode.IsControl(r) || unicode.IsSpace(r) }) >= 0 {
		return nil, fmt.Errorf("%w: contains whitespace or control characters", ErrInvalidURL)
	}

	switch {
	case strings.HasPrefix(s, "//"):
		s = "https:" + s
	case !strings.Contains(s, "://"):
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidURL, err.Error())
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}

	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" || strings.Contains(host, "*") {
		return nil, fmt.Errorf("%w: invalid host %q", ErrInvalidURL, u.Host)
	}

	// http and https collapse to one identity, so both default ports are dropped
	u.Scheme = "https"
	switch port := u.Port(); port {
	case "", "80", "443":
		u.Host = host
	default:
		u.Host = host + ":" + port
	}
	u.User = nil

	u.RawQuery = cleanQuery(u.RawQuery)
	u.ForceQuery = false

	canonical := purell.NormalizeURL(u, purellFlags)

	sum := sha256.Sum256([]byte(canonical))
	return &Candidate{
		URL:      canonical,
		Host:     host,
		DedupKey: hex.EncodeToString(sum[:]),
	}, nil
}

// cleanQuery drops tracking parameters and sorts the remaining pairs by key.
// Pairs are kept byte for byte, so separators such as ';' inside a value survive.
func cleanQuery(raw string) string {
	if raw == "" {
		return ""
	}

	type pair struct {
		key string
		raw string
	}
	var pairs []pair
	for _, segment := range strings.Split(raw, "&") {
		if segment == "" {
			continue
		}
		key, _, _ := strings.Cut(segment, "=")
		if unescaped, err := url.QueryUnescape(key); err == nil {
			key = unescaped
		}
		if IsTrackingKey(key) {
			continue
		}
		pairs = append(pairs, pair{key: key, raw: segment})
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].key != pairs[j].key {
			return pairs[i].key < pairs[j].key
		}
		return pairs[i].raw < pairs[j].raw
	})

	segments := make([]string, len(pairs))
	for i, p := range pairs {
		segments[i] = p.raw
	}
	return strings.Join(segments, "&")
}

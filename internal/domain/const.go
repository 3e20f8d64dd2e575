package domain

import "time"

const (
	// Platform confidence bucket thresholds
	PLATFORM_CONFIRMED_THRESHOLD = 0.6
	PLATFORM_PROBABLE_THRESHOLD  = 0.4

	// CATEGORY_CONFIDENCE_FLOOR is the minimum score required to assign a primary category
	CATEGORY_CONFIDENCE_FLOOR = 0.7

	// DEFAULT_USER_AGENT is sent with every storefront probe
	DEFAULT_USER_AGENT = "ff-storefront-indexer/1.0 (+https://feralfile.com)"

	// DEFAULT_PROBE_TIMEOUT bounds a single storefront probe request
	DEFAULT_PROBE_TIMEOUT = 15 * time.Second

	// DEFAULT_MAX_BODY_BYTES caps how much of a response body is read
	DEFAULT_MAX_BODY_BYTES = 2 * 1024 * 1024

	// METADATA_SUBMITTED_AT_KEY is added to every source's discovery metadata bag
	METADATA_SUBMITTED_AT_KEY = "submitted_at"

	// METADATA_BEHAVIORAL_TAGS_KEY is the discovery metadata key feeds use to supply behavioral tags
	METADATA_BEHAVIORAL_TAGS_KEY = "behavioral_tags"
)

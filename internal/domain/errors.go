package domain

import "errors"

var (
	// ErrInvalidInput is returned when a submitted candidate cannot be accepted, e.g. a malformed URL
	ErrInvalidInput = errors.New("invalid input")

	// ErrProbeFailure is returned when a network probe fails (timeout, DNS, TLS, connection reset)
	ErrProbeFailure = errors.New("probe failure")

	// ErrConfiguration is returned when a probe is missing required configuration or credentials
	ErrConfiguration = errors.New("configuration error")

	// ErrRecordNotFound is returned when a candidate record does not exist
	ErrRecordNotFound = errors.New("record not found")

	// ErrStoreUnavailable is returned when the persistent store cannot be reached at sweep start
	ErrStoreUnavailable = errors.New("store unavailable")
)

// IsProbeFailure reports whether err is classified as a probe failure
func IsProbeFailure(err error) bool {
	return errors.Is(err, ErrProbeFailure)
}

// IsConfigurationError reports whether err is classified as a configuration error
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

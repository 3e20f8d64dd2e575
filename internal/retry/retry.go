package retry

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy schedules phase retries at min(Base × 2^retryCount, Cap)
type Policy struct {
	Base time.Duration
	Cap  time.Duration
}

// Delay returns the wait before the next attempt given how many consecutive
// failures were recorded before this one
func (p Policy) Delay(retryCount int) time.Duration {
	if p.Base <= 0 {
		return 0
	}
	if retryCount < 0 {
		retryCount = 0
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Base
	b.MaxInterval = p.Cap
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	d := b.NextBackOff()
	for i := 0; i < retryCount && d < p.Cap; i++ {
		d = b.NextBackOff()
	}
	return min(d, p.Cap)
}

// NextAttempt returns the time of the next attempt after a failure at now
func (p Policy) NextAttempt(now time.Time, retryCount int) time.Time {
	return now.Add(p.Delay(retryCount))
}

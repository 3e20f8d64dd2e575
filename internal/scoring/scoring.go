package scoring

import (
	"context"
	"math"

	"golang.org/x/sync/errgroup"
)

// Observation is the outcome of observing a single signal.
// An observation that is not Known carries no evidence either way.
type Observation struct {
	Known bool
	// Value is in [0, 1]; boolean signals use 0 or 1
	Value  float64
	Detail string
	Err    error
}

// Positive returns a known, fully positive observation
func Positive(detail string) Observation {
	return Observation{Known: true, Value: 1, Detail: detail}
}

// Negative returns a known, negative observation
func Negative(detail string) Observation {
	return Observation{Known: true, Value: 0, Detail: detail}
}

// Partial returns a known observation with a fractional value clamped to [0, 1]
func Partial(value float64, detail string) Observation {
	return Observation{Known: true, Value: clamp(value), Detail: detail}
}

// Unknown returns an unobservable result, optionally caused by err
func Unknown(err error) Observation {
	o := Observation{Err: err}
	if err != nil {
		o.Detail = err.Error()
	}
	return o
}

// Signal is a named, weighted evidence source
type Signal struct {
	Name    string
	Weight  float64
	Observe func(ctx context.Context) Observation
}

// Result pairs a signal with its observation
type Result struct {
	Name   string
	Weight float64
	Observation
}

// Evaluate observes every signal concurrently and returns results in signal order.
// Signals must not block past ctx cancellation.
func Evaluate(ctx context.Context, signals []Signal) []Result {
	results := make([]Result, len(signals))

	g, gctx := errgroup.WithContext(ctx)
	for i, s := range signals {
		g.Go(func() error {
			obs := s.Observe(gctx)
			if obs.Known {
				obs.Value = clamp(obs.Value)
			}
			results[i] = Result{Name: s.Name, Weight: s.Weight, Observation: obs}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// WeightedMean computes Σ(wᵢ·vᵢ)/Σ(wᵢ) over known results.
// ok is false when no result was known.
func WeightedMean(results []Result) (score float64, ok bool) {
	var num, den float64
	for _, r := range results {
		if !r.Known || r.Weight <= 0 {
			continue
		}
		num += r.Weight * r.Value
		den += r.Weight
	}
	if den == 0 {
		return 0, false
	}
	return clamp(num / den), true
}

// NoisyOr combines independent cues as 1 − Π(1 − wᵢ·vᵢ) over known results.
// ok is false when no result was known.
func NoisyOr(results []Result) (score float64, ok bool) {
	miss := 1.0
	for _, r := range results {
		if !r.Known {
			continue
		}
		ok = true
		miss *= 1 - clamp(r.Weight*r.Value)
	}
	if !ok {
		return 0, false
	}
	return clamp(1 - miss), true
}

// AnyKnown reports whether at least one result was known
func AnyKnown(results []Result) bool {
	for _, r := range results {
		if r.Known {
			return true
		}
	}
	return false
}

// Round rounds v to the given number of decimal places
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

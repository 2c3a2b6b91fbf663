// Package backoff computes retry delays with exponential growth, jitter,
// and category-specific base delays so rate-limited calls wait longer
// than cheap empty-response retries.
package backoff

import (
	"math/rand"
	"time"

	"github.com/bookforge/pipeline-go/faults"
)

const (
	defaultTransientBase = 2 * time.Second
	defaultRateLimitBase = 5 * time.Second
	defaultEmptyBase     = 1 * time.Second

	// Delay growth is capped at capFactor times the category base.
	defaultCapFactor = 64

	jitterFraction = 0.2
)

type Policy struct {
	TransientBase time.Duration
	RateLimitBase time.Duration
	EmptyBase     time.Duration
	CapFactor     int

	// Rand drives jitter; nil uses the shared source. Tests inject a
	// seeded source to pin delays.
	Rand *rand.Rand
}

func Default() Policy {
	return Policy{}
}

func (p Policy) normalized() Policy {
	out := p
	if out.TransientBase <= 0 {
		out.TransientBase = defaultTransientBase
	}
	if out.RateLimitBase <= 0 {
		out.RateLimitBase = defaultRateLimitBase
	}
	if out.EmptyBase <= 0 {
		out.EmptyBase = defaultEmptyBase
	}
	if out.CapFactor < 1 {
		out.CapFactor = defaultCapFactor
	}
	return out
}

func (p Policy) base(category faults.Category) time.Duration {
	switch category {
	case faults.RateLimited:
		return p.RateLimitBase
	case faults.EmptyResponse:
		return p.EmptyBase
	default:
		return p.TransientBase
	}
}

// Delay returns the wait before retry number attempt (0-based). Callers
// must short-circuit fatal errors before asking for a delay; enforcing
// the retry budget is also the caller's concern.
func (p Policy) Delay(attempt int, category faults.Category) time.Duration {
	np := p.normalized()
	if attempt < 0 {
		attempt = 0
	}

	base := np.base(category)
	cap := base * time.Duration(np.CapFactor)

	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= cap {
			delay = cap
			break
		}
	}

	return addJitter(delay, np.Rand)
}

// addJitter spreads the delay by up to ±20% so concurrent pipelines do
// not retry in lockstep.
func addJitter(d time.Duration, r *rand.Rand) time.Duration {
	var f float64
	if r != nil {
		f = r.Float64()
	} else {
		f = rand.Float64()
	}
	// f in [0,1) -> factor in [1-jitter, 1+jitter)
	factor := 1 - jitterFraction + 2*jitterFraction*f
	jittered := time.Duration(float64(d) * factor)
	if jittered <= 0 {
		return d
	}
	return jittered
}

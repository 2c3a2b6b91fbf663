package backoff

import (
	"math/rand"
	"testing"
	"time"

	"github.com/bookforge/pipeline-go/faults"
)

func fixedPolicy() Policy {
	return Policy{
		TransientBase: 100 * time.Millisecond,
		RateLimitBase: 500 * time.Millisecond,
		EmptyBase:     50 * time.Millisecond,
		CapFactor:     8,
		Rand:          rand.New(rand.NewSource(1)),
	}
}

func within(t *testing.T, got, base time.Duration) {
	t.Helper()
	lo := time.Duration(float64(base) * 0.8)
	hi := time.Duration(float64(base) * 1.2)
	if got < lo || got > hi {
		t.Fatalf("delay %v outside jitter window [%v, %v]", got, lo, hi)
	}
}

func TestDelayDoublesPerAttempt(t *testing.T) {
	p := fixedPolicy()
	within(t, p.Delay(0, faults.TransientNetwork), 100*time.Millisecond)
	within(t, p.Delay(1, faults.TransientNetwork), 200*time.Millisecond)
	within(t, p.Delay(2, faults.TransientNetwork), 400*time.Millisecond)
	within(t, p.Delay(3, faults.TransientNetwork), 800*time.Millisecond)
}

func TestDelayCapped(t *testing.T) {
	p := fixedPolicy()
	// cap = base * 8 = 800ms; attempt 10 would be 102.4s uncapped.
	within(t, p.Delay(10, faults.TransientNetwork), 800*time.Millisecond)
}

func TestCategoryBases(t *testing.T) {
	p := fixedPolicy()
	within(t, p.Delay(0, faults.RateLimited), 500*time.Millisecond)
	within(t, p.Delay(0, faults.EmptyResponse), 50*time.Millisecond)

	// Rate-limited must wait longer than transient at every attempt.
	for attempt := 0; attempt < 4; attempt++ {
		rl := p.Delay(attempt, faults.RateLimited)
		tn := p.Delay(attempt, faults.TransientNetwork)
		if rl <= tn {
			t.Fatalf("attempt %d: rate-limited delay %v not above transient %v", attempt, rl, tn)
		}
	}
}

func TestNegativeAttemptTreatedAsZero(t *testing.T) {
	p := fixedPolicy()
	within(t, p.Delay(-3, faults.TransientNetwork), 100*time.Millisecond)
}

func TestZeroValuePolicyUsesDefaults(t *testing.T) {
	var p Policy
	p.Rand = rand.New(rand.NewSource(7))
	within(t, p.Delay(0, faults.TransientNetwork), defaultTransientBase)
	within(t, p.Delay(0, faults.RateLimited), defaultRateLimitBase)
	within(t, p.Delay(0, faults.EmptyResponse), defaultEmptyBase)
}

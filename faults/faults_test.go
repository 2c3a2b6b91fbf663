package faults

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestClassifyTypedErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Category
	}{
		{"explicit rate limit", New(RateLimited, errors.New("slow down")), RateLimited},
		{"explicit fatal", New(Fatal, errors.New("bad key")), Fatal},
		{"wrapped classified", fmt.Errorf("step draft: %w", New(EmptyResponse, errors.New("blank"))), EmptyResponse},
		{"deadline", context.DeadlineExceeded, TransientNetwork},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err); got != tc.want {
				t.Fatalf("Classify(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}

func TestClassifyTextShapes(t *testing.T) {
	cases := []struct {
		text string
		want Category
	}{
		{"429 Too Many Requests", RateLimited},
		{"quota exceeded for project", RateLimited},
		{"dial tcp: connection refused", TransientNetwork},
		{"upstream returned 503 service unavailable", TransientNetwork},
		{"request timed out after 30s", TransientNetwork},
		{"provider returned empty response", EmptyResponse},
		{"response too short (3 chars)", EmptyResponse},
		{"invalid api key", Fatal},
		{"unmarshal failure", Fatal},
	}
	for _, tc := range cases {
		if got := Classify(errors.New(tc.text)); got != tc.want {
			t.Fatalf("Classify(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestClassifyDeterministic(t *testing.T) {
	err := errors.New("rate limit reached")
	first := Classify(err)
	for i := 0; i < 10; i++ {
		if got := Classify(err); got != first {
			t.Fatalf("Classify changed its answer: %q then %q", first, got)
		}
	}
}

func TestRetryable(t *testing.T) {
	if Fatal.Retryable() {
		t.Fatal("fatal must not be retryable")
	}
	for _, c := range []Category{TransientNetwork, RateLimited, EmptyResponse} {
		if !c.Retryable() {
			t.Fatalf("%q should be retryable", c)
		}
	}
}

func TestRetryAfterHint(t *testing.T) {
	plain := New(RateLimited, errors.New("limited"))
	if _, ok := RetryAfterHint(plain); ok {
		t.Fatal("no hint expected")
	}

	hinted := &Error{Category: RateLimited, RetryAfter: 30 * time.Second, Err: errors.New("limited")}
	d, ok := RetryAfterHint(fmt.Errorf("call: %w", hinted))
	if !ok || d != 30*time.Second {
		t.Fatalf("hint = %v, %v; want 30s, true", d, ok)
	}
}

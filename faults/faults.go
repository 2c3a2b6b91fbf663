// Package faults classifies errors from remote generation calls into a
// fixed set of categories that drive retry, backoff, and failover
// decisions. Classification is data-driven: callers that construct errors
// through this package get exact categories, while foreign errors fall
// back to shape matching on the error text.
package faults

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

type Category string

const (
	// TransientNetwork covers timeouts, refused connections, and
	// 502/503-style upstream responses. Retryable.
	TransientNetwork Category = "transient_network"
	// RateLimited is an explicit quota or rate-limit signal from a
	// provider. Retryable with a longer backoff.
	RateLimited Category = "rate_limited"
	// EmptyResponse means the call succeeded but the payload failed the
	// minimal validity check. Cheap to retry.
	EmptyResponse Category = "empty_response"
	// Fatal is everything else: auth failures, malformed requests,
	// programmer errors. Never retried.
	Fatal Category = "fatal"
)

// Retryable reports whether attempts in this category may be retried.
func (c Category) Retryable() bool {
	return c == TransientNetwork || c == RateLimited || c == EmptyResponse
}

// Error is a classified failure from a provider call.
type Error struct {
	Category Category
	Provider string
	// RetryAfter is a provider-supplied pacing hint, zero when absent.
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Category)
	}
	return fmt.Sprintf("%s: %v", e.Category, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with an explicit category.
func New(category Category, err error) *Error {
	return &Error{Category: category, Err: err}
}

// Newf builds a classified error from a format string.
func Newf(category Category, format string, args ...any) *Error {
	return &Error{Category: category, Err: fmt.Errorf(format, args...)}
}

var (
	rateLimitPatterns = []string{
		"rate limit",
		"too many requests",
		"quota exceeded",
		"429",
	}
	networkPatterns = []string{
		"timeout",
		"timed out",
		"connection refused",
		"connection reset",
		"network",
		"unavailable",
		"bad gateway",
		"502",
		"503",
	}
	emptyPatterns = []string{
		"empty response",
		"no response",
		"response too short",
	}
)

// Classify maps an error to its category. The same error shape always
// yields the same category.
func Classify(err error) Category {
	if err == nil {
		return Fatal
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified.Category
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return TransientNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return TransientNetwork
	}

	text := strings.ToLower(err.Error())
	for _, pattern := range rateLimitPatterns {
		if strings.Contains(text, pattern) {
			return RateLimited
		}
	}
	for _, pattern := range networkPatterns {
		if strings.Contains(text, pattern) {
			return TransientNetwork
		}
	}
	for _, pattern := range emptyPatterns {
		if strings.Contains(text, pattern) {
			return EmptyResponse
		}
	}
	return Fatal
}

// RetryAfterHint extracts a provider-supplied pacing hint, if any.
func RetryAfterHint(err error) (time.Duration, bool) {
	var classified *Error
	if errors.As(err, &classified) && classified.RetryAfter > 0 {
		return classified.RetryAfter, true
	}
	return 0, false
}

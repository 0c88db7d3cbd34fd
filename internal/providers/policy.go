// Package providers holds the call policy shared by the outbound provider clients.
package providers

import (
	"context"
	"errors"
	"net"
	"time"
)

// ShouldRetry decides whether a failed provider call is transient.
func ShouldRetry(err error, httpStatus int) bool {
	if httpStatus == 429 || httpStatus == 408 {
		return true
	}
	if httpStatus >= 500 && httpStatus <= 599 {
		return true
	}
	if err != nil && httpStatus == 0 {
		if errors.Is(err, context.DeadlineExceeded) {
			return true
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return true
		}
	}
	return false
}

// OutcomeUnknown reports whether a failed call may still have taken effect on
// the provider side: no response was observed, or the provider failed mid-request.
func OutcomeUnknown(err error, httpStatus int) bool {
	if err == nil {
		return false
	}
	return httpStatus == 0 || httpStatus >= 500
}

func Backoff(attempt int) time.Duration {
	// 200ms, 600ms, 1400ms
	base := []time.Duration{200 * time.Millisecond, 600 * time.Millisecond, 1400 * time.Millisecond}
	if attempt <= 0 {
		return base[0]
	}
	if attempt >= len(base) {
		return base[len(base)-1]
	}
	return base[attempt]
}

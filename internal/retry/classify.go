package retry

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// transientMarkers are substrings of error text that indicate a transient
// condition worth retrying. Kept lowercase; matching is case-insensitive.
var transientMarkers = []string{
	"connection reset",
	"connection refused",
	"broken pipe",
	"timeout",
	"timed out",
	"temporarily unavailable",
	"no such host",
	"rate limit",
	"ratelimit",
	"rate_limit",
	"quota",
	"service unavailable",
	"service_unavailable",
	"too many requests",
	"backend error",
	"internal error",
	"econnreset",
	"etimedout",
	"eai_again",
}

// Transient reports whether err looks like a transient external failure
// (network hiccup, DNS trouble, rate limiting, quota pressure).
//
// Context cancellation is never transient: the caller asked to stop.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout || dnsErr.IsNotFound
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

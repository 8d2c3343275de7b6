// Package retry implements the resilience policy for external calls:
// bounded exponential backoff for transient failures, a NoRetry marker for
// permanent ones, and a per-operation circuit breaker that stops hammering
// a degraded dependency.
package retry

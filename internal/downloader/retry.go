// Package downloader coordinates product downloads: a bounded worker
// pool over download tasks, per-error-kind retry, and best-match
// selection among search candidates.
package downloader

import (
	"time"

	"github.com/wb1016/copernicus-mcp/internal/cdse"
)

// RetryPolicy is the retry behavior per error kind, expressed as data so
// tests and callers can tighten or disable it without touching the run
// loop. Auth failures are retried after a forced credential refresh;
// network failures back off exponentially. Every other kind fails the
// task on first occurrence.
type RetryPolicy struct {
	AuthRetries    int
	NetworkRetries int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
}

// DefaultRetryPolicy returns the standard policy: one refresh-and-retry
// for auth failures, two extra attempts with short exponential backoff
// for network failures.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		AuthRetries:    1,
		NetworkRetries: 2,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       30 * time.Second,
		Multiplier:     2.0,
	}
}

type retryStep int

const (
	stepFail retryStep = iota
	stepRefreshAndRetry
	stepBackoffAndRetry
)

// classify decides the next step for a failed attempt given how many
// retries of each kind the task has already spent.
func (p RetryPolicy) classify(kind cdse.ErrorKind, authUsed, netUsed int) retryStep {
	switch kind {
	case cdse.ErrorAuth:
		if authUsed < p.AuthRetries {
			return stepRefreshAndRetry
		}
	case cdse.ErrorNetwork:
		if netUsed < p.NetworkRetries {
			return stepBackoffAndRetry
		}
	}
	return stepFail
}

// next advances the backoff delay, capped at MaxDelay.
func (p RetryPolicy) next(delay time.Duration) time.Duration {
	next := time.Duration(float64(delay) * p.Multiplier)
	if next > p.MaxDelay {
		next = p.MaxDelay
	}
	return next
}

package gateway

import (
	"errors"
	"strings"

	"github.com/user/claudebridge/internal/runtime"
)

// RetryPolicy decides when a failed resumed run is retried as a fresh
// session with the full conversation.
type RetryPolicy struct {
	// MaxAttempts is the number of retries allowed after the first attempt.
	MaxAttempts int
}

// DefaultRetryPolicy allows a single fresh retry.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{MaxAttempts: 1}
}

// ShouldRetry reports whether a run that failed with err on the given
// attempt (1-indexed) should be retried. Only runs that used a resume handle
// qualify.
func (p *RetryPolicy) ShouldRetry(err error, resumed bool, attempt int) bool {
	if !resumed || attempt > p.MaxAttempts {
		return false
	}
	return isResumeRejected(err)
}

// isResumeRejected matches a CLI that exited on its own with a non-zero code.
// Kills (timeout, cancellation) are not resume problems and are not retried.
// Errors that are not an *runtime.ExitError fall back to matching the
// "exited with code" message.
func isResumeRejected(err error) bool {
	if err == nil {
		return false
	}
	var exitErr *runtime.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code != 0 && exitErr.Signal == "" && !exitErr.TimedOut
	}
	return strings.Contains(err.Error(), "exited with code")
}

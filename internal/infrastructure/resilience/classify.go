package resilience

import (
	"context"
	"errors"

	"github.com/sony/gobreaker/v2"
)

type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

var (
	// Transient failures are retried and count against the breaker.
	Transient = ErrorClassification{Retryable: true, RecordFailure: true}
	// Unhealthy failures are not retried but still count against the breaker.
	Unhealthy = ErrorClassification{Retryable: false, RecordFailure: true}
	// Rejected requests reached a healthy upstream that refused them, or the caller gave up.
	Rejected = ErrorClassification{}
)

// Preclassify settles the outcomes every adapter treats alike. ok is false when
// the adapter has to decide.
func Preclassify(err error) (ErrorClassification, bool) {
	switch {
	case err == nil:
		return Rejected, true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Rejected, true
	case IsCircuitOpen(err):
		return Unhealthy, true
	default:
		return ErrorClassification{}, false
	}
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func defaultClassifier(err error) ErrorClassification {
	if class, ok := Preclassify(err); ok {
		return class
	}
	return Unhealthy
}

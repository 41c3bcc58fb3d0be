package dispatch

import (
	"context"
	"errors"
	"net"
	"time"

	"ship-notification-service/internal/models"
)

// Classify maps a dispatch error onto the failure taxonomy.
func Classify(err error) models.FailureReason {
	var netErr net.Error
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr):
		return models.FailureNetworkError
	case errors.Is(err, models.ErrTransport):
		return models.FailureTransportError
	}
	return models.FailureUnknown
}

// Backoff computes the retry bookkeeping after a failed attempt. When the
// attempt exhausts maxRetry the failure is terminal: next is nil and the
// count is left as is. Otherwise the next attempt is due 2^(retryCount+1) minutes later.
func Backoff(retryCount, maxRetry int, now time.Time) (count int, next *time.Time) {
	if retryCount+1 >= maxRetry {
		return retryCount, nil
	}
	at := now.Add(time.Duration(1<<uint(retryCount+1)) * time.Minute)
	return retryCount + 1, &at
}

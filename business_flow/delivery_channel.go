// Package businessflow contains the core business logic and use cases for subscription delivery workflows
package businessflow

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/amirphl/Hachiko/models"
)

// Channel delivers one cycle's artifacts over a single transport. Prepare
// validates the subscription's channel configuration before any render work
// is spent; Send performs the delivery and reports per-part outcomes.
type Channel interface {
	Kind() models.SubscriptionChannel
	Prepare(subscription *models.Subscription) error
	Send(ctx context.Context, req SendRequest) (*DeliveryResult, error)
}

// retrySend runs op with jittered exponential backoff, retrying only while
// transient reports the error as worth another attempt. Attempts are bounded,
// and the context cancels waiting between attempts.
func retrySend(ctx context.Context, attempts int, initial time.Duration, transient func(error) bool, op func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial

	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if transient(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	return backoff.Retry(wrapped, backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx))
}

package uploader

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Policy is the retry decision for a single chunk upload: a fixed
// attempt ceiling with a fixed delay between attempts. No exponential
// backoff, no jitter.
type Policy struct {
	MaxAttempts int
	Interval    time.Duration
}

// Decide reports whether another attempt is allowed after the given
// number of completed attempts.
func (p Policy) Decide(attempts int) bool {
	return attempts < p.MaxAttempts
}

// Retrier executes fallible operations under a Policy. The delay is
// executed through an injected sleep so tests run without real time
// passing.
type Retrier struct {
	log    logrus.FieldLogger
	policy Policy
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRetrier creates a Retrier with a context-aware sleep.
func NewRetrier(log logrus.FieldLogger, policy Policy) *Retrier {
	return &Retrier{
		log:    log,
		policy: policy,
		sleep:  sleepContext,
	}
}

// Do runs op until it succeeds or the policy gives up, returning the
// last error. Context cancellation interrupts both the wait between
// attempts and the loop itself.
func (r *Retrier) Do(ctx context.Context, op func(context.Context) error) error {
	var lastErr error

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if !r.policy.Decide(attempt) {
			r.log.WithError(lastErr).WithField("attempts", attempt).
				Error("Retried too many times")

			return lastErr
		}

		r.log.WithError(lastErr).WithFields(logrus.Fields{
			"attempt":  attempt,
			"retry_in": r.policy.Interval,
		}).Warn("Upload attempt failed")

		if err := r.sleep(ctx, r.policy.Interval); err != nil {
			return err
		}
	}
}

// sleepContext pauses for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

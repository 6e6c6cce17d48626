package darkrecon

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// RetryPolicy schedules repeat attempts of a provider fetch after
// transient failures. Permanent failures are returned after the first
// attempt.
type RetryPolicy struct {
	// Maximum number of attempts, default 3.
	Attempts int

	// Wait before the second attempt, default 1s. Subsequent waits grow
	// by Factor, capped at MaxBackoff.
	InitialBackoff time.Duration

	// Backoff multiplier, default 2.
	Factor float64

	// Upper bound on a single backoff wait, default 4s.
	MaxBackoff time.Duration
}

// DefaultRetryPolicy returns the built-in defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:       3,
		InitialBackoff: time.Second,
		Factor:         2,
		MaxBackoff:     4 * time.Second,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Attempts == 0 {
		p.Attempts = 3
	}
	if p.InitialBackoff == 0 {
		p.InitialBackoff = time.Second
	}
	if p.Factor == 0 {
		p.Factor = 2
	}
	if p.MaxBackoff == 0 {
		p.MaxBackoff = 4 * time.Second
	}
	return p
}

// backoff returns the wait before attempt k (1-indexed, k >= 2).
func (p RetryPolicy) backoff(k int) time.Duration {
	d := p.InitialBackoff
	for i := 2; i < k; i++ {
		d = time.Duration(float64(d) * p.Factor)
		if d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d
}

// Do runs fn under the retry policy. Transient failures are retried with
// exponential backoff up to the attempt limit; a Retry-After hint from
// the server extends the wait if it is longer than the computed backoff.
// Any other failure is returned immediately. The returned attempt count
// is how many times fn ran.
func (p RetryPolicy) Do(ctx context.Context, log *logrus.Entry, fn func(context.Context) (map[string]interface{}, error)) (map[string]interface{}, int, error) {
	p = p.withDefaults()
	var lastErr error
	for k := 1; k <= p.Attempts; k++ {
		if k > 1 {
			wait := p.backoff(k)
			if ra := retryAfter(lastErr); ra > wait {
				wait = ra
			}
			log.WithFields(logrus.Fields{"attempt": k, "wait": wait.String()}).Debug("retrying after transient failure")
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, k - 1, &CancelledError{Reason: ctx.Err().Error()}
			}
		}
		payload, err := fn(ctx)
		if err == nil {
			return payload, k, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, k, err
		}
		if !isTransient(err) {
			log.WithError(err).Debug("permanent failure, not retrying")
			return nil, k, err
		}
		log.WithError(err).WithField("attempt", k).Debug("transient failure")
	}
	return nil, p.Attempts, lastErr
}

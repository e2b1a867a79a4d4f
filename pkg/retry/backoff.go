package retry

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// newExponential builds the backoff schedule for a policy. A zero
// MaxElapsedTime leaves the attempt cap as the only bound on the loop.
func newExponential(policy Policy) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = policy.InitialInterval
	exp.MaxInterval = policy.MaxInterval
	exp.Multiplier = policy.Multiplier
	exp.MaxElapsedTime = policy.MaxElapsedTime
	return exp
}

// delayForAttempt predicts the next delay so retry callbacks can log
// it without reaching into the backoff state.
func delayForAttempt(policy Policy, attempt int) time.Duration {
	d := float64(policy.InitialInterval) * math.Pow(policy.Multiplier, float64(attempt))
	if d > float64(policy.MaxInterval) {
		return policy.MaxInterval
	}
	return time.Duration(d)
}

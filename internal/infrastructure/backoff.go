package infrastructure

import (
	"math"
	"math/rand"
	"time"
)

// backoffWithJitter grows min by factor^attempt, capped at max, plus a
// random jitter drawn from the min..max window. Shared by the postgres and
// nats connectors.
func backoffWithJitter(attempt int, factor float64, min, max time.Duration, rng *rand.Rand) time.Duration {
	backoff := float64(min) * math.Pow(factor, float64(attempt))
	if backoff > float64(max) {
		backoff = float64(max)
	}

	base := time.Duration(backoff)
	if max <= min {
		return base
	}

	jitter := time.Duration(rng.Int63n(int64(max-min) + 1))
	if base+jitter > max {
		return max
	}

	return base + jitter
}

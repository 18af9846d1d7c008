package bus

import (
	"time"

	"github.com/hupe1980/flowmesh/core"
)

// delayFor returns the backoff delay preceding retry attempt n (n >= 1).
// With Exponential set the base delay doubles per attempt, capped at
// MaxDelay; otherwise the base delay applies throughout.
func delayFor(rs core.RetryStrategy, attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	delay := rs.BaseDelay
	if rs.Exponential {
		for i := 1; i < attempt; i++ {
			delay *= 2
			if rs.MaxDelay > 0 && delay >= rs.MaxDelay {
				return rs.MaxDelay
			}
		}
	}
	if rs.MaxDelay > 0 && delay > rs.MaxDelay {
		return rs.MaxDelay
	}
	return delay
}

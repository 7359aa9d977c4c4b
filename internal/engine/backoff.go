package engine

import "time"

const (
	// BaseBackoff is the delay before the first retry.
	BaseBackoff = time.Second

	// MaxBackoff caps the retry delay.
	MaxBackoff = 30 * time.Second
)

// Backoff returns the delay before an item that failed its attempts-th
// submission may be retried: 1s, 2s, 4s, ... capped at 30s.
func Backoff(attempts int) time.Duration {
	if attempts < 1 {
		return BaseBackoff
	}
	// 1s<<5 already exceeds the cap; stop shifting before it can overflow.
	if attempts > 6 {
		return MaxBackoff
	}
	return min(BaseBackoff<<(attempts-1), MaxBackoff)
}

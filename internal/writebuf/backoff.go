package writebuf

import "time"

// Delay computes the flush retry delay after retry consecutive failures:
// min(base * 2^retry, max). Retry state is carried explicitly by the caller
// so backoff behavior is testable without constructing a Buffer.
func Delay(base, max time.Duration, retry int) time.Duration {
	if base <= 0 {
		return 0
	}
	if retry < 0 {
		retry = 0
	}
	d := base
	for i := 0; i < retry; i++ {
		d *= 2
		if d >= max || d <= 0 { // overflow guard
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

package infra

import (
	"time"
)

const (
	backoffBase = 500 * time.Millisecond
	backoffMax  = 30 * time.Second
)

// CalculateBackoff returns the exponential backoff delay for a retry count:
// base * 2^retry, capped at the maximum.
func CalculateBackoff(retry int) time.Duration {
	if retry < 0 {
		return backoffBase
	}
	if retry > 20 {
		return backoffMax
	}
	d := backoffBase * time.Duration(1<<retry)
	if d > backoffMax {
		return backoffMax
	}
	return d
}

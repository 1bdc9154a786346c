package network

import (
	"context"
	"time"
)

// retry calls try repeatedly until it returns without error, waiting
// interval between attempts. A non-positive maxAttempts retries
// forever, matching the bootstrap leader announcement's unbounded
// retry of §4.5; a positive maxAttempts bounds unicast sends to that
// many tries before giving up.
func retry(ctx context.Context, maxAttempts int, interval time.Duration, try func() error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var lastErr error
	for attempt := 1; maxAttempts <= 0 || attempt <= maxAttempts; attempt++ {
		lastErr = try()
		if lastErr == nil {
			return nil
		}
		if maxAttempts > 0 && attempt == maxAttempts {
			break
		}

		t := time.NewTimer(interval)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}

	return lastErr
}

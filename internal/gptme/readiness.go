package gptme

import (
	"context"
	"fmt"
	"time"
)

// WaitReady polls the server's health endpoint until it answers or the attempt
// budget runs out. The delay between attempts grows linearly, the same scheme
// as the container TTY resize retries: delay, 2*delay, 3*delay, and so on.
// Returns the last probe error when the server never answers.
func WaitReady(ctx context.Context, client *Client, attempts int, delay time.Duration) error {
	var err error
	for attempt := range attempts {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * delay):
			if _, err = client.Root(ctx); err == nil {
				return nil
			}
		}
	}

	return fmt.Errorf("server did not answer after %d attempts: %w\nIt may still be starting; check the container output above", attempts, err)
}

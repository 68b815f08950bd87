package integration

import (
	"context"
	"time"
)

// testContext bounds a scenario so a hung store call fails the test instead of the run
func testContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

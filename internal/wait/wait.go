package wait

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultPollInterval bounds each poll of a drain.
const DefaultPollInterval = time.Second

// ErrTimeout is returned when Config.Timeout elapses first.
var ErrTimeout = errors.New("timeout waiting for output")

// StepFunc performs one poll bounded by the given duration and reports
// whether the awaited condition now holds.
type StepFunc func(poll time.Duration) (done bool, err error)

type Config struct {
	PollInterval time.Duration
	// Timeout caps the whole drain. Zero means no cap: a node that never
	// finishes keeps the caller waiting until ctx is cancelled.
	Timeout time.Duration
}

// Drain calls step until it reports done, re-checking after every poll.
// It returns the number of polls performed.
func Drain(ctx context.Context, step StepFunc, cfg Config) (int, error) {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	var deadline time.Time
	if cfg.Timeout > 0 {
		deadline = time.Now().Add(cfg.Timeout)
	}

	polls := 0
	for {
		if err := ctx.Err(); err != nil {
			return polls, err
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return polls, fmt.Errorf("%w after %s", ErrTimeout, cfg.Timeout)
		}

		poll := pollInterval
		if !deadline.IsZero() {
			poll = min(poll, time.Until(deadline))
		}

		done, err := step(poll)
		polls++
		if err != nil {
			return polls, err
		}
		if done {
			return polls, nil
		}
	}
}

// Package pacing replays ordered {label, delay} tables with cancelable pauses.
package pacing

import (
	"context"
	"time"
)

// Step is one entry of a paced sequence. An empty Label is a pure pause.
type Step struct {
	Label string
	Delay time.Duration
}

// Sleeper suspends the caller for d or until ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

// Sleep calls f.
func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

// Timer sleeps on the wall clock.
var Timer Sleeper = SleeperFunc(func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
})

// Instant never waits. It still honours cancellation.
var Instant Sleeper = SleeperFunc(func(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
})

// EmitFunc receives each labelled step with its index in the sequence.
type EmitFunc func(i int, step Step) error

// Replay emits every labelled step in order and pauses for its delay after
// emitting it. It returns the first error from emit or from the sleeper.
func Replay(ctx context.Context, steps []Step, sleeper Sleeper, emit EmitFunc) error {
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if step.Label != "" {
			if err := emit(i, step); err != nil {
				return err
			}
		}
		if step.Delay > 0 {
			if err := sleeper.Sleep(ctx, step.Delay); err != nil {
				return err
			}
		}
	}
	return nil
}

// Total returns the summed delay of a sequence.
func Total(steps []Step) time.Duration {
	var d time.Duration
	for _, s := range steps {
		d += s.Delay
	}
	return d
}

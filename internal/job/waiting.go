package job

import (
	"context"
	"time"
)

// SleepWork returns a work function that just sleeps for the given duration.
func SleepWork(d time.Duration) func(context.Context) error {
	return func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
			// If the time is up, we just return nil.
			return nil
		}
	}
}

// SpinWork returns a work function that keeps the CPU busy for d of
// runnable time. With a proc, it passes the proc's gate between chunks, so
// a suspended proc stops making progress and time spent suspended does not
// count toward d.
func SpinWork(d time.Duration, p *Proc) func(context.Context) error {
	return func(ctx context.Context) error {
		var (
			spent time.Duration
			x     uint64
		)
		for spent < d {
			if p != nil {
				if err := p.WaitRunnable(ctx); err != nil {
					return err
				}
			} else if err := ctx.Err(); err != nil {
				return err
			}

			start := time.Now()
			for i := 0; i < 10000; i++ {
				x = x*6364136223846793005 + 1442695040888963407
			}
			chunk := time.Since(start)
			spent += chunk
			if p != nil {
				p.ran.Add(int64(chunk))
			}
		}
		_ = x
		return nil
	}
}

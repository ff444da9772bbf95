// Package clock provides the time source and polling loop shared by the
// background workers.
package clock

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Clock interface {
	Now() time.Time
}

// Real reads the system clock.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

// Fake is a manually advanced clock for tests.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

func NewFake(now time.Time) *Fake {
	return &Fake{now: now}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

// Loop runs fn once immediately and then every interval until ctx is
// cancelled. A panic inside fn is logged and the loop keeps going.
func Loop(ctx context.Context, name string, interval time.Duration, log *zap.SugaredLogger, fn func(context.Context)) {
	log.Infow("loop: running", "loop", name, "interval", interval)

	// Catch up immediately on startup
	runOnce(ctx, name, log, fn)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Infow("loop: shutting down", "loop", name)
			return
		case <-ticker.C:
			runOnce(ctx, name, log, fn)
		}
	}
}

func runOnce(ctx context.Context, name string, log *zap.SugaredLogger, fn func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("loop: panic in tick", "loop", name, "panic", r)
		}
	}()
	fn(ctx)
}

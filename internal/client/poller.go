package client

import (
	"context"
	"time"
)

// Poller is the handle of a running poll loop. The owner must call Stop
// when it no longer needs updates.
type Poller struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// tick reports whether the loop reached a terminal state.
type tick func(ctx context.Context) bool

func startPoller(parent context.Context, interval time.Duration, fn tick) *Poller {
	ctx, cancel := context.WithCancel(parent)
	p := &Poller{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(p.done)
		defer cancel()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if ctx.Err() != nil {
					return
				}
				if fn(ctx) {
					return
				}
			}
		}
	}()
	return p
}

// Stop ends the loop. No tick starts after Stop returns; a tick already
// running finishes. Safe to call more than once and on a nil Poller.
func (p *Poller) Stop() {
	if p != nil {
		p.cancel()
	}
}

// Done is closed once the loop has exited.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

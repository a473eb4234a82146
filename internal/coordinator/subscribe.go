// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package coordinator

import (
	"context"

	"github.com/pdiddy/promptdesk/pkg/types"
)

// subscriber holds at most one pending snapshot. A renderer that falls
// behind sees the newest state, never a backlog.
type subscriber struct {
	ch chan types.UIState
}

// offer replaces any pending snapshot with st. Callers hold Coordinator.mu,
// so the only concurrent party is the reader.
func (s *subscriber) offer(st types.UIState) {
	select {
	case s.ch <- st:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- st:
	default:
	}
}

// Subscribe returns a channel that first yields the current state and then
// every later transition, coalesced to the latest. The channel is closed
// when ctx ends or the coordinator is closed.
func (c *Coordinator) Subscribe(ctx context.Context) <-chan types.UIState {
	s := &subscriber{ch: make(chan types.UIState, 1)}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(s.ch)
		return s.ch
	}
	s.ch <- c.state
	c.subs[s] = struct{}{}
	c.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			c.unsubscribe(s)
		case <-c.baseCtx.Done():
		}
	}()
	return s.ch
}

func (c *Coordinator) unsubscribe(s *subscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subs[s]; !ok {
		return
	}
	delete(c.subs, s)
	close(s.ch)
}

func (c *Coordinator) broadcastLocked() {
	for s := range c.subs {
		s.offer(c.state)
	}
}

package apiclient

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// coalescer merges concurrent fetches of one key. The shared fetch runs on
// its own context, which is cancelled once its last waiter leaves.
type coalescer struct {
	group singleflight.Group

	mu      sync.Mutex
	flights map[string]*flight
}

type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func newCoalescer() *coalescer {
	return &coalescer{flights: make(map[string]*flight)}
}

// join registers a waiter on key. The first waiter's context values (trace
// span, deadlines excluded) seed the shared fetch context.
func (co *coalescer) join(ctx context.Context, key string) *flight {
	co.mu.Lock()
	defer co.mu.Unlock()

	f, ok := co.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		co.flights[key] = f
	}
	f.waiters++
	return f
}

// leave drops a waiter. The last one aborts the shared fetch and forgets the
// key so later callers start a fresh one.
func (co *coalescer) leave(key string, f *flight) {
	co.mu.Lock()
	defer co.mu.Unlock()

	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if co.flights[key] == f {
		delete(co.flights, key)
		co.group.Forget(key)
	}
}

// do runs fn once per key among concurrent callers. Each caller waits on its
// own ctx; shared reports whether the result was delivered to several callers.
func (co *coalescer) do(ctx context.Context, key string, fn func(context.Context) (any, error)) (val any, shared bool, err error) {
	f := co.join(ctx, key)
	defer co.leave(key, f)

	ch := co.group.DoChan(key, func() (any, error) {
		return fn(f.ctx)
	})

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		return res.Val, res.Shared, res.Err
	}
}

// inFlight counts keys with at least one waiter.
func (co *coalescer) inFlight() int {
	co.mu.Lock()
	defer co.mu.Unlock()
	return len(co.flights)
}

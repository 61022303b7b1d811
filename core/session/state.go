package session

import (
	"context"

	"github.com/trezcool/sapp/core"
)

// Current returns a snapshot of the resolved identity.
func (r *Resolver) Current() ResolvedIdentity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Subscribe registers fn to be called with every new resolved identity.
func (r *Resolver) Subscribe(fn func(ResolvedIdentity)) (unsubscribe func()) {
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

// Wait blocks until the identity is no longer loading.
func (r *Resolver) Wait(ctx context.Context) (ResolvedIdentity, error) {
	settled := make(chan ResolvedIdentity, 1)
	unsubscribe := r.Subscribe(func(ri ResolvedIdentity) {
		if !ri.Loading {
			select {
			case settled <- ri:
			default:
			}
		}
	})
	defer unsubscribe()

	if cur := r.Current(); !cur.Loading {
		return cur, nil
	}
	select {
	case ri := <-settled:
		return ri, nil
	case <-ctx.Done():
		return r.Current(), core.NewError(core.KindInternal, "resolving session", ctx.Err())
	}
}

func (r *Resolver) publish(state ResolvedIdentity) {
	r.mu.Lock()
	r.state = state
	subs := make([]func(ResolvedIdentity), 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	r.mu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
}

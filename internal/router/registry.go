package router

import (
	"log"
	"sync"

	"github.com/teamspace-collab/sync-client/internal/protocol"
)

// Subscription is a revocable handle to a registered handler.
type Subscription struct {
	id      uint64
	reg     *registry
	handler Handler
	// kinds is nil for catch-all subscriptions.
	kinds map[protocol.Kind]bool
}

// Cancel revokes the subscription. Idempotent; after Cancel returns the
// handler receives no further envelopes.
func (s *Subscription) Cancel() {
	s.reg.remove(s.id)
}

// registry holds subscriptions in registration order.
type registry struct {
	mu     sync.RWMutex
	subs   []*Subscription
	nextID uint64
}

func newRegistry() *registry {
	return &registry{}
}

func (r *registry) add(handler Handler, kinds []protocol.Kind) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	sub := &Subscription{id: r.nextID, reg: r, handler: handler}
	if len(kinds) > 0 {
		sub.kinds = make(map[protocol.Kind]bool, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = true
		}
	}
	r.subs = append(r.subs, sub)
	return sub
}

func (r *registry) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, sub := range r.subs {
		if sub.id == id {
			r.subs = append(r.subs[:i], r.subs[i+1:]...)
			return
		}
	}
}

// dispatch delivers env to matching subscribers in registration order. The
// subscriber list is snapshotted so handlers may subscribe or cancel during
// dispatch without corrupting iteration.
func (r *registry) dispatch(env *protocol.Envelope) {
	r.mu.RLock()
	snapshot := make([]*Subscription, len(r.subs))
	copy(snapshot, r.subs)
	r.mu.RUnlock()

	for _, sub := range snapshot {
		if sub.kinds != nil && !sub.kinds[env.Type] {
			continue
		}
		safeInvoke(sub.handler, env)
	}
}

func safeInvoke(h Handler, env *protocol.Envelope) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("Subscriber panic on %s envelope: %v", env.Type, rec)
		}
	}()
	h(env)
}

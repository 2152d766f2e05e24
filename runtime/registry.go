package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"
)

var _ contract.IRegistry = (*Registry)(nil)

type Set map[domain.ConnectionID]struct{}

type membership struct {
	identity domain.Identity
	sink     contract.EventSink
}

// Registry is the connection and presence registry.
// An identity is online as long as at least one connection is bound to it.
// A connection is bound to at most one identity at a time.
type Registry struct {
	mu              sync.RWMutex
	log             *slog.Logger
	observer        contract.IObserver
	deliveryTimeout time.Duration
	connections     map[domain.ConnectionID]membership // map connection -> membership
	groups          map[domain.Identity]Set            // map identity to its connections
}

func NewRegistry(log *slog.Logger, observer contract.IObserver, deliveryTimeout time.Duration) *Registry {
	return &Registry{
		log:             log,
		observer:        observer,
		deliveryTimeout: deliveryTimeout,
		connections:     make(map[domain.ConnectionID]membership),
		groups:          make(map[domain.Identity]Set),
	}
}

// Register binds a connection to the broadcast group of an identity.
// Registering the same connection again under another identity moves it,
// the previous binding is dropped.
func (r *Registry) Register(identity domain.Identity, connectionID domain.ConnectionID, sink contract.EventSink) {
	r.mu.Lock()
	var wentOffline *domain.Identity
	if previous, ok := r.connections[connectionID]; ok && previous.identity != identity {
		if r.leave(previous.identity, connectionID) {
			wentOffline = &previous.identity
		}
	}
	r.connections[connectionID] = membership{identity: identity, sink: sink}
	if _, ok := r.groups[identity]; !ok {
		r.groups[identity] = make(Set)
	}
	wentOnline := len(r.groups[identity]) == 0
	r.groups[identity][connectionID] = struct{}{}
	r.mu.Unlock()

	if wentOffline != nil {
		r.log.Info("Identity offline", "identity", *wentOffline)
	}
	if wentOnline {
		r.log.Info("Identity online", "identity", identity, "connection_id", connectionID)
	}
}

// Unregister removes the membership of a connection, if any.
func (r *Registry) Unregister(connectionID domain.ConnectionID) {
	r.mu.Lock()
	previous, ok := r.connections[connectionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.connections, connectionID)
	wentOffline := r.leave(previous.identity, connectionID)
	r.mu.Unlock()

	if wentOffline {
		r.log.Info("Identity offline", "identity", previous.identity)
	}
}

// leave removes a connection from a group and drops empty groups.
// It reports whether the identity has no connection left. Caller holds the lock.
func (r *Registry) leave(identity domain.Identity, connectionID domain.ConnectionID) bool {
	members, ok := r.groups[identity]
	if !ok {
		return false
	}
	delete(members, connectionID)
	if len(members) == 0 {
		delete(r.groups, identity)
		return true
	}
	return false
}

// Deliver pushes an event to every connection bound to identity and returns
// how many accepted it. An offline identity silently gets nothing.
// A delivery timeout of zero or less leaves ctx as the only bound.
func (r *Registry) Deliver(ctx context.Context, identity domain.Identity, e event.DomainEvent) int {
	sinks := r.sinksFor(identity)
	delivered := 0
	for _, sink := range sinks {
		err := r.consume(ctx, sink, e)
		if err != nil {
			r.observer.DeliveryDropped()
			r.log.Debug("Delivery skipped", "identity", identity, "event", e.EventName(), "error", err)
			continue
		}
		delivered++
	}
	return delivered
}

func (r *Registry) consume(ctx context.Context, sink contract.EventSink, e event.DomainEvent) error {
	if r.deliveryTimeout <= 0 {
		return sink.Consume(ctx, e)
	}
	sinkCtx, cancel := context.WithTimeout(ctx, r.deliveryTimeout)
	defer cancel()
	return sink.Consume(sinkCtx, e)
}

// sinksFor snapshots the sinks of a group, so that no lock is held while consuming.
func (r *Registry) sinksFor(identity domain.Identity) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.groups[identity]
	if !ok {
		return nil
	}
	return lo.FilterMap(lo.Keys(members), func(connectionID domain.ConnectionID, _ int) (contract.EventSink, bool) {
		m, exists := r.connections[connectionID]
		return m.sink, exists
	})
}

func (r *Registry) Online(identity domain.Identity) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups[identity]) > 0
}

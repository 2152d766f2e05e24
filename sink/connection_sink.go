package sink

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"sync"
)

var _ contract.EventSink = (*ConnectionSink)(nil)

// ConnectionSink buffers the events pushed to one live connection.
// The connection handler drains Events and writes them to the socket.
type ConnectionSink struct {
	mu     sync.RWMutex
	closed bool
	Events chan event.DomainEvent
}

// NewConnectionSink buffers at least one event.
func NewConnectionSink(bufferSize int) *ConnectionSink {
	bufferSize = max(bufferSize, 1)
	return &ConnectionSink{Events: make(chan event.DomainEvent, bufferSize)}
}

// Consume is called by the registry and the conversation workers.
// It never waits on a slow reader, a full buffer drops the event.
func (s *ConnectionSink) Consume(ctx context.Context, e event.DomainEvent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.ErrSinkClosed
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	select {
	case s.Events <- e:
		return nil
	default:
		return errors.ErrSinkFull
	}
}

// Close ends the event stream, later Consume calls are rejected.
func (s *ConnectionSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.Events)
}

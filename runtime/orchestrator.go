// Package runtime wires connections, conversation queues and the store together.
// It orchestrates the relay without containing business logic or domain rules.
package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/runtime/workers"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultIdleTimeout = time.Minute
	minSweepInterval   = 10 * time.Millisecond
)

// lane is the queue of a single conversation, drained by its own supervised worker.
// inflight counts the sends being dispatched, queued or relayed.
type lane struct {
	queue      chan workers.Send
	inflight   int
	lastActive time.Time
}

type Orchestrator struct {
	mu          sync.Mutex
	log         *slog.Logger
	supervisor  contract.ISupervisor
	registry    contract.IRegistry
	store       contract.IConversationStore
	observer    contract.IObserver
	lanes       map[domain.ConversationID]*lane
	bufferSize  int
	idleTimeout time.Duration
	ackEnabled  bool
	started     bool
	ctx         context.Context
	cancel      context.CancelFunc
	now         func() time.Time
}

// NewOrchestrator builds an orchestrator giving every active conversation its own queue of bufferSize.
// A conversation without any send for idleTimeout releases its queue and its worker.
func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor,
	registry contract.IRegistry, store contract.IConversationStore, observer contract.IObserver,
	bufferSize int, idleTimeout time.Duration, ackEnabled bool) *Orchestrator {
	if bufferSize < 0 {
		bufferSize = 0
	}
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		log:         log,
		supervisor:  supervisor,
		registry:    registry,
		store:       store,
		observer:    observer,
		lanes:       make(map[domain.ConversationID]*lane),
		bufferSize:  bufferSize,
		idleTimeout: idleTimeout,
		ackEnabled:  ackEnabled,
		ctx:         ctx,
		cancel:      cancel,
		now:         time.Now,
	}
}

// RegisterParticipant binds a connection to an identity, the identity becomes reachable.
func (o *Orchestrator) RegisterParticipant(identity domain.Identity, connectionID domain.ConnectionID, sink contract.EventSink) {
	o.registry.Register(identity, connectionID, sink)
}

// UnregisterParticipant releases a connection, whatever identity it was bound to.
func (o *Orchestrator) UnregisterParticipant(connectionID domain.ConnectionID) {
	o.registry.Unregister(connectionID)
}

// Dispatch queues a send request behind the previous ones of the same conversation.
// It blocks while that conversation's queue is full, until the context is done.
// Other conversations are never waited for.
func (o *Orchestrator) Dispatch(ctx context.Context, cmd domain.SendCommand, origin contract.EventSink) error {
	l, err := o.acquire(cmd.ConversationID)
	if err != nil {
		return err
	}
	select {
	case l.queue <- workers.Send{Command: cmd, Origin: origin}:
		return nil
	case <-ctx.Done():
		o.settle(l)
		o.log.Warn(fmt.Sprintf("Send to conversation %s abandoned", cmd.ConversationID), "error", ctx.Err())
		return ctx.Err()
	case <-o.ctx.Done():
		o.settle(l)
		return o.ctx.Err()
	}
}

// GetMessages returns the ordered history of a conversation.
// A failing store yields an empty history, the failure only reaches the observer.
func (o *Orchestrator) GetMessages(ctx context.Context, cmd domain.GetMessagesCommand) []domain.Message {
	messages, err := o.store.ListOrdered(ctx, cmd.ConversationID)
	if err != nil {
		o.observer.ReadFailed(cmd.ConversationID, err)
		return []domain.Message{}
	}
	if messages == nil {
		return []domain.Message{}
	}
	return messages
}

// acquire returns the lane of a conversation, opening it on first use.
// The lane is held until settle is called.
func (o *Orchestrator) acquire(conversationID domain.ConversationID) (*lane, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.ctx.Err(); err != nil {
		return nil, err
	}
	l, ok := o.lanes[conversationID]
	if !ok {
		l = &lane{queue: make(chan workers.Send, o.bufferSize)}
		o.lanes[conversationID] = l
		if o.started {
			o.supervisor.Start(o.ctx, o.worker(conversationID, l))
		}
	}
	l.inflight++
	l.lastActive = o.now()
	return l, nil
}

func (o *Orchestrator) settle(l *lane) {
	o.mu.Lock()
	defer o.mu.Unlock()
	l.inflight--
	l.lastActive = o.now()
}

func (o *Orchestrator) worker(conversationID domain.ConversationID, l *lane) *workers.ConversationWorker {
	return workers.NewConversationWorker(conversationID, l.queue, o.store, o.registry, o.observer,
		o.ackEnabled, func() { o.settle(l) }, o.log)
}

// Sweep closes the lanes with nothing in flight since the idle timeout.
// Their workers stop once the closed queue is observed.
func (o *Orchestrator) Sweep() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	now := o.now()
	swept := 0
	for conversationID, l := range o.lanes {
		if l.inflight > 0 || now.Sub(l.lastActive) < o.idleTimeout {
			continue
		}
		close(l.queue)
		delete(o.lanes, conversationID)
		swept++
	}
	return swept
}

// Start runs the conversation workers under the supervisor until the context is done.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator already started")
	}
	o.started = true
	stop := context.AfterFunc(ctx, o.cancel)
	defer stop()

	for conversationID, l := range o.lanes {
		o.supervisor.Add(o.worker(conversationID, l))
	}
	o.supervisor.Add(workers.NewJanitorWorker(o.log, o, max(o.idleTimeout/2, minSweepInterval)))
	o.mu.Unlock()

	o.log.Info(fmt.Sprintf("Starting orchestrator, conversations idle for %s are released", o.idleTimeout))
	o.supervisor.Run(o.ctx)
	return nil
}

// Stop cancels the supervised workers, later sends are refused.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.cancel()
	o.supervisor.Stop()
}

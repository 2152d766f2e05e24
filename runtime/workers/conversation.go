package workers

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"fmt"
	"log/slog"
)

// Ensure *ConversationWorker implements the contract.Worker interface at compile time.
var _ contract.Worker = (*ConversationWorker)(nil)

// Send is a send request waiting in a conversation queue.
// Origin is the connection of the sender, it only receives acknowledgments.
type Send struct {
	Command domain.SendCommand
	Origin  contract.EventSink
}

// ConversationWorker relays the send requests of a single conversation one at a time,
// so the conversation is persisted and broadcast in the order its requests were received.
// It stops once its queue is closed.
type ConversationWorker struct {
	name       contract.WorkerName
	queue      <-chan Send
	store      contract.IConversationStore
	registry   contract.IRegistry
	observer   contract.IObserver
	ackEnabled bool
	settled    func()
	log        *slog.Logger
}

// NewConversationWorker builds the worker of one conversation.
// settled, when not nil, is called once every dequeued send has been handled, even by a panic.
func NewConversationWorker(
	conversationID domain.ConversationID,
	queue <-chan Send,
	store contract.IConversationStore,
	registry contract.IRegistry,
	observer contract.IObserver,
	ackEnabled bool,
	settled func(),
	log *slog.Logger) *ConversationWorker {
	name := contract.WorkerName(fmt.Sprintf("ConversationWorker-%s", conversationID))
	return &ConversationWorker{
		name:       name,
		queue:      queue,
		store:      store,
		registry:   registry,
		observer:   observer,
		ackEnabled: ackEnabled,
		settled:    settled,
		log:        log.With("worker", name),
	}
}

func (w *ConversationWorker) GetName() contract.WorkerName { return w.name }

func (w *ConversationWorker) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return w.stop(ctx)
		}
		select {
		case <-ctx.Done():
			return w.stop(ctx)
		case send, ok := <-w.queue:
			if !ok {
				w.log.Debug("Queue is closed")
				return nil
			}
			w.handle(ctx, send)
		}
	}
}

func (w *ConversationWorker) handle(ctx context.Context, send Send) {
	if w.settled != nil {
		defer w.settled()
	}
	w.Relay(ctx, send)
}

// stop reports the sends still queued, they are never persisted.
func (w *ConversationWorker) stop(ctx context.Context) error {
	if abandoned := len(w.queue); abandoned > 0 {
		w.log.Warn(fmt.Sprintf("Stopping worker, %d queued sends abandoned", abandoned))
	} else {
		w.log.Debug("Stopping worker")
	}
	return ctx.Err()
}

// Relay persists the message, then broadcasts it to the recipient.
// Nothing is broadcast when the store rejects the message.
func (w *ConversationWorker) Relay(ctx context.Context, send Send) {
	cmd := send.Command
	message, err := w.store.Append(ctx, cmd.ConversationID, domain.NewDraft(cmd))
	if err != nil {
		w.observer.AppendFailed(cmd.ConversationID, err)
		w.acknowledge(ctx, send, event.MessageAck{
			ConversationID: cmd.ConversationID,
			Status:         event.AckFailed,
		})
		return
	}
	w.observer.MessageRelayed()
	w.log.Debug(fmt.Sprintf("Message stored and sent from %s to %s", message.From, message.To),
		"conversation_id", message.ConversationID,
		"message_id", message.ID)

	delivered := w.registry.Deliver(ctx, message.To, event.MessageDelivered{Message: message})
	w.observer.Delivered(delivered)

	w.acknowledge(ctx, send, event.MessageAck{
		ConversationID: message.ConversationID,
		MessageID:      message.ID,
		Status:         event.AckSent,
	})
}

func (w *ConversationWorker) acknowledge(ctx context.Context, send Send, ack event.MessageAck) {
	if !w.ackEnabled || send.Origin == nil {
		return
	}
	if err := send.Origin.Consume(ctx, ack); err != nil {
		w.log.Debug("Acknowledgment skipped", "conversation_id", ack.ConversationID, "error", err)
	}
}

//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// Workers implementing Named are logged under their own name instead.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	if n, ok := w.(Named); ok {
		return string(n.GetName())
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

type Named interface {
	GetName() WorkerName
}

// EventSink is the receiving end of a connection.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// IRegistry maps identities to the connections bound to them.
type IRegistry interface {
	Register(identity domain.Identity, connectionID domain.ConnectionID, sink EventSink)
	Unregister(connectionID domain.ConnectionID)
	Deliver(ctx context.Context, identity domain.Identity, e event.DomainEvent) int
	Online(identity domain.Identity) bool
}

// IConversationStore is an append-only ordered log per conversation.
type IConversationStore interface {
	Append(ctx context.Context, conversationID domain.ConversationID, draft domain.Message) (domain.Message, error)
	ListOrdered(ctx context.Context, conversationID domain.ConversationID) ([]domain.Message, error)
	Close() error
}

// IObserver receives the conditions never reported to protocol callers.
type IObserver interface {
	MessageRelayed()
	AppendFailed(conversationID domain.ConversationID, err error)
	ReadFailed(conversationID domain.ConversationID, err error)
	Delivered(count int)
	DeliveryDropped()
}

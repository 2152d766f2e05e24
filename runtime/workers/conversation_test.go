package workers

import (
	"bytes"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/mocks"
	"chat-relay/repositories"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type workerFixture struct {
	store    *mocks.MockIConversationStore
	registry *mocks.MockIRegistry
	observer *mocks.MockIObserver
	origin   *mocks.MockEventSink
}

func newWorkerFixture(t *testing.T) workerFixture {
	ctrl := gomock.NewController(t)
	return workerFixture{
		store:    mocks.NewMockIConversationStore(ctrl),
		registry: mocks.NewMockIRegistry(ctrl),
		observer: mocks.NewMockIObserver(ctrl),
		origin:   mocks.NewMockEventSink(ctrl),
	}
}

func (f workerFixture) worker(ackEnabled bool) *ConversationWorker {
	return NewConversationWorker("c1", nil, f.store, f.registry, f.observer, ackEnabled, nil,
		logs.GetLoggerFromLevel(slog.LevelDebug))
}

func sendHi(chat domain.ConversationID) domain.SendCommand {
	return domain.SendCommand{ConversationID: chat, From: "A", To: "B", Content: "hi"}
}

func TestConversationWorker_Persists_Then_Delivers(t *testing.T) {
	req := require.New(t)
	f := newWorkerFixture(t)
	finalized := domain.Message{
		ID:             uuid.New(),
		ConversationID: "c1",
		From:           "A",
		To:             "B",
		Content:        "hi",
		Timestamp:      time.Now().UTC(),
		Status:         domain.StatusSent,
	}

	// Given the store accepts the message
	f.store.EXPECT().
		Append(gomock.Any(), domain.ConversationID("c1"), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ domain.ConversationID, draft domain.Message) (domain.Message, error) {
			req.True(draft.IsDraft())
			req.Equal(domain.StatusSent, draft.Status)
			req.Equal("hi", draft.Content)
			return finalized, nil
		}).Times(1)
	f.observer.EXPECT().MessageRelayed().Times(1)

	// Then the finalized message is broadcast to the recipient only once
	f.registry.EXPECT().
		Deliver(gomock.Any(), domain.Identity("B"), event.MessageDelivered{Message: finalized}).
		Return(1).Times(1)
	f.observer.EXPECT().Delivered(1).Times(1)

	// And the sender gets nothing back
	f.worker(false).Relay(context.Background(), Send{Command: sendHi("c1"), Origin: f.origin})
}

func TestConversationWorker_Failed_Append_Is_Not_Broadcast(t *testing.T) {
	f := newWorkerFixture(t)

	// Given the store rejects every message of c2
	f.store.EXPECT().
		Append(gomock.Any(), domain.ConversationID("c2"), gomock.Any()).
		Return(domain.Message{}, errors.ErrStoreUnavailable).Times(1)
	f.observer.EXPECT().AppendFailed(domain.ConversationID("c2"), errors.ErrStoreUnavailable).Times(1)

	// Then no Deliver nor acknowledgment happens, any call would fail the mocks
	f.worker(false).Relay(context.Background(), Send{Command: sendHi("c2"), Origin: f.origin})
}

func TestConversationWorker_Acknowledges_When_Enabled(t *testing.T) {
	f := newWorkerFixture(t)

	f.store.EXPECT().
		Append(gomock.Any(), domain.ConversationID("c2"), gomock.Any()).
		Return(domain.Message{}, errors.ErrStoreUnavailable).Times(1)
	f.observer.EXPECT().AppendFailed(gomock.Any(), gomock.Any()).Times(1)

	// Then the sender is told its message failed
	f.origin.EXPECT().
		Consume(gomock.Any(), event.MessageAck{ConversationID: "c2", Status: event.AckFailed}).
		Return(nil).Times(1)

	f.worker(true).Relay(context.Background(), Send{Command: sendHi("c2"), Origin: f.origin})
}

func TestConversationWorker_Run_Keeps_Queue_Order(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := mocks.NewMockIRegistry(ctrl)
	observer := mocks.NewMockIObserver(ctrl)
	store := repositories.NewMemoryConversationStore()
	queue := make(chan Send, 100)
	total := 20

	var mu sync.Mutex
	var delivered []string
	registry.EXPECT().
		Deliver(gomock.Any(), domain.Identity("B"), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ domain.Identity, e event.DomainEvent) int {
			mu.Lock()
			defer mu.Unlock()
			delivered = append(delivered, e.(event.MessageDelivered).Message.Content)
			return 1
		}).Times(total)
	observer.EXPECT().MessageRelayed().Times(total)
	observer.EXPECT().Delivered(1).Times(total)

	// Given a queue filled before the worker starts
	for i := 0; i < total; i++ {
		cmd := sendHi("c1")
		cmd.Content = fmt.Sprintf("%d", i)
		queue <- Send{Command: cmd}
	}
	close(queue)

	// When the worker drains it
	var settled atomic.Int32
	worker := NewConversationWorker("c1", queue, store, registry, observer, false,
		func() { settled.Add(1) }, slog.Default())
	req.NoError(worker.Run(context.Background()))

	// Then deliveries and history follow the queue order
	history, err := store.ListOrdered(context.Background(), "c1")
	req.NoError(err)
	req.Len(history, total)
	for i := 0; i < total; i++ {
		req.Equal(fmt.Sprintf("%d", i), delivered[i])
		req.Equal(fmt.Sprintf("%d", i), history[i].Content)
	}
	req.Equal(int32(total), settled.Load())
	req.Equal(contract.WorkerName("ConversationWorker-c1"), worker.GetName())
}

func TestConversationWorker_Settles_A_Panicking_Send(t *testing.T) {
	req := require.New(t)
	f := newWorkerFixture(t)
	queue := make(chan Send, 1)
	queue <- Send{Command: sendHi("c1")}

	f.store.EXPECT().Append(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, domain.ConversationID, domain.Message) (domain.Message, error) {
			panic("store exploded")
		}).Times(1)

	var settled atomic.Int32
	worker := NewConversationWorker("c1", queue, f.store, f.registry, f.observer, false,
		func() { settled.Add(1) }, slog.Default())

	// The supervisor recovers the panic, the send must not stay in flight
	req.Panics(func() { _ = worker.Run(context.Background()) })
	req.Equal(int32(1), settled.Load())
}

func TestConversationWorker_Reports_Abandoned_Sends_On_Shutdown(t *testing.T) {
	req := require.New(t)
	f := newWorkerFixture(t)
	queue := make(chan Send, 3)
	queue <- Send{Command: sendHi("c1")}
	queue <- Send{Command: sendHi("c1")}

	var output bytes.Buffer
	log := slog.New(slog.NewTextHandler(&output, nil))
	worker := NewConversationWorker("c1", queue, f.store, f.registry, f.observer, false, nil, log)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Given a canceled context, nothing is relayed, any store call would fail the mocks
	err := worker.Run(ctx)

	req.ErrorIs(err, context.Canceled)
	req.Contains(output.String(), "2 queued sends abandoned")
	req.Len(queue, 2)
}

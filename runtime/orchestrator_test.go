package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/mocks"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime/workers"
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type relayFixture struct {
	orchestrator *Orchestrator
	monitor      *observability.Monitor
	registry     *Registry
}

func startRelay(t *testing.T, store contract.IConversationStore) relayFixture {
	return startRelayWith(t, store, 100, time.Minute)
}

func startRelayWith(t *testing.T, store contract.IConversationStore, bufferSize int, idleTimeout time.Duration) relayFixture {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	monitor := observability.NewMonitor(log)
	registry := NewRegistry(log, monitor, time.Second)
	supervisor := workers.NewSupervisor(log, 100*time.Millisecond)
	orchestrator := NewOrchestrator(log, supervisor, registry, store, monitor, bufferSize, idleTimeout, false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = orchestrator.Start(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return relayFixture{orchestrator: orchestrator, monitor: monitor, registry: registry}
}

func newIdleOrchestrator(bufferSize int) *Orchestrator {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	monitor := observability.NewMonitor(log)
	return NewOrchestrator(log, workers.NewSupervisor(log, time.Second),
		NewRegistry(log, monitor, time.Second), repositories.NewMemoryConversationStore(), monitor,
		bufferSize, time.Minute, false)
}

func (o *Orchestrator) laneCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.lanes)
}

// stallingStore holds every append of one conversation until released.
type stallingStore struct {
	*repositories.MemoryConversationStore
	stalled domain.ConversationID
	entered chan struct{}
	release chan struct{}
}

func newStallingStore(stalled domain.ConversationID) *stallingStore {
	return &stallingStore{
		MemoryConversationStore: repositories.NewMemoryConversationStore(),
		stalled:                 stalled,
		entered:                 make(chan struct{}, 10),
		release:                 make(chan struct{}),
	}
}

func (s *stallingStore) Append(ctx context.Context, conversationID domain.ConversationID, draft domain.Message) (domain.Message, error) {
	if conversationID == s.stalled {
		s.entered <- struct{}{}
		select {
		case <-s.release:
		case <-ctx.Done():
			return domain.Message{}, ctx.Err()
		}
	}
	return s.MemoryConversationStore.Append(ctx, conversationID, draft)
}

func contents(events []event.DomainEvent) []string {
	return lo.Map(events, func(e event.DomainEvent, _ int) string {
		return e.(event.MessageDelivered).Message.Content
	})
}

func TestOrchestrator_Relays_Private_Message(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := repositories.NewMemoryConversationStore()
	relay := startRelay(t, store)
	bob, alice := &Sink{}, &Sink{}

	// Given A and B are both connected
	relay.orchestrator.RegisterParticipant("A", connection(), alice)
	relay.orchestrator.RegisterParticipant("B", connection(), bob)

	// When A sends "hi" to B
	req.NoError(relay.orchestrator.Dispatch(ctx, domain.SendCommand{
		ConversationID: "c1", From: "A", To: "B", Content: "hi",
	}, alice))

	// Then B receives exactly one message
	req.Eventually(func() bool { return len(bob.Events()) == 1 }, time.Second, 10*time.Millisecond)
	delivered, ok := bob.Events()[0].(event.MessageDelivered)
	req.True(ok)
	req.Equal("hi", delivered.Message.Content)
	req.Equal(domain.StatusSent, delivered.Message.Status)
	req.False(delivered.Message.IsDraft())
	req.Nil(delivered.Message.Tag)

	// And the sender is not echoed
	req.Empty(alice.Events())

	// And the history holds the very message broadcast
	history := relay.orchestrator.GetMessages(ctx, domain.GetMessagesCommand{ConversationID: "c1"})
	req.Equal([]domain.Message{delivered.Message}, history)
}

func TestOrchestrator_Offline_Recipient_Is_Still_Persisted(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := repositories.NewMemoryConversationStore()
	relay := startRelay(t, store)

	// When A sends to a B never registered
	req.NoError(relay.orchestrator.Dispatch(ctx, domain.SendCommand{
		ConversationID: "c1", From: "A", To: "B", Content: "are you there",
	}, nil))

	// Then the message is persisted but reached nobody
	req.Eventually(func() bool {
		return len(relay.orchestrator.GetMessages(ctx, domain.GetMessagesCommand{ConversationID: "c1"})) == 1
	}, time.Second, 10*time.Millisecond)
	req.Eventually(func() bool { return relay.monitor.Snapshot().OfflineRecipient == 1 }, time.Second, 10*time.Millisecond)
}

func TestOrchestrator_Keeps_Conversation_Order(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := repositories.NewMemoryConversationStore()
	relay := startRelay(t, store)
	bob := &Sink{}
	relay.orchestrator.RegisterParticipant("B", connection(), bob)
	total := 50

	// When many messages are sent in a row in the same conversation
	for i := 0; i < total; i++ {
		req.NoError(relay.orchestrator.Dispatch(ctx, domain.SendCommand{
			ConversationID: "c1", From: "A", To: "B", Content: fmt.Sprintf("m%d", i),
		}, nil))
	}

	// Then B receives them in the order they were sent
	req.Eventually(func() bool { return len(bob.Events()) == total }, 2*time.Second, 10*time.Millisecond)
	history := relay.orchestrator.GetMessages(ctx, domain.GetMessagesCommand{ConversationID: "c1"})
	req.Len(history, total)
	for i, e := range bob.Events() {
		req.Equal(fmt.Sprintf("m%d", i), e.(event.MessageDelivered).Message.Content)
		req.Equal(history[i], e.(event.MessageDelivered).Message)
		if i > 0 {
			req.True(history[i].Timestamp.After(history[i-1].Timestamp))
		}
	}
}

func TestOrchestrator_Failed_Append_Is_Never_Broadcast(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	store := mocks.NewMockIConversationStore(ctrl)

	// Given a store failing for c2
	store.EXPECT().
		Append(gomock.Any(), domain.ConversationID("c2"), gomock.Any()).
		Return(domain.Message{}, errors.ErrStoreUnavailable).
		Times(1)
	store.EXPECT().
		ListOrdered(gomock.Any(), domain.ConversationID("c2")).
		Return(nil, errors.ErrStoreUnavailable).
		Times(1)

	relay := startRelay(t, store)
	bob := &Sink{}
	relay.orchestrator.RegisterParticipant("B", connection(), bob)

	// When A sends to B in c2
	req.NoError(relay.orchestrator.Dispatch(ctx, domain.SendCommand{
		ConversationID: "c2", From: "A", To: "B", Content: "lost",
	}, nil))

	// Then the failure is observed and B receives nothing
	req.Eventually(func() bool { return relay.monitor.Snapshot().AppendFailures == 1 }, time.Second, 10*time.Millisecond)
	req.Empty(bob.Events())

	// And reading the history degrades to an empty list
	history := relay.orchestrator.GetMessages(ctx, domain.GetMessagesCommand{ConversationID: "c2"})
	req.NotNil(history)
	req.Empty(history)
	req.Equal(uint64(1), relay.monitor.Snapshot().ReadFailures)
}

func TestOrchestrator_Failing_Conversation_Does_Not_Affect_Another(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	store := mocks.NewMockIConversationStore(ctrl)
	healthy := repositories.NewMemoryConversationStore()

	// Given a store failing for c2 only
	store.EXPECT().
		Append(gomock.Any(), domain.ConversationID("c2"), gomock.Any()).
		Return(domain.Message{}, errors.ErrStoreUnavailable).
		Times(3)
	store.EXPECT().
		Append(gomock.Any(), domain.ConversationID("c1"), gomock.Any()).
		DoAndReturn(healthy.Append).
		Times(3)

	relay := startRelay(t, store)
	bob := &Sink{}
	relay.orchestrator.RegisterParticipant("B", connection(), bob)

	// When both conversations keep sending to B
	for i := 0; i < 3; i++ {
		for _, chat := range []domain.ConversationID{"c2", "c1"} {
			req.NoError(relay.orchestrator.Dispatch(ctx, domain.SendCommand{
				ConversationID: chat, From: "A", To: "B", Content: fmt.Sprintf("%s-%d", chat, i),
			}, nil))
		}
	}

	// Then every c1 message reaches B in order, none of c2
	req.Eventually(func() bool { return relay.monitor.Snapshot().AppendFailures == 3 }, time.Second, 10*time.Millisecond)
	req.Eventually(func() bool { return len(bob.Events()) == 3 }, time.Second, 10*time.Millisecond)
	req.Equal([]string{"c1-0", "c1-1", "c1-2"}, contents(bob.Events()))
}

func TestOrchestrator_Stalled_Conversation_Does_Not_Block_Another(t *testing.T) {
	req := require.New(t)
	store := newStallingStore("c2")
	relay := startRelayWith(t, store, 0, time.Minute)
	bob := &Sink{}
	relay.orchestrator.RegisterParticipant("B", connection(), bob)

	// Given an append of c2 that never returns
	req.NoError(relay.orchestrator.Dispatch(context.Background(), domain.SendCommand{
		ConversationID: "c2", From: "A", To: "B", Content: "stuck",
	}, nil))
	<-store.entered

	// Then the next sender of c2 waits
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req.ErrorIs(relay.orchestrator.Dispatch(ctx, domain.SendCommand{
		ConversationID: "c2", From: "A", To: "B", Content: "waiting",
	}, nil), context.DeadlineExceeded)

	// But c1 is still relayed while c2 stalls
	req.NoError(relay.orchestrator.Dispatch(context.Background(), domain.SendCommand{
		ConversationID: "c1", From: "C", To: "B", Content: "hi",
	}, nil))
	req.Eventually(func() bool { return len(bob.Events()) == 1 }, time.Second, 10*time.Millisecond)
	req.Equal([]string{"hi"}, contents(bob.Events()))

	// And c2 resumes once its store answers
	close(store.release)
	req.Eventually(func() bool { return len(bob.Events()) == 2 }, time.Second, 10*time.Millisecond)
	req.Equal([]string{"hi", "stuck"}, contents(bob.Events()))
}

func TestOrchestrator_Releases_Idle_Conversations(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := repositories.NewMemoryConversationStore()
	relay := startRelayWith(t, store, 10, 20*time.Millisecond)
	bob := &Sink{}
	relay.orchestrator.RegisterParticipant("B", connection(), bob)
	cmd := domain.SendCommand{ConversationID: "c1", From: "A", To: "B", Content: "first"}

	// Given a conversation that went quiet
	req.NoError(relay.orchestrator.Dispatch(ctx, cmd, nil))
	req.Eventually(func() bool { return len(bob.Events()) == 1 }, time.Second, 10*time.Millisecond)

	// Then its queue and worker are released
	req.Eventually(func() bool { return relay.orchestrator.laneCount() == 0 }, time.Second, 10*time.Millisecond)

	// And the conversation reopens on the next send, after its history
	cmd.Content = "second"
	req.NoError(relay.orchestrator.Dispatch(ctx, cmd, nil))
	req.Eventually(func() bool { return len(bob.Events()) == 2 }, time.Second, 10*time.Millisecond)
	history := relay.orchestrator.GetMessages(ctx, domain.GetMessagesCommand{ConversationID: "c1"})
	req.Len(history, 2)
	req.Equal([]string{"first", "second"}, contents(bob.Events()))
	req.True(history[1].Timestamp.After(history[0].Timestamp))
}

func TestOrchestrator_Sweep_Keeps_Conversations_In_Flight(t *testing.T) {
	req := require.New(t)
	orchestrator := newIdleOrchestrator(2)
	now := time.Now()
	orchestrator.now = func() time.Time { return now }
	cmd := domain.SendCommand{ConversationID: "c1", From: "A", To: "B", Content: "hi"}

	// Given a queued send never relayed
	req.NoError(orchestrator.Dispatch(context.Background(), cmd, nil))
	req.NoError(orchestrator.Dispatch(context.Background(), cmd, nil))
	cmd.ConversationID = "c2"
	req.NoError(orchestrator.Dispatch(context.Background(), cmd, nil))
	req.Equal(2, orchestrator.laneCount())

	// When the idle timeout is long over
	now = now.Add(time.Hour)

	// Then nothing is released
	req.Zero(orchestrator.Sweep())
	req.Equal(2, orchestrator.laneCount())
}

func TestOrchestrator_Refuses_Sends_Once_Stopped(t *testing.T) {
	req := require.New(t)
	orchestrator := newIdleOrchestrator(1)
	orchestrator.Stop()

	err := orchestrator.Dispatch(context.Background(), domain.SendCommand{
		ConversationID: "c1", From: "A", To: "B", Content: "hi",
	}, nil)

	req.ErrorIs(err, context.Canceled)
	req.Zero(orchestrator.laneCount())
}

func TestOrchestrator_Negative_Buffer_Size_Is_Clamped(t *testing.T) {
	req := require.New(t)
	req.NotPanics(func() {
		orchestrator := newIdleOrchestrator(-5)
		req.Equal(0, orchestrator.bufferSize)
	})
}

func TestOrchestrator_Dispatch_Gives_Up_When_Context_Is_Done(t *testing.T) {
	req := require.New(t)

	// Given an orchestrator never started with a single slot queue
	orchestrator := newIdleOrchestrator(1)
	cmd := domain.SendCommand{ConversationID: "c1", From: "A", To: "B", Content: "hi"}
	req.NoError(orchestrator.Dispatch(context.Background(), cmd, nil))

	// When the queue is full
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// Then the send waits until the context expires
	req.ErrorIs(orchestrator.Dispatch(ctx, cmd, nil), context.DeadlineExceeded)
}

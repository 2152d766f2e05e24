package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/runtime"
	"context"
)

type IChatService interface {
	Register(identity domain.Identity, connectionID domain.ConnectionID, sink contract.EventSink)
	Leave(connectionID domain.ConnectionID)
	SendMessage(ctx context.Context, cmd domain.SendCommand, origin contract.EventSink) error
	GetMessages(ctx context.Context, cmd domain.GetMessagesCommand) []domain.Message
}

type ChatService struct {
	orchestrator *runtime.Orchestrator
}

func NewChatService(o *runtime.Orchestrator) *ChatService {
	return &ChatService{orchestrator: o}
}

func (s *ChatService) Register(identity domain.Identity, connectionID domain.ConnectionID, sink contract.EventSink) {
	s.orchestrator.RegisterParticipant(identity, connectionID, sink)
}

func (s *ChatService) Leave(connectionID domain.ConnectionID) {
	s.orchestrator.UnregisterParticipant(connectionID)
}

// SendMessage hands the message over to its conversation queue.
// Persistence and delivery happen later, outside of the caller.
func (s *ChatService) SendMessage(ctx context.Context, cmd domain.SendCommand, origin contract.EventSink) error {
	return s.orchestrator.Dispatch(ctx, cmd, origin)
}

func (s *ChatService) GetMessages(ctx context.Context, cmd domain.GetMessagesCommand) []domain.Message {
	return s.orchestrator.GetMessages(ctx, cmd)
}

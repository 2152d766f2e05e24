package ws

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

var validate = validator.New()

const (
	registerEvent    = "register"
	getMessagesEvent = "get_messages"
	privateMessage   = "private_message"
)

// envelope is the shape of every frame, in both directions.
type envelope struct {
	Event string          `json:"event" validate:"required"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outgoing struct {
	Event event.Name `json:"event"`
	Data  any        `json:"data"`
}

// The conversation of a register frame is informative only.
type registerPayload struct {
	UserID         string `json:"userId" validate:"required"`
	ConversationID string `json:"conversationId"`
	ChatID         string `json:"chatId"`
}

type getMessagesPayload struct {
	ChatID string `json:"chatId" validate:"required"`
}

type privateMessagePayload struct {
	From    string  `json:"from" validate:"required"`
	To      string  `json:"to" validate:"required"`
	Content string  `json:"content"`
	Tag     *string `json:"tag"`
	ChatID  string  `json:"chatId" validate:"required"`
}

type messageView struct {
	ID        string  `json:"id"`
	ChatID    string  `json:"chatId"`
	From      string  `json:"from"`
	To        string  `json:"to"`
	Content   string  `json:"content"`
	Tag       *string `json:"tag"`
	Timestamp string  `json:"timestamp"`
	Status    string  `json:"status"`
}

type ackView struct {
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId,omitempty"`
	Status    string `json:"status"`
}

// decode unmarshals the data of a frame and checks its shape.
func decode[T any](data json.RawMessage) (T, error) {
	var payload T
	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, err
	}
	return payload, validate.Struct(payload)
}

func (p privateMessagePayload) toCommand() domain.SendCommand {
	return domain.SendCommand{
		ConversationID: domain.ConversationID(p.ChatID),
		From:           domain.Identity(p.From),
		To:             domain.Identity(p.To),
		Content:        p.Content,
		Tag:            p.Tag,
	}
}

func toMessageView(m domain.Message) messageView {
	return messageView{
		ID:        m.ID.String(),
		ChatID:    string(m.ConversationID),
		From:      string(m.From),
		To:        string(m.To),
		Content:   m.Content,
		Tag:       m.Tag,
		Timestamp: m.Timestamp.UTC().Format(time.RFC3339Nano),
		Status:    string(m.Status),
	}
}

// toFrame renders a domain event as the frame a client expects.
func toFrame(e event.DomainEvent) (outgoing, bool) {
	switch evt := e.(type) {
	case event.MessageDelivered:
		return outgoing{Event: evt.EventName(), Data: toMessageView(evt.Message)}, true
	case event.HistoryLoaded:
		views := lo.Map(evt.Messages, func(item domain.Message, _ int) messageView {
			return toMessageView(item)
		})
		return outgoing{Event: evt.EventName(), Data: views}, true
	case event.MessageAck:
		ack := ackView{ChatID: string(evt.ConversationID), Status: string(evt.Status)}
		if evt.Status == event.AckSent {
			ack.MessageID = evt.MessageID.String()
		}
		return outgoing{Event: evt.EventName(), Data: ack}, true
	}
	return outgoing{}, false
}

package repositories

import (
	"chat-relay/domain"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	fieldID             = "id"
	fieldConversationID = "conversation_id"
	fieldFrom           = "from"
	fieldTo             = "to"
	fieldContent        = "content"
	fieldTag            = "tag"
	fieldTimestamp      = "timestamp"
	fieldStatus         = "status"
)

// encodeMessage marshals a finalized message as a protobuf Struct.
// The timestamp is kept as RFC3339Nano text, a float64 number would lose nanoseconds.
func encodeMessage(message domain.Message) ([]byte, error) {
	fields := map[string]any{
		fieldID:             message.ID.String(),
		fieldConversationID: string(message.ConversationID),
		fieldFrom:           string(message.From),
		fieldTo:             string(message.To),
		fieldContent:        message.Content,
		fieldTimestamp:      message.Timestamp.UTC().Format(time.RFC3339Nano),
		fieldStatus:         string(message.Status),
	}
	if message.Tag != nil {
		fields[fieldTag] = *message.Tag
	}
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(st)
}

func decodeMessage(bytes []byte) (domain.Message, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(bytes, &st); err != nil {
		return domain.Message{}, err
	}
	fields := st.GetFields()

	id, err := uuid.Parse(fields[fieldID].GetStringValue())
	if err != nil {
		return domain.Message{}, fmt.Errorf("invalid message id: %w", err)
	}
	at, err := time.Parse(time.RFC3339Nano, fields[fieldTimestamp].GetStringValue())
	if err != nil {
		return domain.Message{}, fmt.Errorf("invalid message timestamp: %w", err)
	}

	message := domain.Message{
		ID:             id,
		ConversationID: domain.ConversationID(fields[fieldConversationID].GetStringValue()),
		From:           domain.Identity(fields[fieldFrom].GetStringValue()),
		To:             domain.Identity(fields[fieldTo].GetStringValue()),
		Content:        fields[fieldContent].GetStringValue(),
		Timestamp:      at.UTC(),
		Status:         domain.Status(fields[fieldStatus].GetStringValue()),
	}
	if v, ok := fields[fieldTag]; ok {
		tag := v.GetStringValue()
		message.Tag = &tag
	}
	return message, nil
}

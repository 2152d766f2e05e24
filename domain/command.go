package domain

type Command interface {
	Conversation() ConversationID
}

// SendCommand is the intent of relaying one private message.
type SendCommand struct {
	ConversationID ConversationID
	From           Identity
	To             Identity
	Content        string
	Tag            *string
}

func (s SendCommand) Conversation() ConversationID {
	return s.ConversationID
}

type GetMessagesCommand struct {
	ConversationID ConversationID
}

func (g GetMessagesCommand) Conversation() ConversationID {
	return g.ConversationID
}

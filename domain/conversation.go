package domain

// ConversationID groups the ordered history between two identities.
// Mapping a pair of identities to an id is left to the clients.
type ConversationID string

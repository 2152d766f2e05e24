// Package domain contains core concepts of the chat relay.
// This file defines identities and connections.
// No runtime, network, or UI logic should be added here.
package domain

// Identity is an opaque user identifier supplied by the client.
type Identity string

// ConnectionID identifies one live connection, it is never reused.
type ConnectionID string

//go:build tools
// +build tools

// Package tools tracks the generators run by go generate, mockgen being the only one.
// Keeping it imported pins its version in go.mod.
package chat_relay

import (
	_ "go.uber.org/mock/mockgen"
)

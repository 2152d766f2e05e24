package errors

import "fmt"

var (
	ErrWorkerPanic      = fmt.Errorf("worker panic")
	ErrStoreUnavailable = fmt.Errorf("conversation store unavailable")
	ErrUnknownBackend   = fmt.Errorf("unknown store backend")
	ErrUnknownEvent     = fmt.Errorf("unknown event")
	ErrNotRegistered    = fmt.Errorf("connection is not registered")
	ErrSinkClosed       = fmt.Errorf("sink closed")
	ErrSinkFull         = fmt.Errorf("sink buffer full")
)

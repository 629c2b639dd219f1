package memory

import "errors"

var (
	// ErrIndexClosed is returned by index operations after Close.
	ErrIndexClosed = errors.New("memory index closed")
	ErrNotFound    = errors.New("memory entry not found")
	ErrNoSaveID    = errors.New("memory index requires a save id")
)

package queue

import "errors"

var (
	// ErrQueueFull is returned when an enqueue would block; the caller's
	// transaction rolls back and the request fails rather than hanging.
	ErrQueueFull = errors.New("job queue is full")
	// ErrQueueClosed is returned after shutdown has begun.
	ErrQueueClosed = errors.New("job queue is closed")
)

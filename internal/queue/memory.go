package queue

import (
	"context"
	"sync"
)

// Memory is a channel-backed queue for tests and single-process deployments.
type Memory struct {
	mu     sync.Mutex
	jobs   chan Job
	closed bool
}

// NewMemory builds an in-memory queue with the given buffer size.
func NewMemory(buffer int) *Memory {
	if buffer <= 0 {
		buffer = 256
	}
	return &Memory{jobs: make(chan Job, buffer)}
}

// Enqueue adds a job, failing fast when the buffer is full rather than
// blocking a request handler.
func (m *Memory) Enqueue(ctx context.Context, job Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrQueueClosed
	}
	select {
	case m.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// Consume feeds queued jobs to the handler until ctx is cancelled. A job
// whose handler fails goes back on the queue for redelivery; dropping it
// would strand a pending distribution with no job behind it.
func (m *Memory) Consume(ctx context.Context, handle Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case job, ok := <-m.jobs:
			if !ok {
				return nil
			}
			if err := handle(ctx, job); err != nil {
				if requeueErr := m.Enqueue(ctx, job); requeueErr != nil {
					return requeueErr
				}
			}
		}
	}
}

// Len reports the number of queued jobs; used by tests.
func (m *Memory) Len() int {
	return len(m.jobs)
}

// Close stops accepting new jobs.
func (m *Memory) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.jobs)
	}
}

package webhook

import (
	"context"
	"sort"
	"sync"
	"time"

	"tunecast/internal/distribution"
)

// OrphanEvent is a webhook that referenced a submission ID we do not know.
// They are kept for the reconciliation job and for operator inspection; a
// burst of orphans usually means a platform is replaying an old feed.
type OrphanEvent struct {
	Platform     distribution.Platform
	SubmissionID string
	Event        string
	Payload      []byte
	ReceivedAt   time.Time
}

// ReconcileStore persists orphan events.
type ReconcileStore interface {
	RecordOrphan(ctx context.Context, orphan OrphanEvent) error
	Orphans(ctx context.Context, platform distribution.Platform) ([]OrphanEvent, error)
}

// InMemoryReconcileStore backs tests and single-process deployments.
type InMemoryReconcileStore struct {
	mu      sync.RWMutex
	orphans []OrphanEvent
}

func NewInMemoryReconcileStore() *InMemoryReconcileStore {
	return &InMemoryReconcileStore{}
}

func (s *InMemoryReconcileStore) RecordOrphan(_ context.Context, orphan OrphanEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orphans = append(s.orphans, orphan)
	return nil
}

func (s *InMemoryReconcileStore) Orphans(_ context.Context, platform distribution.Platform) ([]OrphanEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []OrphanEvent
	for _, orphan := range s.orphans {
		if orphan.Platform == platform {
			out = append(out, orphan)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	return out, nil
}

package distribution

import (
	"context"
	"sort"
	"sync"

	id "tunecast/pkg/domain"
	dErrors "tunecast/pkg/domain-errors"
)

// InMemoryStore backs unit tests and local development. WithinTx snapshots
// all maps and restores them when fn fails, matching the rollback behavior
// of the Postgres store. A single store-wide mutex held for the transaction
// keeps per-row mutations serialized.
type InMemoryStore struct {
	mu            sync.Mutex
	distributions map[id.DistributionID]Distribution
	events        map[id.DistributionID][]Event
	batches       map[id.BatchID]BulkBatch
	inTx          bool
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		distributions: make(map[id.DistributionID]Distribution),
		events:        make(map[id.DistributionID][]Event),
		batches:       make(map[id.BatchID]BulkBatch),
	}
}

type memTxKey struct{}

func (s *InMemoryStore) locked(ctx context.Context) bool {
	held, _ := ctx.Value(memTxKey{}).(bool)
	return held
}

func (s *InMemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapDistributions := make(map[id.DistributionID]Distribution, len(s.distributions))
	for k, v := range s.distributions {
		snapDistributions[k] = v
	}
	snapEvents := make(map[id.DistributionID][]Event, len(s.events))
	for k, v := range s.events {
		snapEvents[k] = append([]Event(nil), v...)
	}
	snapBatches := make(map[id.BatchID]BulkBatch, len(s.batches))
	for k, v := range s.batches {
		snapBatches[k] = v
	}

	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		s.distributions = snapDistributions
		s.events = snapEvents
		s.batches = snapBatches
		return err
	}
	return nil
}

func (s *InMemoryStore) lockUnlessTx(ctx context.Context) func() {
	if s.locked(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *InMemoryStore) Create(ctx context.Context, d *Distribution) error {
	defer s.lockUnlessTx(ctx)()
	if _, exists := s.distributions[d.ID]; exists {
		return dErrors.New(dErrors.CodeConflict, "distribution already exists")
	}
	// Mirrors the schema's UNIQUE (release_id, platform_code).
	for _, existing := range s.distributions {
		if existing.ReleaseID == d.ReleaseID && existing.Platform == d.Platform {
			return dErrors.New(dErrors.CodeConflict, "distribution already exists for release and platform")
		}
	}
	s.distributions[d.ID] = *d
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, distributionID id.DistributionID) (*Distribution, error) {
	defer s.lockUnlessTx(ctx)()
	return s.get(distributionID)
}

// GetForUpdate has the same visibility as Get; mutual exclusion comes from
// the store-wide transaction lock.
func (s *InMemoryStore) GetForUpdate(ctx context.Context, distributionID id.DistributionID) (*Distribution, error) {
	defer s.lockUnlessTx(ctx)()
	return s.get(distributionID)
}

func (s *InMemoryStore) get(distributionID id.DistributionID) (*Distribution, error) {
	if d, ok := s.distributions[distributionID]; ok {
		copied := d
		return &copied, nil
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "distribution not found")
}

func (s *InMemoryStore) Update(ctx context.Context, d *Distribution) error {
	defer s.lockUnlessTx(ctx)()
	if _, ok := s.distributions[d.ID]; !ok {
		return dErrors.New(dErrors.CodeNotFound, "distribution not found")
	}
	s.distributions[d.ID] = *d
	return nil
}

func (s *InMemoryStore) ByPlatformSubmission(ctx context.Context, platform Platform, submissionID string) (*Distribution, error) {
	defer s.lockUnlessTx(ctx)()
	for _, d := range s.distributions {
		if d.Platform == platform && d.PlatformSubmissionID == submissionID {
			copied := d
			return &copied, nil
		}
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "no distribution for platform submission")
}

func (s *InMemoryStore) AppendEvent(ctx context.Context, event Event) error {
	defer s.lockUnlessTx(ctx)()
	s.events[event.DistributionID] = append(s.events[event.DistributionID], event)
	return nil
}

func (s *InMemoryStore) Events(ctx context.Context, distributionID id.DistributionID) ([]Event, error) {
	defer s.lockUnlessTx(ctx)()
	events := append([]Event(nil), s.events[distributionID]...)
	sort.Slice(events, func(i, j int) bool {
		return events[i].OccurredAt.Before(events[j].OccurredAt)
	})
	return events, nil
}

func (s *InMemoryStore) CreateBatch(ctx context.Context, batch *BulkBatch) error {
	defer s.lockUnlessTx(ctx)()
	if _, exists := s.batches[batch.ID]; exists {
		return dErrors.New(dErrors.CodeConflict, "batch already exists")
	}
	s.batches[batch.ID] = *batch
	return nil
}

func (s *InMemoryStore) Batch(ctx context.Context, batchID id.BatchID) (*BulkBatch, error) {
	defer s.lockUnlessTx(ctx)()
	if batch, ok := s.batches[batchID]; ok {
		copied := batch
		return &copied, nil
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "batch not found")
}

func (s *InMemoryStore) BatchMembers(ctx context.Context, batchID id.BatchID) ([]*Distribution, error) {
	defer s.lockUnlessTx(ctx)()
	var members []*Distribution
	for _, d := range s.distributions {
		if d.BatchID != nil && *d.BatchID == batchID {
			copied := d
			members = append(members, &copied)
		}
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].CreatedAt.Before(members[j].CreatedAt)
	})
	return members, nil
}

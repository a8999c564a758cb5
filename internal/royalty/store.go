package royalty

import (
	"context"
	"sort"
	"sync"

	id "tunecast/pkg/domain"
)

// Store persists revenue records keyed by (distribution, period).
type Store interface {
	// Upsert replaces any existing record for the same distribution and
	// period.
	Upsert(ctx context.Context, record RevenueRecord) error
	// ByDistribution returns records ordered by period ascending.
	ByDistribution(ctx context.Context, distID id.DistributionID) ([]RevenueRecord, error)
}

// InMemoryStore backs tests and single-process deployments.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[id.DistributionID]map[string]RevenueRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[id.DistributionID]map[string]RevenueRecord)}
}

func (s *InMemoryStore) Upsert(_ context.Context, record RevenueRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	periods, ok := s.records[record.DistributionID]
	if !ok {
		periods = make(map[string]RevenueRecord)
		s.records[record.DistributionID] = periods
	}
	periods[record.Period] = record
	return nil
}

func (s *InMemoryStore) ByDistribution(_ context.Context, distID id.DistributionID) ([]RevenueRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []RevenueRecord
	for _, record := range s.records[distID] {
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out, nil
}

package isrc

import (
	"context"
	"fmt"
	"sync"

	id "tunecast/pkg/domain"
	dErrors "tunecast/pkg/domain-errors"
)

// InMemoryStore keeps issued codes in process; mirrors the uniqueness
// behavior of the Postgres store so service tests exercise collision paths.
type InMemoryStore struct {
	mu      sync.RWMutex
	byCode  map[string]Code
	byTuple map[string]string // registrant|year|designation -> code
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byCode:  make(map[string]Code),
		byTuple: make(map[string]string),
	}
}

func tupleKey(registrant string, year, designation int) string {
	return fmt.Sprintf("%s|%02d|%05d", registrant, year, designation)
}

func (s *InMemoryStore) Create(_ context.Context, code *Code) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := tupleKey(code.RegistrantCode, code.Year, code.DesignationNumber)
	if _, exists := s.byTuple[key]; exists {
		return dErrors.New(dErrors.CodeConflict, "designation number already issued")
	}
	if _, exists := s.byCode[code.Code]; exists {
		return dErrors.New(dErrors.CodeConflict, "code already issued")
	}

	s.byCode[code.Code] = *code
	s.byTuple[key] = code.Code
	return nil
}

func (s *InMemoryStore) ByCode(_ context.Context, code string) (*Code, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if found, ok := s.byCode[code]; ok {
		copied := found
		return &copied, nil
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "code not found")
}

func (s *InMemoryStore) ActiveByRelease(_ context.Context, releaseID id.ReleaseID) (*Code, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, code := range s.byCode {
		if code.ReleaseID == releaseID && code.Status == StatusActive {
			copied := code
			return &copied, nil
		}
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "no active code for release")
}

func (s *InMemoryStore) MaxDesignation(_ context.Context, registrant string, year int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	max := 0
	for _, code := range s.byCode {
		if code.RegistrantCode == registrant && code.Year == year && code.DesignationNumber > max {
			max = code.DesignationNumber
		}
	}
	return max, nil
}

func (s *InMemoryStore) UpdateStatus(_ context.Context, code string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	found, ok := s.byCode[code]
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "code not found")
	}
	found.Status = status
	s.byCode[code] = found
	return nil
}

func (s *InMemoryStore) SetCleared(_ context.Context, code string, cleared bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	found, ok := s.byCode[code]
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "code not found")
	}
	found.ClearedForDistribution = cleared
	s.byCode[code] = found
	return nil
}

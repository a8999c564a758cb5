package catalog

import (
	"context"
	"sync"

	id "tunecast/pkg/domain"
	dErrors "tunecast/pkg/domain-errors"
)

// InMemoryCatalog backs tests and local development; production deployments
// wire a client for the catalog service instead.
type InMemoryCatalog struct {
	mu       sync.RWMutex
	releases map[id.ReleaseID]Release
}

func NewInMemoryCatalog() *InMemoryCatalog {
	return &InMemoryCatalog{releases: make(map[id.ReleaseID]Release)}
}

// Put seeds a release.
func (c *InMemoryCatalog) Put(release Release) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releases[release.ID] = release
}

func (c *InMemoryCatalog) Release(_ context.Context, releaseID id.ReleaseID) (*Release, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if release, ok := c.releases[releaseID]; ok {
		copied := release
		return &copied, nil
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "release not found")
}

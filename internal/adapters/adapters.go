// Package adapters abstracts the per-platform delivery APIs. The worker
// talks to every streaming platform through the same small interface; each
// implementation owns its request shaping and credential handling.
package adapters

import (
	"context"
	"fmt"

	"tunecast/internal/distribution"
)

// Result is the platform's answer to a submission attempt. A rejected
// submission is not a transport error: the call succeeded, the content
// was refused.
type Result struct {
	SubmissionID string
	Accepted     bool
	Reason       string
}

// Adapter delivers one platform's submit and takedown calls.
type Adapter interface {
	Platform() distribution.Platform
	Submit(ctx context.Context, d *distribution.Distribution) (Result, error)
	Remove(ctx context.Context, d *distribution.Distribution) error
}

// Registry maps platforms to their adapters.
type Registry struct {
	adapters map[distribution.Platform]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[distribution.Platform]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Platform()] = a
	}
	return r
}

// Lookup returns the adapter for a platform.
func (r *Registry) Lookup(platform distribution.Platform) (Adapter, error) {
	a, ok := r.adapters[platform]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for platform %q", string(platform))
	}
	return a, nil
}

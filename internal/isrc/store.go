package isrc

import (
	"context"

	id "tunecast/pkg/domain"
)

// Store persists issued codes. Create must fail with a CodeConflict domain
// error when (registrant, year, designation) already exists so the service
// can retry issuance with a fresh number.
type Store interface {
	Create(ctx context.Context, code *Code) error
	ByCode(ctx context.Context, code string) (*Code, error)
	ActiveByRelease(ctx context.Context, releaseID id.ReleaseID) (*Code, error)
	MaxDesignation(ctx context.Context, registrant string, year int) (int, error)
	UpdateStatus(ctx context.Context, code string, status Status) error
	SetCleared(ctx context.Context, code string, cleared bool) error
}

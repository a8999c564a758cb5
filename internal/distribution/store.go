package distribution

import (
	"context"

	id "tunecast/pkg/domain"
)

// Store persists distributions, their status timeline, and bulk batches.
//
// WithinTx runs fn with transactional semantics: every write made through
// the fn's context is rolled back when fn returns an error. The orchestrator
// uses this to guarantee row creation and job enqueue succeed or fail
// together. GetForUpdate serializes per-row mutation: inside a transaction
// it takes a row-level lock so a retry and a webhook cannot race.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error

	Create(ctx context.Context, d *Distribution) error
	Get(ctx context.Context, distributionID id.DistributionID) (*Distribution, error)
	GetForUpdate(ctx context.Context, distributionID id.DistributionID) (*Distribution, error)
	Update(ctx context.Context, d *Distribution) error
	ByPlatformSubmission(ctx context.Context, platform Platform, submissionID string) (*Distribution, error)

	AppendEvent(ctx context.Context, event Event) error
	Events(ctx context.Context, distributionID id.DistributionID) ([]Event, error)

	CreateBatch(ctx context.Context, batch *BulkBatch) error
	Batch(ctx context.Context, batchID id.BatchID) (*BulkBatch, error)
	BatchMembers(ctx context.Context, batchID id.BatchID) ([]*Distribution, error)
}

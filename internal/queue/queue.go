// Package queue defines the asynchronous job contract between the
// orchestrator and the submission workers. The same orchestration code runs
// against the in-memory queue in tests and the Kafka queue in production.
package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	id "tunecast/pkg/domain"
)

// Kind distinguishes the work a job carries.
type Kind string

const (
	// KindSubmit delivers a distribution to its platform.
	KindSubmit Kind = "submit"
	// KindRemove takes a live distribution down from its platform.
	KindRemove Kind = "remove"
)

// Job is one unit of asynchronous work keyed by distribution.
type Job struct {
	ID             uuid.UUID         `json:"id"`
	Kind           Kind              `json:"kind"`
	DistributionID id.DistributionID `json:"distribution_id"`
	Attempt        int               `json:"attempt"`
	EnqueuedAt     time.Time         `json:"enqueued_at"`
}

// NewSubmitJob builds a submission job for a distribution.
func NewSubmitJob(distributionID id.DistributionID, attempt int) Job {
	return Job{
		ID:             uuid.New(),
		Kind:           KindSubmit,
		DistributionID: distributionID,
		Attempt:        attempt,
		EnqueuedAt:     time.Now().UTC(),
	}
}

// NewRemoveJob builds a removal job for a distribution.
func NewRemoveJob(distributionID id.DistributionID) Job {
	return Job{
		ID:             uuid.New(),
		Kind:           KindRemove,
		DistributionID: distributionID,
		EnqueuedAt:     time.Now().UTC(),
	}
}

// Queue accepts jobs for asynchronous execution.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
}

// Handler processes one job. Returning an error leaves redelivery to the
// consumer implementation; handlers must be idempotent.
type Handler func(ctx context.Context, job Job) error

// Consumer feeds jobs to a handler until the context is cancelled.
type Consumer interface {
	Consume(ctx context.Context, handle Handler) error
}

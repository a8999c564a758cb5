package adapters

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"tunecast/internal/distribution"
)

// Sandbox is an in-process adapter used in development deployments where no
// platform endpoint is configured, and in tests. It accepts everything
// unless the distribution's metadata asks otherwise.
type Sandbox struct {
	platform distribution.Platform

	mu        sync.Mutex
	submitted map[string]bool
}

func NewSandbox(platform distribution.Platform) *Sandbox {
	return &Sandbox{platform: platform, submitted: make(map[string]bool)}
}

func (s *Sandbox) Platform() distribution.Platform { return s.platform }

// Submit accepts the distribution with a generated submission ID. Setting
// distribution metadata key "sandbox" to "reject" forces a rejection, which
// lets tests drive the failure path end to end.
func (s *Sandbox) Submit(_ context.Context, d *distribution.Distribution) (Result, error) {
	if strings.EqualFold(d.DistributionMetadata["sandbox"], "reject") {
		return Result{Accepted: false, Reason: "rejected by sandbox"}, nil
	}

	submissionID := string(s.platform) + "-" + uuid.NewString()
	s.mu.Lock()
	s.submitted[submissionID] = true
	s.mu.Unlock()
	return Result{SubmissionID: submissionID, Accepted: true}, nil
}

func (s *Sandbox) Remove(_ context.Context, d *distribution.Distribution) error {
	s.mu.Lock()
	delete(s.submitted, d.PlatformSubmissionID)
	s.mu.Unlock()
	return nil
}

// Submitted reports whether a submission ID is held by the sandbox.
func (s *Sandbox) Submitted(submissionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitted[submissionID]
}

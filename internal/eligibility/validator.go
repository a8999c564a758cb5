// Package eligibility decides whether a release may be submitted at all and
// validates caller-supplied submission parameters. The orchestrator runs
// both checks before any distribution row exists.
package eligibility

import (
	"context"
	"time"

	"tunecast/internal/catalog"
	"tunecast/internal/distribution"
	"tunecast/internal/isrc"
	dErrors "tunecast/pkg/domain-errors"
)

// CodeRegistry is the slice of the ISRC registry the validator needs.
type CodeRegistry interface {
	ActiveCodeForRelease(ctx context.Context, release *catalog.Release) (*isrc.Code, error)
}

// SubmissionParams are the caller-supplied knobs for one submission.
// ValidateParams normalizes them in place (territory default).
type SubmissionParams struct {
	Platforms       []distribution.Platform
	ReleaseDate     time.Time
	Territories     []string
	ContentAdvisory string
	PriceTier       string
}

// Validator checks releases and params; it has no side effects.
type Validator struct {
	registry CodeRegistry
	now      func() time.Time
}

type Option func(*Validator)

// WithClock overrides the time source used for past-date checks.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

func NewValidator(registry CodeRegistry, opts ...Option) *Validator {
	v := &Validator{registry: registry, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// minDurationSeconds is the shortest recording platforms accept.
const minDurationSeconds = 30

// CheckEligible verifies the release is published, meets the minimum
// technical requirements, and carries one active, cleared registry code,
// returning that code for metadata carry-over.
func (v *Validator) CheckEligible(ctx context.Context, release *catalog.Release) (*isrc.Code, error) {
	if !release.Published() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "release is not published")
	}
	if release.DurationSeconds < minDurationSeconds {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "release duration must be at least %d seconds", minDurationSeconds)
	}
	if release.FileSizeBytes <= 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "release has no audio file")
	}

	code, err := v.registry.ActiveCodeForRelease(ctx, release)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, dErrors.New(dErrors.CodeBadRequest, "release has no active registry code")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up registry code")
	}
	if !code.ClearedForDistribution {
		return nil, dErrors.New(dErrors.CodeBadRequest, "registry code is not cleared for distribution")
	}
	return code, nil
}

// ValidateParams validates caller-supplied submission parameters
// independently of any release. Territories default to worldwide.
func (v *Validator) ValidateParams(params *SubmissionParams) error {
	if len(params.Platforms) == 0 {
		return dErrors.New(dErrors.CodeValidation, "platforms must not be empty")
	}
	seen := make(map[distribution.Platform]bool, len(params.Platforms))
	for _, platform := range params.Platforms {
		if !platform.Supported() {
			return dErrors.Newf(dErrors.CodeValidation, "unknown platform code %q", string(platform))
		}
		if seen[platform] {
			return dErrors.Newf(dErrors.CodeValidation, "platform %q listed twice", string(platform))
		}
		seen[platform] = true
	}

	if !params.ReleaseDate.IsZero() && params.ReleaseDate.Before(startOfDay(v.now())) {
		return dErrors.New(dErrors.CodeValidation, "release_date must not be in the past")
	}

	if len(params.Territories) == 0 {
		params.Territories = []string{"worldwide"}
	}
	return nil
}

func startOfDay(t time.Time) time.Time {
	year, month, day := t.UTC().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

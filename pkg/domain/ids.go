// Package domain holds typed identifiers shared across features. Distinct
// UUID wrappers keep a release ID from being passed where a distribution ID
// is expected; the compiler enforces what code review would otherwise catch.
package domain

import (
	"github.com/google/uuid"

	dErrors "tunecast/pkg/domain-errors"
)

type (
	// ReleaseID identifies a song or album owned by the catalog system.
	ReleaseID uuid.UUID
	// DistributionID identifies one (release, platform) submission record.
	DistributionID uuid.UUID
	// BatchID identifies a bulk submission grouping.
	BatchID uuid.UUID
	// UserID identifies the authenticated artist or label account.
	UserID uuid.UUID
)

func (id ReleaseID) String() string      { return uuid.UUID(id).String() }
func (id DistributionID) String() string { return uuid.UUID(id).String() }
func (id BatchID) String() string        { return uuid.UUID(id).String() }
func (id UserID) String() string         { return uuid.UUID(id).String() }

func (id ReleaseID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id DistributionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id BatchID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }

// NewReleaseID returns a fresh random release ID.
func NewReleaseID() ReleaseID { return ReleaseID(uuid.New()) }

// NewDistributionID returns a fresh random distribution ID.
func NewDistributionID() DistributionID { return DistributionID(uuid.New()) }

// NewBatchID returns a fresh random batch ID.
func NewBatchID() BatchID { return BatchID(uuid.New()) }

// NewUserID returns a fresh random user ID.
func NewUserID() UserID { return UserID(uuid.New()) }

func parse(raw, kind string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeValidation, "%s is required", kind)
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeValidation, "%s is not a valid UUID", kind)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeValidation, "%s must not be the nil UUID", kind)
	}
	return parsed, nil
}

// ParseReleaseID validates and parses a release ID from its string form.
func ParseReleaseID(raw string) (ReleaseID, error) {
	parsed, err := parse(raw, "release_id")
	return ReleaseID(parsed), err
}

// ParseDistributionID validates and parses a distribution ID from its string form.
func ParseDistributionID(raw string) (DistributionID, error) {
	parsed, err := parse(raw, "distribution_id")
	return DistributionID(parsed), err
}

// ParseBatchID validates and parses a bulk batch ID from its string form.
func ParseBatchID(raw string) (BatchID, error) {
	parsed, err := parse(raw, "batch_id")
	return BatchID(parsed), err
}

// ParseUserID validates and parses a user ID from its string form.
func ParseUserID(raw string) (UserID, error) {
	parsed, err := parse(raw, "user_id")
	return UserID(parsed), err
}

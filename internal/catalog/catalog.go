// Package catalog is the read-only boundary to the catalog system that owns
// releases. This core references releases by ID and never mutates them.
package catalog

import (
	"context"

	id "tunecast/pkg/domain"
)

// PublishStatus is the catalog-side lifecycle of a release.
type PublishStatus string

const (
	StatusDraft     PublishStatus = "draft"
	StatusPublished PublishStatus = "published"
	StatusArchived  PublishStatus = "archived"
)

// Release is the slice of the catalog entity this core reads: publish state,
// ownership, and the technical properties platforms require.
type Release struct {
	ID              id.ReleaseID
	ArtistID        id.UserID
	Title           string
	Status          PublishStatus
	Active          bool
	Explicit        bool
	DurationSeconds int
	FileSizeBytes   int64
}

// Published reports whether the release is visible in the catalog.
func (r *Release) Published() bool {
	return r.Status == StatusPublished && r.Active
}

// OwnedBy reports whether the given user owns this release.
func (r *Release) OwnedBy(userID id.UserID) bool {
	return r.ArtistID == userID
}

// Catalog looks up releases by ID.
type Catalog interface {
	Release(ctx context.Context, releaseID id.ReleaseID) (*Release, error)
}

// Package distribution owns the per-(release, platform) submission record
// and its lifecycle. Rows are created by the orchestrator, mutated only by
// the webhook state machine, the retry manager, and explicit removal
// requests, and never deleted; terminal states stay for audit and royalties.
package distribution

import (
	"time"

	id "tunecast/pkg/domain"
)

// Status is the externally observable lifecycle state of one submission.
type Status string

const (
	StatusPending          Status = "pending"
	StatusProcessing       Status = "processing"
	StatusLive             Status = "live"
	StatusFailed           Status = "failed"
	StatusRemovalRequested Status = "removal_requested"
	StatusRemoved          Status = "removed"
)

// Platform identifies a supported streaming platform.
type Platform string

const (
	PlatformSpotify      Platform = "spotify"
	PlatformAppleMusic   Platform = "apple_music"
	PlatformYouTubeMusic Platform = "youtube_music"
	PlatformAmazonMusic  Platform = "amazon_music"
	PlatformDeezer       Platform = "deezer"
	PlatformTidal        Platform = "tidal"
)

// SupportedPlatforms is the fixed enumeration submissions are validated
// against; unknown platform codes are a 422.
var SupportedPlatforms = map[Platform]string{
	PlatformSpotify:      "Spotify",
	PlatformAppleMusic:   "Apple Music",
	PlatformYouTubeMusic: "YouTube Music",
	PlatformAmazonMusic:  "Amazon Music",
	PlatformDeezer:       "Deezer",
	PlatformTidal:        "Tidal",
}

// Name returns the display name for a supported platform.
func (p Platform) Name() string {
	return SupportedPlatforms[p]
}

// Supported reports whether p is in the fixed platform enumeration.
func (p Platform) Supported() bool {
	_, ok := SupportedPlatforms[p]
	return ok
}

// Distribution tracks one release's submission to one platform.
type Distribution struct {
	ID        id.DistributionID
	ReleaseID id.ReleaseID
	BatchID   *id.BatchID
	Platform  Platform
	Status    Status
	ISRC      string

	// Territories carries territorial restrictions merged from the registry
	// code and submission params.
	Territories []string

	// DistributionMetadata holds submission params carried to the platform
	// (release date, content advisory, price tier).
	DistributionMetadata map[string]string
	// PlatformMetadata holds values reported back by the platform.
	PlatformMetadata map[string]string

	RetryCount           int
	ErrorMessage         string
	PlatformSubmissionID string
	PlatformURL          string
	LiveDate             *time.Time
	RemovalRequestedAt   *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Event is one entry in a distribution's status timeline.
type Event struct {
	DistributionID id.DistributionID
	Status         Status
	Message        string
	OccurredAt     time.Time
}

// BulkBatch groups many per-release, per-platform distributions submitted
// together. It carries no status of its own; progress is a view over its
// member distributions so there is no second source of truth to drift.
type BulkBatch struct {
	ID        id.BatchID
	CreatedBy id.UserID
	Releases  []id.ReleaseID
	Platforms []Platform
	CreatedAt time.Time
}

// BatchProgress is the aggregate view computed by scanning batch members.
type BatchProgress struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Live       int `json:"live"`
	Failed     int `json:"failed"`
	Removed    int `json:"removed"`
}

// Completed reports whether every member reached a settled state.
func (p BatchProgress) Completed() bool {
	return p.Total > 0 && p.Pending == 0 && p.Processing == 0
}

// Package royalty ingests per-period revenue reports from platforms and
// computes the artist-facing earnings split.
package royalty

import (
	"math"
	"regexp"
	"time"

	id "tunecast/pkg/domain"
)

// periodPattern is the reporting period, e.g. "2026-03".
var periodPattern = regexp.MustCompile(`^[0-9]{4}-(0[1-9]|1[0-2])$`)

// ValidPeriod reports whether s is a YYYY-MM reporting period.
func ValidPeriod(s string) bool {
	return periodPattern.MatchString(s)
}

// RevenueRecord is one platform's revenue for one distribution and period.
// Re-reporting a period replaces the previous figures; platforms restate
// periods when their own accounting corrects itself.
type RevenueRecord struct {
	DistributionID id.DistributionID
	Period         string
	Streams        int64
	Revenue        float64
	Currency       string
	ReportedAt     time.Time
}

// ReportLine is one period of a royalty report with the fee split applied.
type ReportLine struct {
	Period         string  `json:"period"`
	Streams        int64   `json:"streams"`
	GrossRevenue   float64 `json:"gross_revenue"`
	PlatformFee    float64 `json:"platform_fee"`
	ServiceFee     float64 `json:"service_fee"`
	ArtistEarnings float64 `json:"artist_earnings"`
	Currency       string  `json:"currency"`
}

// Report is the aggregated royalty view for one distribution.
type Report struct {
	DistributionID      id.DistributionID `json:"distribution_id"`
	Lines               []ReportLine      `json:"lines"`
	TotalStreams        int64             `json:"total_streams"`
	TotalGrossRevenue   float64           `json:"total_gross_revenue"`
	TotalArtistEarnings float64           `json:"total_artist_earnings"`
}

// roundCents rounds money to two decimal places.
func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

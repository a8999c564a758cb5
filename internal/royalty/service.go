package royalty

import (
	"context"
	"log/slog"
	"time"

	"tunecast/internal/distribution"
	dErrors "tunecast/pkg/domain-errors"
)

// FeeSchedule carries the split percentages applied to gross revenue.
type FeeSchedule struct {
	PlatformFeePercent float64
	ServiceFeePercent  float64
}

// Service validates and stores revenue reports and renders royalty reports.
type Service struct {
	store         Store
	distributions distribution.Store
	fees          FeeSchedule
	logger        *slog.Logger
	now           func() time.Time
}

type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(store Store, distributions distribution.Store, fees FeeSchedule, logger *slog.Logger, opts ...Option) *Service {
	svc := &Service{
		store:         store,
		distributions: distributions,
		fees:          fees,
		logger:        logger,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Fees returns the configured split percentages.
func (s *Service) Fees() FeeSchedule {
	return s.fees
}

// RecordRevenue upserts one period's figures for a distribution. Revenue
// only makes sense for a distribution that is live or was live before its
// removal; anything else indicates a platform reporting against the wrong
// catalog entry.
func (s *Service) RecordRevenue(ctx context.Context, record RevenueRecord) error {
	if !ValidPeriod(record.Period) {
		return dErrors.Newf(dErrors.CodeValidation, "period %q is not in YYYY-MM form", record.Period)
	}
	if record.Streams < 0 {
		return dErrors.New(dErrors.CodeValidation, "streams must not be negative")
	}
	if record.Revenue < 0 {
		return dErrors.New(dErrors.CodeValidation, "revenue must not be negative")
	}
	if record.Currency == "" {
		record.Currency = "USD"
	}

	d, err := s.distributions.Get(ctx, record.DistributionID)
	if err != nil {
		return err
	}
	if !earnsRevenue(d) {
		return dErrors.Newf(dErrors.CodeBadRequest, "distribution in status %s cannot earn revenue", string(d.Status))
	}

	record.Revenue = roundCents(record.Revenue)
	record.ReportedAt = s.now().UTC()
	if err := s.store.Upsert(ctx, record); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store revenue record")
	}

	s.logger.InfoContext(ctx, "revenue recorded",
		"distribution_id", record.DistributionID.String(),
		"period", record.Period,
		"streams", record.Streams,
	)
	return nil
}

// Report aggregates recorded periods for a distribution and applies the fee
// schedule per period, rounding each money figure to cents. A non-empty
// period restricts the report to that single period.
func (s *Service) Report(ctx context.Context, d *distribution.Distribution, period string) (*Report, error) {
	if period != "" && !ValidPeriod(period) {
		return nil, dErrors.New(dErrors.CodeValidation, "period must be YYYY-MM")
	}
	records, err := s.store.ByDistribution(ctx, d.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load revenue records")
	}

	report := &Report{DistributionID: d.ID, Lines: make([]ReportLine, 0, len(records))}
	for _, record := range records {
		if period != "" && record.Period != period {
			continue
		}
		platformFee := roundCents(record.Revenue * s.fees.PlatformFeePercent / 100)
		serviceFee := roundCents(record.Revenue * s.fees.ServiceFeePercent / 100)
		line := ReportLine{
			Period:         record.Period,
			Streams:        record.Streams,
			GrossRevenue:   record.Revenue,
			PlatformFee:    platformFee,
			ServiceFee:     serviceFee,
			ArtistEarnings: roundCents(record.Revenue - platformFee - serviceFee),
			Currency:       record.Currency,
		}
		report.Lines = append(report.Lines, line)
		report.TotalStreams += line.Streams
		report.TotalGrossRevenue = roundCents(report.TotalGrossRevenue + line.GrossRevenue)
		report.TotalArtistEarnings = roundCents(report.TotalArtistEarnings + line.ArtistEarnings)
	}
	return report, nil
}

// earnsRevenue allows live distributions and removed ones that were live,
// since final payout periods arrive after a takedown.
func earnsRevenue(d *distribution.Distribution) bool {
	switch d.Status {
	case distribution.StatusLive, distribution.StatusRemovalRequested:
		return true
	case distribution.StatusRemoved:
		return d.LiveDate != nil
	default:
		return false
	}
}

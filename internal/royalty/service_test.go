package royalty_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tunecast/internal/distribution"
	"tunecast/internal/royalty"
	id "tunecast/pkg/domain"
	dErrors "tunecast/pkg/domain-errors"
)

type fixture struct {
	service       *royalty.Service
	distributions *distribution.InMemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	distributions := distribution.NewInMemoryStore()
	service := royalty.New(
		royalty.NewInMemoryStore(),
		distributions,
		royalty.FeeSchedule{PlatformFeePercent: 15, ServiceFeePercent: 10},
		slog.New(slog.DiscardHandler),
	)
	return &fixture{service: service, distributions: distributions}
}

func (f *fixture) seed(t *testing.T, status distribution.Status, liveDate *time.Time) *distribution.Distribution {
	t.Helper()
	d := &distribution.Distribution{
		ID:        id.NewDistributionID(),
		ReleaseID: id.NewReleaseID(),
		Platform:  distribution.PlatformSpotify,
		Status:    status,
		ISRC:      "US-AB1-26-00042",
		LiveDate:  liveDate,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, f.distributions.Create(context.Background(), d))
	return d
}

func liveAt(t time.Time) *time.Time { return &t }

func TestRecordRevenue_Validation(t *testing.T) {
	f := newFixture(t)
	d := f.seed(t, distribution.StatusLive, liveAt(time.Now()))

	cases := map[string]royalty.RevenueRecord{
		"bad period":       {DistributionID: d.ID, Period: "2026-3", Streams: 1, Revenue: 1},
		"bad month":        {DistributionID: d.ID, Period: "2026-13", Streams: 1, Revenue: 1},
		"negative streams": {DistributionID: d.ID, Period: "2026-03", Streams: -1, Revenue: 1},
		"negative revenue": {DistributionID: d.ID, Period: "2026-03", Streams: 1, Revenue: -0.01},
	}
	for name, record := range cases {
		t.Run(name, func(t *testing.T) {
			err := f.service.RecordRevenue(context.Background(), record)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

func TestRecordRevenue_StateGate(t *testing.T) {
	f := newFixture(t)

	for _, tc := range []struct {
		status   distribution.Status
		liveDate *time.Time
		ok       bool
	}{
		{distribution.StatusPending, nil, false},
		{distribution.StatusProcessing, nil, false},
		{distribution.StatusFailed, nil, false},
		{distribution.StatusLive, liveAt(time.Now()), true},
		{distribution.StatusRemovalRequested, liveAt(time.Now()), true},
		{distribution.StatusRemoved, liveAt(time.Now()), true},
		{distribution.StatusRemoved, nil, false},
	} {
		name := string(tc.status)
		if tc.status == distribution.StatusRemoved && tc.liveDate == nil {
			name = "removed_never_live"
		}
		t.Run(name, func(t *testing.T) {
			d := f.seed(t, tc.status, tc.liveDate)
			err := f.service.RecordRevenue(context.Background(), royalty.RevenueRecord{
				DistributionID: d.ID, Period: "2026-03", Streams: 100, Revenue: 1.23,
			})
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
			}
		})
	}
}

func TestRecordRevenue_ReplacesPeriod(t *testing.T) {
	f := newFixture(t)
	d := f.seed(t, distribution.StatusLive, liveAt(time.Now()))

	require.NoError(t, f.service.RecordRevenue(context.Background(), royalty.RevenueRecord{
		DistributionID: d.ID, Period: "2026-03", Streams: 100, Revenue: 10,
	}))
	// Platform restates the period; the new figures replace, not add.
	require.NoError(t, f.service.RecordRevenue(context.Background(), royalty.RevenueRecord{
		DistributionID: d.ID, Period: "2026-03", Streams: 120, Revenue: 12,
	}))

	report, err := f.service.Report(context.Background(), d, "")
	require.NoError(t, err)
	require.Len(t, report.Lines, 1)
	assert.Equal(t, int64(120), report.Lines[0].Streams)
	assert.Equal(t, 12.0, report.Lines[0].GrossRevenue)
}

func TestReport_FeeSplit(t *testing.T) {
	f := newFixture(t)
	d := f.seed(t, distribution.StatusLive, liveAt(time.Now()))

	require.NoError(t, f.service.RecordRevenue(context.Background(), royalty.RevenueRecord{
		DistributionID: d.ID, Period: "2026-02", Streams: 1000, Revenue: 100, Currency: "USD",
	}))
	require.NoError(t, f.service.RecordRevenue(context.Background(), royalty.RevenueRecord{
		DistributionID: d.ID, Period: "2026-03", Streams: 333, Revenue: 3.33,
	}))

	report, err := f.service.Report(context.Background(), d, "")
	require.NoError(t, err)
	require.Len(t, report.Lines, 2)

	first := report.Lines[0]
	assert.Equal(t, "2026-02", first.Period)
	assert.Equal(t, 15.0, first.PlatformFee)
	assert.Equal(t, 10.0, first.ServiceFee)
	assert.Equal(t, 75.0, first.ArtistEarnings)

	second := report.Lines[1]
	assert.Equal(t, 0.5, second.PlatformFee)
	assert.Equal(t, 0.33, second.ServiceFee)
	assert.Equal(t, 2.5, second.ArtistEarnings)
	assert.Equal(t, "USD", second.Currency, "currency defaults to USD")

	assert.Equal(t, int64(1333), report.TotalStreams)
	assert.Equal(t, 103.33, report.TotalGrossRevenue)
	assert.Equal(t, 77.5, report.TotalArtistEarnings)
}

func TestReport_PeriodFilter(t *testing.T) {
	f := newFixture(t)
	d := f.seed(t, distribution.StatusLive, liveAt(time.Now()))

	require.NoError(t, f.service.RecordRevenue(context.Background(), royalty.RevenueRecord{
		DistributionID: d.ID, Period: "2026-02", Streams: 1000, Revenue: 100,
	}))
	require.NoError(t, f.service.RecordRevenue(context.Background(), royalty.RevenueRecord{
		DistributionID: d.ID, Period: "2026-03", Streams: 333, Revenue: 3.33,
	}))

	report, err := f.service.Report(context.Background(), d, "2026-03")
	require.NoError(t, err)
	require.Len(t, report.Lines, 1)
	assert.Equal(t, "2026-03", report.Lines[0].Period)
	assert.Equal(t, int64(333), report.TotalStreams)

	_, err = f.service.Report(context.Background(), d, "march")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestReport_EmptyIsEmpty(t *testing.T) {
	f := newFixture(t)
	d := f.seed(t, distribution.StatusLive, liveAt(time.Now()))

	report, err := f.service.Report(context.Background(), d, "")
	require.NoError(t, err)
	assert.Empty(t, report.Lines)
	assert.Zero(t, report.TotalGrossRevenue)
}

func TestValidPeriod(t *testing.T) {
	assert.True(t, royalty.ValidPeriod("2026-01"))
	assert.True(t, royalty.ValidPeriod("1999-12"))
	assert.False(t, royalty.ValidPeriod("2026-00"))
	assert.False(t, royalty.ValidPeriod("2026-1"))
	assert.False(t, royalty.ValidPeriod("26-01"))
	assert.False(t, royalty.ValidPeriod(""))
}

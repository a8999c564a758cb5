package isrc

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"tunecast/internal/catalog"
	"tunecast/internal/platform/config"
	dErrors "tunecast/pkg/domain-errors"
)

// issuanceLockTTL bounds how long a crashed issuer can hold the lock.
const issuanceLockTTL = 10 * time.Second

// Service issues codes for the configured registrant. Issuance is serialized
// per registrant+year; a uniqueness collision at insert time is retried once
// with a freshly computed number before surfacing as a conflict.
type Service struct {
	country    string
	registrant string
	store      Store
	locker     Locker
	logger     *slog.Logger
	issued     prometheus.Counter
	now        func() time.Time
}

type Option func(*Service)

// WithClock overrides the time source; tests pin the year boundary with it.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIssuedCounter counts successful issuances.
func WithIssuedCounter(counter prometheus.Counter) Option {
	return func(s *Service) { s.issued = counter }
}

func NewService(cfg config.RegistryConfig, store Store, locker Locker, logger *slog.Logger, opts ...Option) *Service {
	// ISRC segments are uppercase; a lowercase-configured registrant would
	// render codes that fail format validation.
	svc := &Service{
		country:    strings.ToUpper(cfg.CountryCode),
		registrant: strings.ToUpper(cfg.RegistrantCode),
		store:      store,
		locker:     locker,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Issue returns the active code for the release, creating one when none
// exists. A release has at most one active code, so repeated calls are
// idempotent.
func (s *Service) Issue(ctx context.Context, release *catalog.Release, territories []string) (*Code, error) {
	if !ValidRegistrant(s.registrant) {
		return nil, dErrors.New(dErrors.CodeInternal, "registrant code must be exactly 3 alphanumeric characters")
	}

	if existing, err := s.store.ActiveByRelease(ctx, release.ID); err == nil {
		return existing, nil
	} else if !dErrors.HasCode(err, dErrors.CodeNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up existing code")
	}

	year := s.now().UTC().Year() % 100
	lockKey := s.registrant + ":" + twoDigit(year)
	unlock, err := s.locker.Acquire(ctx, lockKey, issuanceLockTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to acquire issuance lock")
	}
	defer unlock()

	code, err := s.issueNext(ctx, release, territories, year)
	if dErrors.HasCode(err, dErrors.CodeConflict) {
		// Lost a race with a concurrent issuer; recompute once. A second
		// collision is an integrity problem for operators, not the caller.
		s.logger.WarnContext(ctx, "designation collision, retrying issuance",
			"registrant", s.registrant,
			"year", year,
			"release_id", release.ID.String(),
		)
		code, err = s.issueNext(ctx, release, territories, year)
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			s.logger.ErrorContext(ctx, "repeated designation collision",
				"registrant", s.registrant,
				"year", year,
				"release_id", release.ID.String(),
			)
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "duplicate code after retry")
		}
	}
	return code, err
}

func (s *Service) issueNext(ctx context.Context, release *catalog.Release, territories []string, year int) (*Code, error) {
	max, err := s.store.MaxDesignation(ctx, s.registrant, year)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to compute next designation number")
	}
	next := max + 1
	if next > MaxDesignation {
		// Not a collision: recomputing hits the same ceiling, so this must
		// bypass the retry-once path in Issue.
		return nil, dErrors.Newf(dErrors.CodeCapacityExceeded, "registrant %s exhausted designation numbers for year %02d", s.registrant, year)
	}

	rendered := FormatCode(s.country, s.registrant, year, next)
	if !ValidFormat(rendered) {
		return nil, dErrors.Newf(dErrors.CodeInternal, "generated code %q fails format validation", rendered)
	}

	code := &Code{
		Code:                    rendered,
		CountryCode:             s.country,
		RegistrantCode:          s.registrant,
		Year:                    year,
		DesignationNumber:       next,
		ReleaseID:               release.ID,
		Status:                  StatusActive,
		ClearedForDistribution:  false,
		TerritorialRestrictions: territories,
		CreatedAt:               s.now().UTC(),
	}
	if err := s.store.Create(ctx, code); err != nil {
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist code")
	}

	if s.issued != nil {
		s.issued.Inc()
	}
	s.logger.InfoContext(ctx, "isrc issued",
		"code", rendered,
		"release_id", release.ID.String(),
	)
	return code, nil
}

// ValidateFormat reports whether code matches the canonical pattern.
func (s *Service) ValidateFormat(code string) bool {
	return ValidFormat(code)
}

// Exists reports whether a code has been issued; pure read.
func (s *Service) Exists(ctx context.Context, code string) (bool, error) {
	_, err := s.store.ByCode(ctx, code)
	if err == nil {
		return true, nil
	}
	if dErrors.HasCode(err, dErrors.CodeNotFound) {
		return false, nil
	}
	return false, err
}

// ActiveCodeForRelease returns the release's single active code.
func (s *Service) ActiveCodeForRelease(ctx context.Context, release *catalog.Release) (*Code, error) {
	return s.store.ActiveByRelease(ctx, release.ID)
}

// Clear marks a code as cleared for distribution.
func (s *Service) Clear(ctx context.Context, code string) error {
	if err := s.store.SetCleared(ctx, code, true); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "isrc cleared for distribution", "code", code)
	return nil
}

// Revoke deactivates a code; the release may then be issued a fresh one.
func (s *Service) Revoke(ctx context.Context, code string) error {
	if err := s.store.UpdateStatus(ctx, code, StatusRevoked); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "isrc revoked", "code", code)
	return nil
}

func twoDigit(year int) string {
	const digits = "0123456789"
	return string([]byte{digits[(year/10)%10], digits[year%10]})
}

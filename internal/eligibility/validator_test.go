package eligibility

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tunecast/internal/catalog"
	"tunecast/internal/distribution"
	"tunecast/internal/isrc"
	id "tunecast/pkg/domain"
	dErrors "tunecast/pkg/domain-errors"
)

type stubRegistry struct {
	code *isrc.Code
	err  error
}

func (s *stubRegistry) ActiveCodeForRelease(context.Context, *catalog.Release) (*isrc.Code, error) {
	return s.code, s.err
}

func publishedRelease() *catalog.Release {
	return &catalog.Release{
		ID:              id.NewReleaseID(),
		ArtistID:        id.NewUserID(),
		Status:          catalog.StatusPublished,
		Active:          true,
		DurationSeconds: 180,
		FileSizeBytes:   4 << 20,
	}
}

func clearedCode() *isrc.Code {
	return &isrc.Code{
		Code:                   "US-AB1-26-00001",
		Status:                 isrc.StatusActive,
		ClearedForDistribution: true,
	}
}

func TestCheckEligible(t *testing.T) {
	t.Run("published release with cleared code passes", func(t *testing.T) {
		v := NewValidator(&stubRegistry{code: clearedCode()})
		code, err := v.CheckEligible(context.Background(), publishedRelease())
		require.NoError(t, err)
		assert.Equal(t, "US-AB1-26-00001", code.Code)
	})

	t.Run("unpublished release rejected", func(t *testing.T) {
		v := NewValidator(&stubRegistry{code: clearedCode()})
		release := publishedRelease()
		release.Status = catalog.StatusDraft
		_, err := v.CheckEligible(context.Background(), release)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("inactive release rejected", func(t *testing.T) {
		v := NewValidator(&stubRegistry{code: clearedCode()})
		release := publishedRelease()
		release.Active = false
		_, err := v.CheckEligible(context.Background(), release)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("too-short recording rejected", func(t *testing.T) {
		v := NewValidator(&stubRegistry{code: clearedCode()})
		release := publishedRelease()
		release.DurationSeconds = 12
		_, err := v.CheckEligible(context.Background(), release)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("missing audio file rejected", func(t *testing.T) {
		v := NewValidator(&stubRegistry{code: clearedCode()})
		release := publishedRelease()
		release.FileSizeBytes = 0
		_, err := v.CheckEligible(context.Background(), release)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("missing code rejected", func(t *testing.T) {
		v := NewValidator(&stubRegistry{err: dErrors.New(dErrors.CodeNotFound, "no active code for release")})
		_, err := v.CheckEligible(context.Background(), publishedRelease())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("uncleared code rejected", func(t *testing.T) {
		code := clearedCode()
		code.ClearedForDistribution = false
		v := NewValidator(&stubRegistry{code: code})
		_, err := v.CheckEligible(context.Background(), publishedRelease())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func TestValidateParams(t *testing.T) {
	fixed := time.Date(2026, time.May, 10, 12, 0, 0, 0, time.UTC)
	v := NewValidator(&stubRegistry{}, WithClock(func() time.Time { return fixed }))

	t.Run("unknown platform is a validation error", func(t *testing.T) {
		err := v.ValidateParams(&SubmissionParams{
			Platforms: []distribution.Platform{"bogus_platform"},
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("empty platforms rejected", func(t *testing.T) {
		err := v.ValidateParams(&SubmissionParams{})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("duplicate platform rejected", func(t *testing.T) {
		err := v.ValidateParams(&SubmissionParams{
			Platforms: []distribution.Platform{distribution.PlatformSpotify, distribution.PlatformSpotify},
		})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("past release date rejected", func(t *testing.T) {
		err := v.ValidateParams(&SubmissionParams{
			Platforms:   []distribution.Platform{distribution.PlatformSpotify},
			ReleaseDate: fixed.AddDate(0, 0, -1),
		})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("same-day release date accepted", func(t *testing.T) {
		err := v.ValidateParams(&SubmissionParams{
			Platforms:   []distribution.Platform{distribution.PlatformSpotify},
			ReleaseDate: fixed.Add(2 * time.Hour),
		})
		assert.NoError(t, err)
	})

	t.Run("territories default to worldwide", func(t *testing.T) {
		params := &SubmissionParams{Platforms: []distribution.Platform{distribution.PlatformTidal}}
		require.NoError(t, v.ValidateParams(params))
		assert.Equal(t, []string{"worldwide"}, params.Territories)
	})
}

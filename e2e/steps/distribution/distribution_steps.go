package distribution

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}) error
	GET(path string, headers map[string]string) error
	LastStatus() int
	GetResponseField(field string) (interface{}, error)
	GetReleaseID() string
	GetDistributionID() string
	SetDistributionID(id string)
	GetBatchID() string
	SetBatchID(id string)
	SetSubmissionID(id string)
}

// RegisterSteps registers distribution lifecycle step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &distributionSteps{tc: tc}

	ctx.Step(`^I submit the seeded release to platforms "([^"]*)"$`, steps.submitSeededRelease)
	ctx.Step(`^I save the first distribution ID$`, steps.saveFirstDistributionID)
	ctx.Step(`^I request the distribution status$`, steps.requestStatus)
	ctx.Step(`^I wait up to (\d+) seconds for the distribution to be "([^"]*)"$`, steps.waitForStatus)
	ctx.Step(`^the distribution status should be "([^"]*)"$`, steps.statusShouldBe)
	ctx.Step(`^the timeline should have at least (\d+) entries$`, steps.timelineShouldHaveEntries)
	ctx.Step(`^I request a retry for the distribution$`, steps.requestRetry)
	ctx.Step(`^I request removal with reason "([^"]*)"$`, steps.requestRemoval)
	ctx.Step(`^I request the batch status$`, steps.requestBatchStatus)
	ctx.Step(`^I record royalties for period "([^"]*)" with (\d+) streams and revenue ([0-9.]+)$`, steps.recordRoyalties)
	ctx.Step(`^I request the royalty report$`, steps.requestRoyaltyReport)
}

type distributionSteps struct {
	tc TestContext
}

func (s *distributionSteps) submitSeededRelease(ctx context.Context, platforms string) error {
	if s.tc.GetReleaseID() == "" {
		return fmt.Errorf("TUNECAST_E2E_RELEASE_ID is not set")
	}
	body := map[string]interface{}{
		"song_id":   s.tc.GetReleaseID(),
		"platforms": strings.Split(platforms, ","),
	}
	return s.tc.POST("/api/v1/distributions", body)
}

func (s *distributionSteps) saveFirstDistributionID(ctx context.Context) error {
	raw, err := s.tc.GetResponseField("distributions")
	if err != nil {
		return err
	}
	list, ok := raw.([]interface{})
	if !ok || len(list) == 0 {
		return fmt.Errorf("response has no distributions")
	}
	first, ok := list[0].(map[string]interface{})
	if !ok {
		return fmt.Errorf("distribution entry is not an object")
	}
	distID, ok := first["id"].(string)
	if !ok {
		return fmt.Errorf("distribution entry has no id")
	}
	s.tc.SetDistributionID(distID)
	return nil
}

func (s *distributionSteps) requestStatus(ctx context.Context) error {
	return s.tc.GET("/api/v1/distributions/"+s.tc.GetDistributionID()+"/status", nil)
}

// waitForStatus polls the status endpoint until the submission worker has
// moved the distribution to the expected state.
func (s *distributionSteps) waitForStatus(ctx context.Context, seconds int, expected string) error {
	deadline := time.Now().Add(time.Duration(seconds) * time.Second)
	for {
		if err := s.requestStatus(ctx); err != nil {
			return err
		}
		value, err := s.tc.GetResponseField("distribution.status")
		if err == nil && value == expected {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("distribution did not reach %q within %d seconds, last status %v", expected, seconds, value)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func (s *distributionSteps) statusShouldBe(ctx context.Context, expected string) error {
	value, err := s.tc.GetResponseField("distribution.status")
	if err != nil {
		return err
	}
	if value != expected {
		return fmt.Errorf("expected distribution status %q, got %v", expected, value)
	}
	return nil
}

func (s *distributionSteps) timelineShouldHaveEntries(ctx context.Context, minimum int) error {
	raw, err := s.tc.GetResponseField("timeline")
	if err != nil {
		return err
	}
	list, ok := raw.([]interface{})
	if !ok {
		return fmt.Errorf("timeline is not a list")
	}
	if len(list) < minimum {
		return fmt.Errorf("expected at least %d timeline entries, got %d", minimum, len(list))
	}
	return nil
}

func (s *distributionSteps) requestRetry(ctx context.Context) error {
	return s.tc.POST("/api/v1/distributions/"+s.tc.GetDistributionID()+"/retry", map[string]interface{}{})
}

func (s *distributionSteps) requestRemoval(ctx context.Context, reason string) error {
	return s.tc.POST("/api/v1/distributions/"+s.tc.GetDistributionID()+"/removal", map[string]interface{}{
		"reason": reason,
	})
}

func (s *distributionSteps) requestBatchStatus(ctx context.Context) error {
	return s.tc.GET("/api/v1/distributions/batches/"+s.tc.GetBatchID(), nil)
}

func (s *distributionSteps) recordRoyalties(ctx context.Context, period string, streams int, revenue string) error {
	body := map[string]interface{}{
		"period":  period,
		"streams": streams,
		"revenue": parseFloat(revenue),
	}
	return s.tc.POST("/api/v1/distributions/"+s.tc.GetDistributionID()+"/royalties", body)
}

func (s *distributionSteps) requestRoyaltyReport(ctx context.Context) error {
	return s.tc.GET("/api/v1/distributions/"+s.tc.GetDistributionID()+"/royalty-report", nil)
}

func parseFloat(raw string) float64 {
	var v float64
	fmt.Sscanf(raw, "%f", &v)
	return v
}

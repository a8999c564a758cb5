package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/cucumber/godog"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POSTRaw(path string, payload []byte, headers map[string]string) error
	GetResponseField(field string) (interface{}, error)
	GetSubmissionID() string
	SetSubmissionID(id string)
	GetWebhookSecret() string
}

// RegisterSteps registers platform webhook step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &webhookSteps{tc: tc}

	ctx.Step(`^I save the platform submission ID$`, steps.savePlatformSubmissionID)
	ctx.Step(`^the platform "([^"]*)" reports the submission "([^"]*)"$`, steps.platformReportsEvent)
	ctx.Step(`^the platform "([^"]*)" reports the submission "([^"]*)" again$`, steps.platformReportsEvent)
}

type webhookSteps struct {
	tc TestContext
}

func (s *webhookSteps) savePlatformSubmissionID(ctx context.Context) error {
	value, err := s.tc.GetResponseField("distribution.platform_submission_id")
	if err != nil {
		return err
	}
	submissionID, ok := value.(string)
	if !ok || submissionID == "" {
		return fmt.Errorf("distribution has no platform submission ID yet")
	}
	s.tc.SetSubmissionID(submissionID)
	return nil
}

func (s *webhookSteps) platformReportsEvent(ctx context.Context, platform, event string) error {
	if s.tc.GetWebhookSecret() == "" {
		return fmt.Errorf("TUNECAST_E2E_WEBHOOK_SECRET is not set")
	}

	payload, err := json.Marshal(map[string]interface{}{
		"delivery_id":   uuid.NewString(),
		"event":         event,
		"submission_id": s.tc.GetSubmissionID(),
	})
	if err != nil {
		return err
	}
	signature, err := sign(s.tc.GetWebhookSecret(), platform, payload)
	if err != nil {
		return err
	}
	return s.tc.POSTRaw("/api/v1/webhooks/"+platform, payload, map[string]string{
		"X-Tunecast-Signature": signature,
	})
}

// sign derives the per-platform key the same way the server does and signs
// the payload with it.
func sign(masterSecret, platform string, payload []byte) (string, error) {
	reader := hkdf.New(sha256.New, []byte(masterSecret), []byte("tunecast-webhook"), []byte(platform))
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return "", fmt.Errorf("derive webhook key: %w", err)
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

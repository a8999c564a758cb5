package e2e

import (
	"github.com/cucumber/godog"

	"tunecast/e2e/steps/common"
	"tunecast/e2e/steps/distribution"
	"tunecast/e2e/steps/webhook"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Register common steps (generic requests, status and field assertions)
	common.RegisterSteps(ctx, tc)

	// Register distribution lifecycle steps
	distribution.RegisterSteps(ctx, tc)

	// Register platform webhook steps
	webhook.RegisterSteps(ctx, tc)
}

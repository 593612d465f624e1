package endpoints

import (
	"github.com/Yslas262/shopify-setup/internal/api"
)

// All returns all endpoint instances.
func All() []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&StatusEndpoint{},

		// Setup endpoints
		&RunSetupEndpoint{},
		&UploadSetupEndpoint{},
		&ResumeSetupEndpoint{},
		&RunStepEndpoint{},
		&ListStepsEndpoint{},
	}
}

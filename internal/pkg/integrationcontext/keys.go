package integrationcontext

// Shared Locals keys used across controllers and middlewares
const (
	KeyContext       = "INTEGRATION_CONTEXT"
	KeyIntegration   = "integration"
	KeyIntegrationID = "integration_id"
	KeyClientID      = "client_id"
	KeySecretID      = "integration_secret_id"
)

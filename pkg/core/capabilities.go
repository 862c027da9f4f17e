package core

type Capability string // Capabilities of services

const (
	CapabilityNotifier Capability = "NOTIFIER"
	CapabilityAPI      Capability = "API"
	CapabilityTrigger  Capability = "TRIGGER"
	// CapabilitySecrets plugins answer "get_secrets" with map[string]string.
	// Every returned value is registered with the job's masker.
	CapabilitySecrets Capability = "SECRETS"
)

// ServiceStatus is reported by plugins on the plugin API.
type ServiceStatus string

const (
	StatusHealthy   ServiceStatus = "HEALTHY"
	StatusUnhealthy ServiceStatus = "UNHEALTHY"
	StatusUnknown   ServiceStatus = "UNKNOWN"
	StatusDegraded  ServiceStatus = "DEGRADED"
)

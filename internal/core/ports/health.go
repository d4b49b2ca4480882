package ports

import "context"

// HealthChecker is a dependency checked by the readiness endpoint.
type HealthChecker interface {
	// Ping returns nil when the dependency is reachable.
	Ping(ctx context.Context) error
	// Name labels the dependency in health output ("postgresql", "redis", "memory").
	Name() string
}

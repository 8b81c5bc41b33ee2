package models

import (
	"strings"
	"time"
)

// EndpointStatus controls whether an endpoint is eligible for traffic at all.
type EndpointStatus string

const (
	StatusActive   EndpointStatus = "active"
	StatusInactive EndpointStatus = "inactive"
)

// HealthStatus is the classification written by the health monitor.
type HealthStatus string

const (
	HealthUnknown   HealthStatus = "unknown"
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// Usable reports whether the health classification allows selection.
func (h HealthStatus) Usable() bool {
	return h == HealthHealthy || h == HealthDegraded
}

// ParseHealthStatus maps stored text onto a HealthStatus, defaulting to unknown.
func ParseHealthStatus(value string) HealthStatus {
	switch HealthStatus(strings.ToLower(strings.TrimSpace(value))) {
	case HealthHealthy:
		return HealthHealthy
	case HealthDegraded:
		return HealthDegraded
	case HealthUnhealthy:
		return HealthUnhealthy
	default:
		return HealthUnknown
	}
}

// Auth types understood by the dispatcher.
const (
	AuthNone   = "none"
	AuthBearer = "bearer"
	AuthAPIKey = "api_key"
	AuthBasic  = "basic"
)

// Configuration keys read from Endpoint.Configuration.
const (
	ConfigHealthCheckURL  = "health_check_url"
	ConfigHealthCheckPath = "health_check_path"
	ConfigTimeoutSeconds  = "timeout_seconds"
	ConfigAPIKey          = "api_key"
	ConfigAPIKeyHeader    = "api_key_header"
	ConfigToken           = "token"
	ConfigUsername        = "username"
	ConfigPassword        = "password"
)

// Endpoint is one interchangeable backend implementing the orchestrated capability.
type Endpoint struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	BaseURL  string `json:"base_url"`
	AuthType string `json:"auth_type,omitempty"`

	RateLimitPerMinute int `json:"rate_limit_per_minute"`
	RateLimitPerHour   int `json:"rate_limit_per_hour"`

	Status                 EndpointStatus `json:"status"`
	HealthStatus           HealthStatus   `json:"health_status"`
	AllowAutomaticFailover bool           `json:"allow_automatic_failover"`
	FailoverPriority       int            `json:"failover_priority"`

	AverageResponseTime float64 `json:"average_response_time_ms"`
	SuccessRate         float64 `json:"success_rate"`
	TotalRequests       int64   `json:"total_requests"`
	TotalErrors         int64   `json:"total_errors"`
	TotalAssigned       int64   `json:"total_assigned"`

	CurrentUsageMinute int `json:"current_usage_minute"`
	CurrentUsageHour   int `json:"current_usage_hour"`

	LastHealthCheck time.Time `json:"last_health_check"`
	LastError       string    `json:"last_error,omitempty"`

	Configuration map[string]any `json:"configuration,omitempty"`
}

// Clone returns a copy that shares no mutable state with e.
func (e Endpoint) Clone() Endpoint {
	if e.Configuration != nil {
		cfg := make(map[string]any, len(e.Configuration))
		for k, v := range e.Configuration {
			cfg[k] = v
		}
		e.Configuration = cfg
	}
	return e
}

// ConfigString returns a string configuration value, or "" when absent.
func (e Endpoint) ConfigString(key string) string {
	if e.Configuration == nil {
		return ""
	}
	if v, ok := e.Configuration[key].(string); ok {
		return v
	}
	return ""
}

// ConfigDuration reads a numeric seconds value from the configuration.
func (e Endpoint) ConfigDuration(key string) time.Duration {
	if e.Configuration == nil {
		return 0
	}
	switch v := e.Configuration[key].(type) {
	case float64:
		return time.Duration(v * float64(time.Second))
	case int:
		return time.Duration(v) * time.Second
	case int64:
		return time.Duration(v) * time.Second
	default:
		return 0
	}
}

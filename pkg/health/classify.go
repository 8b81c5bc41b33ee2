package health

import (
	"time"

	"apiorch/pkg/models"
	"apiorch/pkg/transport"
)

const (
	// HealthyLatency is the upper bound for a healthy 2xx probe.
	HealthyLatency = time.Second
	// DegradedLatency is the upper bound for a degraded 2xx probe.
	DegradedLatency = 5 * time.Second
)

// Classify maps one probe outcome onto a health status.
func Classify(statusCode int, latency time.Duration, err error) models.HealthStatus {
	if err != nil {
		return models.HealthUnhealthy
	}
	if statusCode < 200 || statusCode > 299 {
		return models.HealthUnhealthy
	}
	switch {
	case latency < HealthyLatency:
		return models.HealthHealthy
	case latency < DegradedLatency:
		return models.HealthDegraded
	default:
		return models.HealthUnhealthy
	}
}

// ProbeURL resolves where an endpoint is probed.
func ProbeURL(ep models.Endpoint) string {
	if u := ep.ConfigString(models.ConfigHealthCheckURL); u != "" {
		return u
	}
	if path := ep.ConfigString(models.ConfigHealthCheckPath); path != "" {
		return transport.JoinURL(ep.BaseURL, path)
	}
	return transport.JoinURL(ep.BaseURL, "/health")
}

package models

import "time"

// StatusReport summarizes the pool for dashboards and ops tooling.
type StatusReport struct {
	Total          int        `json:"total"`
	HealthyCount   int        `json:"healthy_count"`
	DegradedCount  int        `json:"degraded_count"`
	UnhealthyCount int        `json:"unhealthy_count"`
	UnknownCount   int        `json:"unknown_count"`
	Strategy       string     `json:"strategy"`
	Endpoints      []Endpoint `json:"endpoints"`
	GeneratedAt    time.Time  `json:"generated_at"`
}

// StateSnapshot is the subset of runtime state synchronized back to the store.
type StateSnapshot struct {
	Name                string       `json:"name" msgpack:"name"`
	HealthStatus        HealthStatus `json:"health_status" msgpack:"health_status"`
	AverageResponseTime float64      `json:"average_response_time_ms" msgpack:"average_response_time_ms"`
	SuccessRate         float64      `json:"success_rate" msgpack:"success_rate"`
	TotalRequests       int64        `json:"total_requests" msgpack:"total_requests"`
	TotalErrors         int64        `json:"total_errors" msgpack:"total_errors"`
	CurrentUsageMinute  int          `json:"current_usage_minute" msgpack:"current_usage_minute"`
	CurrentUsageHour    int          `json:"current_usage_hour" msgpack:"current_usage_hour"`
	LastHealthCheck     time.Time    `json:"last_health_check" msgpack:"last_health_check"`
}

// SnapshotOf extracts the persisted state of an endpoint.
func SnapshotOf(e Endpoint) StateSnapshot {
	return StateSnapshot{
		Name:                e.Name,
		HealthStatus:        e.HealthStatus,
		AverageResponseTime: e.AverageResponseTime,
		SuccessRate:         e.SuccessRate,
		TotalRequests:       e.TotalRequests,
		TotalErrors:         e.TotalErrors,
		CurrentUsageMinute:  e.CurrentUsageMinute,
		CurrentUsageHour:    e.CurrentUsageHour,
		LastHealthCheck:     e.LastHealthCheck,
	}
}

package registry

import (
	"net/url"

	"apiorch/pkg/models"
)

var knownAuthTypes = map[string]bool{
	"":                 true,
	models.AuthNone:   true,
	models.AuthBearer: true,
	models.AuthAPIKey: true,
	models.AuthBasic:  true,
}

// Validate checks the static part of an endpoint record.
func Validate(ep models.Endpoint) error {
	if ep.Name == "" {
		return &ConfigurationError{Endpoint: ep.BaseURL, Field: "name", Reason: "is required"}
	}

	parsed, err := url.Parse(ep.BaseURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return &ConfigurationError{Endpoint: ep.Name, Field: "base_url", Reason: "must be an absolute http(s) URL"}
	}

	if ep.RateLimitPerMinute < 0 {
		return &ConfigurationError{Endpoint: ep.Name, Field: "rate_limit_per_minute", Reason: "must not be negative"}
	}
	if ep.RateLimitPerHour < 0 {
		return &ConfigurationError{Endpoint: ep.Name, Field: "rate_limit_per_hour", Reason: "must not be negative"}
	}

	if !knownAuthTypes[ep.AuthType] {
		return &ConfigurationError{Endpoint: ep.Name, Field: "auth_type", Reason: "is not supported"}
	}

	switch ep.Status {
	case models.StatusActive, models.StatusInactive:
	default:
		return &ConfigurationError{Endpoint: ep.Name, Field: "status", Reason: "must be active or inactive"}
	}

	return nil
}

package models

import (
	"net/http"
	"time"
)

// Request describes one logical call, independent of which endpoint serves it.
type Request struct {
	ID         string
	Path       string
	Method     string
	Headers    http.Header
	Body       []byte
	Timeout    time.Duration
	MaxRetries *int
	Priority   int
}

// Response is what the orchestrator hands back for a successful call.
type Response struct {
	StatusCode int           `json:"status_code"`
	Headers    http.Header   `json:"headers,omitempty"`
	Body       []byte        `json:"-"`
	Latency    time.Duration `json:"latency"`
	Endpoint   string        `json:"endpoint"`
	Success    bool          `json:"success"`
	Error      string        `json:"error,omitempty"`
}

// RequestLogEntry is the immutable audit record of a single attempt.
type RequestLogEntry struct {
	ID             string            `json:"id" msgpack:"id"`
	RequestID      string            `json:"request_id" msgpack:"request_id"`
	Endpoint       string            `json:"endpoint" msgpack:"endpoint"`
	Attempt        int               `json:"attempt" msgpack:"attempt"`
	Method         string            `json:"method" msgpack:"method"`
	Path           string            `json:"path" msgpack:"path"`
	RequestHeaders map[string]string `json:"request_headers,omitempty" msgpack:"request_headers,omitempty"`
	RequestSize    int               `json:"request_size" msgpack:"request_size"`
	StatusCode     int               `json:"status_code,omitempty" msgpack:"status_code,omitempty"`
	ResponseSize   int               `json:"response_size" msgpack:"response_size"`
	Success        bool              `json:"success" msgpack:"success"`
	Error          string            `json:"error,omitempty" msgpack:"error,omitempty"`
	LatencyMs      float64           `json:"latency_ms" msgpack:"latency_ms"`
	Timestamp      time.Time         `json:"timestamp" msgpack:"timestamp"`
}

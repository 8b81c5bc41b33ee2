package sqlstore

// Schema contains the SQL statements to create the orchestrator database schema.
// Timestamps are stored as unix nanoseconds so range queries compare integers.
const Schema = `
-- Endpoints table: static configuration plus the last synchronized runtime state
CREATE TABLE IF NOT EXISTS endpoints (
    id                       INTEGER PRIMARY KEY AUTOINCREMENT,
    name                     TEXT UNIQUE NOT NULL,
    base_url                 TEXT NOT NULL,
    auth_type                TEXT NOT NULL DEFAULT 'none',
    rate_limit_per_minute    INTEGER NOT NULL DEFAULT 0,
    rate_limit_per_hour      INTEGER NOT NULL DEFAULT 0,
    status                   TEXT NOT NULL DEFAULT 'active',
    health_status            TEXT NOT NULL DEFAULT 'unknown',
    allow_automatic_failover BOOLEAN NOT NULL DEFAULT TRUE,
    failover_priority        INTEGER NOT NULL DEFAULT 0,
    average_response_time    REAL NOT NULL DEFAULT 0,
    success_rate             REAL NOT NULL DEFAULT 1,
    total_requests           INTEGER NOT NULL DEFAULT 0,
    total_errors             INTEGER NOT NULL DEFAULT 0,
    current_usage_minute     INTEGER NOT NULL DEFAULT 0,
    current_usage_hour       INTEGER NOT NULL DEFAULT 0,
    last_health_check        INTEGER NOT NULL DEFAULT 0,
    configuration            TEXT,
    created_at               INTEGER NOT NULL,
    updated_at               INTEGER NOT NULL
);

-- Request logs table: one immutable row per dispatch attempt
CREATE TABLE IF NOT EXISTS request_logs (
    id              TEXT PRIMARY KEY,
    request_id      TEXT NOT NULL,
    endpoint        TEXT NOT NULL,
    attempt         INTEGER NOT NULL,
    method          TEXT NOT NULL,
    path            TEXT NOT NULL,
    request_headers TEXT,
    request_size    INTEGER NOT NULL DEFAULT 0,
    status_code     INTEGER NOT NULL DEFAULT 0,
    response_size   INTEGER NOT NULL DEFAULT 0,
    success         BOOLEAN NOT NULL,
    error           TEXT,
    latency_ms      REAL NOT NULL DEFAULT 0,
    timestamp       INTEGER NOT NULL
);

-- Indexes for performance
CREATE INDEX IF NOT EXISTS idx_endpoints_status ON endpoints(status, failover_priority);
CREATE INDEX IF NOT EXISTS idx_request_logs_request ON request_logs(request_id);
CREATE INDEX IF NOT EXISTS idx_request_logs_endpoint ON request_logs(endpoint);
CREATE INDEX IF NOT EXISTS idx_request_logs_timestamp ON request_logs(timestamp);
`

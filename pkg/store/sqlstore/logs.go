package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"apiorch/pkg/models"
)

// Append stores one request log entry.
func (s *Store) Append(ctx context.Context, entry models.RequestLogEntry) error {
	headers, err := encodeJSON(entry.RequestHeaders)
	if err != nil {
		return fmt.Errorf("%w: encode headers: %w", ErrDatabaseError, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO request_logs (id, request_id, endpoint, attempt, method, path, request_headers,
			request_size, status_code, response_size, success, error, latency_ms, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.RequestID, entry.Endpoint, entry.Attempt, entry.Method, entry.Path, headers,
		entry.RequestSize, entry.StatusCode, entry.ResponseSize, entry.Success, entry.Error,
		entry.LatencyMs, entry.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return nil
}

// Prune removes entries logged before olderThan and reports how many were dropped.
func (s *Store) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM request_logs WHERE timestamp < ?`, olderThan.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return removed, nil
}

// RequestAttempts returns every logged attempt of one request in attempt order.
func (s *Store) RequestAttempts(ctx context.Context, requestID string) ([]models.RequestLogEntry, error) {
	return s.queryLogs(ctx,
		`SELECT id, request_id, endpoint, attempt, method, path, request_headers, request_size,
			status_code, response_size, success, error, latency_ms, timestamp
		FROM request_logs WHERE request_id = ? ORDER BY attempt ASC`,
		requestID,
	)
}

// RecentRequests returns up to limit entries, newest first.
func (s *Store) RecentRequests(ctx context.Context, limit int) ([]models.RequestLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryLogs(ctx,
		`SELECT id, request_id, endpoint, attempt, method, path, request_headers, request_size,
			status_code, response_size, success, error, latency_ms, timestamp
		FROM request_logs ORDER BY timestamp DESC, attempt DESC LIMIT ?`,
		limit,
	)
}

func (s *Store) queryLogs(ctx context.Context, query string, args ...any) ([]models.RequestLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	entries := []models.RequestLogEntry{}
	for rows.Next() {
		var (
			entry     models.RequestLogEntry
			headers   sql.NullString
			errText   sql.NullString
			timestamp int64
		)
		if err := rows.Scan(
			&entry.ID, &entry.RequestID, &entry.Endpoint, &entry.Attempt, &entry.Method, &entry.Path, &headers,
			&entry.RequestSize, &entry.StatusCode, &entry.ResponseSize, &entry.Success, &errText,
			&entry.LatencyMs, &timestamp,
		); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
		}

		if headers.Valid && headers.String != "" {
			if err := json.UnmarshalFromString(headers.String, &entry.RequestHeaders); err != nil {
				return nil, fmt.Errorf("%w: decode headers: %w", ErrDatabaseError, err)
			}
		}
		entry.Error = errText.String
		entry.Timestamp = time.Unix(0, timestamp).UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	return entries, nil
}

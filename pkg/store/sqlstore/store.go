package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"apiorch/pkg/models"

	jsoniter "github.com/json-iterator/go"
	_ "modernc.org/sqlite"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const endpointColumns = `id, name, base_url, auth_type, rate_limit_per_minute, rate_limit_per_hour, status,
	health_status, allow_automatic_failover, failover_priority, average_response_time, success_rate,
	total_requests, total_errors, current_usage_minute, current_usage_hour, last_health_check, configuration`

// Store keeps endpoint records and the request log in SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewStore opens (and creates if needed) the database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	database, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", ErrDatabaseError, err)
	}

	ctx := context.Background()

	// Enable WAL mode for better concurrency
	if _, err := database.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("%w: failed to enable WAL mode: %w", ErrDatabaseError, err)
	}

	if _, err := database.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("%w: failed to set busy timeout: %w", ErrDatabaseError, err)
	}

	store := &Store{db: database}
	if err := store.Initialize(ctx); err != nil {
		_ = database.Close()
		return nil, err
	}

	return store, nil
}

// Initialize creates the database schema.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("%w: failed to initialize schema: %w", ErrDatabaseError, err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertEndpoint inserts an endpoint or replaces the static configuration of an existing one.
// Runtime columns are left untouched on update.
func (s *Store) UpsertEndpoint(ctx context.Context, ep models.Endpoint) (int64, error) {
	cfg, err := encodeJSON(ep.Configuration)
	if err != nil {
		return 0, fmt.Errorf("%w: encode configuration: %w", ErrDatabaseError, err)
	}

	authType := ep.AuthType
	if authType == "" {
		authType = models.AuthNone
	}
	status := ep.Status
	if status == "" {
		status = models.StatusActive
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixNano()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO endpoints (name, base_url, auth_type, rate_limit_per_minute, rate_limit_per_hour, status,
			allow_automatic_failover, failover_priority, configuration, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			base_url = excluded.base_url,
			auth_type = excluded.auth_type,
			rate_limit_per_minute = excluded.rate_limit_per_minute,
			rate_limit_per_hour = excluded.rate_limit_per_hour,
			status = excluded.status,
			allow_automatic_failover = excluded.allow_automatic_failover,
			failover_priority = excluded.failover_priority,
			configuration = excluded.configuration,
			updated_at = excluded.updated_at`,
		ep.Name, ep.BaseURL, authType, ep.RateLimitPerMinute, ep.RateLimitPerHour, string(status),
		ep.AllowAutomaticFailover, ep.FailoverPriority, cfg, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM endpoints WHERE name = ?`, ep.Name).Scan(&id); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return id, nil
}

// SetStatus activates or deactivates an endpoint. Endpoints are never deleted.
func (s *Store) SetStatus(ctx context.Context, name string, status models.EndpointStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx,
		`UPDATE endpoints SET status = ?, updated_at = ? WHERE name = ?`,
		string(status), time.Now().UnixNano(), name,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	if rows == 0 {
		return ErrEndpointNotFound
	}
	return nil
}

// GetEndpoint retrieves one endpoint by name regardless of status.
func (s *Store) GetEndpoint(ctx context.Context, name string) (*models.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+endpointColumns+` FROM endpoints WHERE name = ?`, name)
	ep, err := scanEndpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEndpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return &ep, nil
}

// LoadActiveEndpoints returns active endpoints ordered by failover priority.
func (s *Store) LoadActiveEndpoints(ctx context.Context) ([]models.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+endpointColumns+` FROM endpoints WHERE status = ? ORDER BY failover_priority ASC, id ASC`,
		string(models.StatusActive),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var endpoints []models.Endpoint
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
		}
		endpoints = append(endpoints, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	return endpoints, nil
}

// SaveState writes runtime snapshots back onto the endpoint rows in one transaction.
func (s *Store) SaveState(ctx context.Context, snapshots []models.StateSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE endpoints SET health_status = ?, average_response_time = ?, success_rate = ?,
			total_requests = ?, total_errors = ?, current_usage_minute = ?, current_usage_hour = ?,
			last_health_check = ?, updated_at = ?
		WHERE name = ?`,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	now := time.Now().UnixNano()
	for _, snap := range snapshots {
		if _, err := stmt.ExecContext(ctx,
			string(snap.HealthStatus), snap.AverageResponseTime, snap.SuccessRate,
			snap.TotalRequests, snap.TotalErrors, snap.CurrentUsageMinute, snap.CurrentUsageHour,
			unixNano(snap.LastHealthCheck), now, snap.Name,
		); err != nil {
			return fmt.Errorf("%w: save state of %s: %w", ErrDatabaseError, snap.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEndpoint(row scanner) (models.Endpoint, error) {
	var (
		ep        models.Endpoint
		status    string
		health    string
		lastCheck int64
		cfg       sql.NullString
	)
	err := row.Scan(
		&ep.ID, &ep.Name, &ep.BaseURL, &ep.AuthType, &ep.RateLimitPerMinute, &ep.RateLimitPerHour, &status,
		&health, &ep.AllowAutomaticFailover, &ep.FailoverPriority, &ep.AverageResponseTime, &ep.SuccessRate,
		&ep.TotalRequests, &ep.TotalErrors, &ep.CurrentUsageMinute, &ep.CurrentUsageHour, &lastCheck, &cfg,
	)
	if err != nil {
		return models.Endpoint{}, err
	}

	ep.Status = models.EndpointStatus(status)
	ep.HealthStatus = models.ParseHealthStatus(health)
	if lastCheck > 0 {
		ep.LastHealthCheck = time.Unix(0, lastCheck).UTC()
	}
	if cfg.Valid && cfg.String != "" {
		if err := json.UnmarshalFromString(cfg.String, &ep.Configuration); err != nil {
			return models.Endpoint{}, fmt.Errorf("decode configuration of %s: %w", ep.Name, err)
		}
	}
	return ep, nil
}

func encodeJSON(v any) (sql.NullString, error) {
	switch m := v.(type) {
	case map[string]any:
		if len(m) == 0 {
			return sql.NullString{}, nil
		}
	case map[string]string:
		if len(m) == 0 {
			return sql.NullString{}, nil
		}
	}
	out, err := json.MarshalToString(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: out, Valid: true}, nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

// LoadSeedFile decodes a JSON array of endpoints, used to populate an empty database.
func LoadSeedFile(path string) ([]models.Endpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSeed, err)
	}

	var endpoints []models.Endpoint
	if err := json.Unmarshal(data, &endpoints); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSeed, err)
	}
	return endpoints, nil
}

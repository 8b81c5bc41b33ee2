package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"apiorch/pkg/models"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	DefaultPrefix = "apiorch"

	requestsKey = "requests"
	stateKey    = "state"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store mirrors endpoint state into a hash and keeps request logs in a sorted set scored by time.
type Store struct {
	client *redis.Client
	prefix string
}

// Connect dials addr and verifies the connection with a PING.
func Connect(ctx context.Context, addr, prefix string) (*Store, error) {
	if addr == "" {
		return nil, fmt.Errorf("%w: empty address", ErrUnavailable)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		PoolSize:     32,
		MinIdleConns: 4,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, addr, err)
	}

	return New(client, prefix), nil
}

// New wraps an existing client.
func New(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(name string) string {
	return s.prefix + ":" + name
}

// Append adds one msgpack-encoded entry to the request sorted set.
func (s *Store) Append(ctx context.Context, entry models.RequestLogEntry) error {
	payload, err := msgpack.Marshal(&entry)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCodec, err)
	}

	err = s.client.ZAdd(ctx, s.key(requestsKey), redis.Z{
		Score:  float64(entry.Timestamp.UnixNano()),
		Member: payload,
	}).Err()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

// Prune drops entries scored strictly before olderThan.
func (s *Store) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	removed, err := s.client.ZRemRangeByScore(ctx, s.key(requestsKey),
		"-inf", "("+strconv.FormatInt(olderThan.UnixNano(), 10),
	).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return removed, nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]models.RequestLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	items, err := s.client.ZRevRange(ctx, s.key(requestsKey), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	entries := make([]models.RequestLogEntry, 0, len(items))
	for _, item := range items {
		var entry models.RequestLogEntry
		if err := msgpack.Unmarshal([]byte(item), &entry); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCodec, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// SaveState writes each snapshot as a JSON field of the state hash in one pipeline.
func (s *Store) SaveState(ctx context.Context, snapshots []models.StateSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	fields := make(map[string]any, len(snapshots))
	for _, snap := range snapshots {
		encoded, err := json.MarshalToString(snap)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCodec, err)
		}
		fields[snap.Name] = encoded
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.key(stateKey), fields)
		pipe.HSet(ctx, s.key(stateKey+":meta"), "synced_at", time.Now().UTC().Format(time.RFC3339Nano))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

// LoadState reads back the last synchronized snapshot of every endpoint.
func (s *Store) LoadState(ctx context.Context) (map[string]models.StateSnapshot, error) {
	raw, err := s.client.HGetAll(ctx, s.key(stateKey)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	out := make(map[string]models.StateSnapshot, len(raw))
	for name, encoded := range raw {
		var snap models.StateSnapshot
		if err := json.UnmarshalFromString(encoded, &snap); err != nil {
			return nil, fmt.Errorf("%w: state of %s: %w", ErrCodec, name, err)
		}
		out[name] = snap
	}
	return out, nil
}

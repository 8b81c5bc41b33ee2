package redisstore

import "errors"

var (
	// ErrUnavailable is returned when the redis server cannot be reached.
	ErrUnavailable = errors.New("redis unavailable")

	// ErrCodec is returned when an entry cannot be encoded or decoded.
	ErrCodec = errors.New("redis codec error")
)

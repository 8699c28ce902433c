package rate

import "errors"

var (
	// ErrRateLimited marks an attempt rejected because its fixed window is full.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps transport-level Redis failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

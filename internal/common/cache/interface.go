package cache

import (
	"context"
	"time"
)

// Cache defines the cache operations the result store depends on.
// Implementations must be safe for concurrent use.
type Cache interface {
	BasicOps
	ScriptOps

	// Ping verifies the cache connection is alive
	Ping(ctx context.Context) error

	// Close closes the cache connection
	Close() error
}

// BasicOps defines plain key-value writes
type BasicOps interface {
	// Set stores a key-value pair with optional TTL
	// If ttl is 0, the key will not expire
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// ScriptOps runs server-side scripts so multi-step updates stay atomic.
type ScriptOps interface {
	// Eval runs a Lua script against keys with args and returns its reply
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
}

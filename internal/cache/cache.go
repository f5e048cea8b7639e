package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Cache stores short-lived string values. Get reports a miss as found=false
// with a nil error.
type Cache interface {
	Get(ctx context.Context, key string) (found bool, value string, err error)
	Set(ctx context.Context, key string, value string, expiration time.Duration) error
	Close() error
}

// GetStruct decodes a JSON value stored under key into target.
func GetStruct(ctx context.Context, c Cache, key string, target any) (bool, error) {
	found, s, err := c.Get(ctx, key)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal([]byte(s), target); err != nil {
		return false, fmt.Errorf("failed to decode cached %s: %w", key, err)
	}
	return true, nil
}

// SetStruct stores value under key as JSON.
func SetStruct(ctx context.Context, c Cache, key string, value any, expiration time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s for cache: %w", key, err)
	}
	return c.Set(ctx, key, string(b), expiration)
}

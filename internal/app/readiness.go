// Package app wires application components and startup helpers.
//
// It provides dependency injection and application initialization.
// The package coordinates between different layers and provides
// a clean application bootstrap process.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Pinger is the minimal interface for a database pool capable of Ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BuildDBCheck adapts a Pinger into the readiness check httpserver.Server
// expects as its single DBCheck field.
func BuildDBCheck(pool Pinger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if pool == nil {
			return fmt.Errorf("db not configured")
		}
		return pool.Ping(ctx)
	}
}

// BuildRedisCheck wraps a redis client's PING command as a readiness check,
// for deployments running with REGISTRY_BACKEND=redis. rdb is nil when the
// memory registry backend is in use, in which case there is nothing to probe.
func BuildRedisCheck(rdb *redis.Client) func(ctx context.Context) error {
	if rdb == nil {
		return func(ctx context.Context) error { return nil }
	}
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}

// CombineChecks runs every check in order and returns the first error
// encountered, so /readyz can fail on either a down store or a down registry
// backend without the handler needing to know how many checks exist.
func CombineChecks(checks ...func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		for _, c := range checks {
			if c == nil {
				continue
			}
			if err := c(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

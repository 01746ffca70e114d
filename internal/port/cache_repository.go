package port

import (
	"context"
	"time"
)

type RequestLock interface {
	// Acquire claims key for ttl, returns false if another request holds it
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)

	// Release drops the claim only if token still owns it
	Release(ctx context.Context, key, token string) error
}

package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ReplayGuardRepo holds a short-lived in-flight marker per (provider,
// transaction) so two concurrent submissions of the same purchase cannot both
// reach the mint step. The durable ledger is the postgres repo; this only
// closes the race window.
type ReplayGuardRepo struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewReplayGuardRepo(client *goredis.Client, ttl time.Duration) *ReplayGuardRepo {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ReplayGuardRepo{client: client, ttl: ttl}
}

// Acquire returns true when this caller placed the marker first.
func (r *ReplayGuardRepo) Acquire(ctx context.Context, provider, transactionID string) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	if provider == "" || transactionID == "" {
		return false, fmt.Errorf("invalid replay guard payload")
	}

	key := fmt.Sprintf("mintguard:%s:%s", provider, transactionID)
	ok, err := r.client.SetNX(ctx, key, 1, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("set replay guard key: %w", err)
	}

	return ok, nil
}

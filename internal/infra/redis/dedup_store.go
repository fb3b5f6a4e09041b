package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultDedupTTL = time.Hour

// DedupStore remembers recently seen provider message ids so webhook
// retries can be dropped before touching the database.
// Claims are stored as: SET quiz:dedup:{tenantID}:{providerMessageID} NX EX ttl
type DedupStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDedupStore(client *redis.Client, ttl time.Duration) *DedupStore {
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}
	return &DedupStore{client: client, ttl: ttl}
}

// Claim marks the provider message id as seen and reports whether it was
// already claimed within the TTL window.
func (s *DedupStore) Claim(ctx context.Context, tenantID, providerMessageID string) (bool, error) {
	stored, err := s.client.SetNX(ctx, s.dedupKey(tenantID, providerMessageID), 1, s.ttl).Result()
	if err != nil {
		return false, err
	}
	return !stored, nil
}

// Release drops a claim so the next delivery of the id is processed again.
// Called when an attempt ends without a durable record of the message.
func (s *DedupStore) Release(ctx context.Context, tenantID, providerMessageID string) error {
	return s.client.Del(ctx, s.dedupKey(tenantID, providerMessageID)).Err()
}

func (s *DedupStore) dedupKey(tenantID, providerMessageID string) string {
	return "quiz:dedup:" + tenantID + ":" + providerMessageID
}

package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Idempotency stores the first response produced for an Idempotency-Key so that retries of a
// purchase replay it instead of submitting a second transaction.
type Idempotency struct {
	client *redis.Client
}

func NewIdempotency(client *redis.Client) *Idempotency {
	return &Idempotency{client: client}
}

type StoredResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

func responseKey(key string) string { return "idemp:resp:" + key }
func claimKey(key string) string    { return "idemp:claim:" + key }

// Claim reserves key for one in-flight request.
func (i *Idempotency) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return i.client.SetNX(ctx, claimKey(key), 1, ttl).Result()
}

// Release drops the claim without storing a response, letting the client retry.
func (i *Idempotency) Release(ctx context.Context, key string) error {
	return i.client.Del(ctx, claimKey(key)).Err()
}

func (i *Idempotency) Get(ctx context.Context, key string) (*StoredResponse, error) {
	val, err := i.client.Get(ctx, responseKey(key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var resp StoredResponse
	if err := json.Unmarshal(val, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (i *Idempotency) Save(ctx context.Context, key string, resp StoredResponse, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	if err := i.client.Set(ctx, responseKey(key), data, ttl).Err(); err != nil {
		return err
	}
	return i.Release(ctx, key)
}

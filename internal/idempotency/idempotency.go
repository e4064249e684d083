package idempotency

import (
	"context"
	"time"

	redisadapter "github.com/robertarktes/nft-ticket-protocol/internal/adapters/redis"
)

type Store interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
	Get(ctx context.Context, key string) (*redisadapter.StoredResponse, error)
	Save(ctx context.Context, key string, resp redisadapter.StoredResponse, ttl time.Duration) error
}

type Idempotency struct {
	store    Store
	ttl      time.Duration
	claimTTL time.Duration
}

func NewIdempotency(store Store, ttl time.Duration) *Idempotency {
	return &Idempotency{store: store, ttl: ttl, claimTTL: time.Minute}
}

type Response struct {
	Status      int
	ContentType string
	Body        []byte
}

// Begin returns the stored response for key if one exists. Otherwise it tries to claim key;
// claimed is false when another request with the same key is still running.
func (i *Idempotency) Begin(ctx context.Context, key string) (replay *Response, claimed bool, err error) {
	stored, err := i.store.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if stored != nil {
		return &Response{Status: stored.Status, ContentType: stored.ContentType, Body: stored.Body}, false, nil
	}
	claimed, err = i.store.Claim(ctx, key, i.claimTTL)
	return nil, claimed, err
}

func (i *Idempotency) Commit(ctx context.Context, key string, resp Response) error {
	return i.store.Save(ctx, key, redisadapter.StoredResponse{
		Status:      resp.Status,
		ContentType: resp.ContentType,
		Body:        resp.Body,
	}, i.ttl)
}

func (i *Idempotency) Abort(ctx context.Context, key string) error {
	return i.store.Release(ctx, key)
}

package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"adlign-personalization-layer/internal/ports"
)

// Bucket names. With the file store each one is a <name>.json file.
const (
	BucketShopTokens    = "shop_tokens"
	BucketMappings      = "mappings"
	BucketLandings      = "local_landings"
	BucketOAuthSessions = "oauth_sessions"
	BucketScanStatus    = "scan_status"
)

// shopScoped stores shop_domain -> id -> record, with one KV entry per shop
// so read-modify-write is atomic per shop.
type shopScoped[T any] struct {
	kv     ports.KVStore
	bucket string
}

func (b shopScoped[T]) load(ctx context.Context, shop string) (map[string]*T, error) {
	raw, err := b.kv.Get(ctx, b.bucket, shop)
	if err != nil {
		return nil, err
	}
	return b.decode(shop, raw)
}

func (b shopScoped[T]) decode(shop string, raw []byte) (map[string]*T, error) {
	records := make(map[string]*T)
	if raw == nil {
		return records, nil
	}
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("failed to decode %s for %s: %w", b.bucket, shop, err)
	}
	return records, nil
}

// update applies fn to the shop's records; an empty result removes the shop key.
func (b shopScoped[T]) update(ctx context.Context, shop string, fn func(map[string]*T) error) error {
	return b.kv.Update(ctx, b.bucket, shop, func(current []byte) ([]byte, error) {
		records, err := b.decode(shop, current)
		if err != nil {
			return nil, err
		}
		if err := fn(records); err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, nil
		}
		return json.Marshal(records)
	})
}

func (b shopScoped[T]) shops(ctx context.Context) ([]string, error) {
	return b.kv.Keys(ctx, b.bucket)
}

// scope returns shop alone, or every shop when shop is empty.
func (b shopScoped[T]) scope(ctx context.Context, shop string) ([]string, error) {
	if shop != "" {
		return []string{shop}, nil
	}
	return b.shops(ctx)
}

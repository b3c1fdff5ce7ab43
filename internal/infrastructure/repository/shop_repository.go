package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"adlign-personalization-layer/internal/domain"
	"adlign-personalization-layer/internal/ports"
)

// ShopRepository implements ports.ShopRepository on a KVStore
type ShopRepository struct {
	kv ports.KVStore
}

// NewShopRepository creates a new shop token repository
func NewShopRepository(kv ports.KVStore) *ShopRepository {
	return &ShopRepository{kv: kv}
}

// SaveShop saves or updates a shop, keeping the original install time
func (r *ShopRepository) SaveShop(ctx context.Context, shop *domain.Shop) error {
	now := time.Now()
	err := r.kv.Update(ctx, BucketShopTokens, shop.Domain, func(current []byte) ([]byte, error) {
		doc := *shop
		if current != nil {
			var existing domain.Shop
			if err := json.Unmarshal(current, &existing); err == nil && !existing.InstalledAt.IsZero() {
				doc.InstalledAt = existing.InstalledAt
			}
		}
		if doc.InstalledAt.IsZero() {
			doc.InstalledAt = now
		}
		doc.UpdatedAt = now
		return json.Marshal(doc)
	})
	if err != nil {
		return fmt.Errorf("failed to save shop: %w", err)
	}
	return nil
}

// GetShop retrieves a shop by domain
func (r *ShopRepository) GetShop(ctx context.Context, shopDomain string) (*domain.Shop, error) {
	raw, err := r.kv.Get(ctx, BucketShopTokens, shopDomain)
	if err != nil {
		return nil, fmt.Errorf("failed to get shop: %w", err)
	}
	if raw == nil {
		return nil, nil
	}

	var shop domain.Shop
	if err := json.Unmarshal(raw, &shop); err != nil {
		return nil, fmt.Errorf("failed to decode shop: %w", err)
	}
	return &shop, nil
}

// ListShops retrieves all shops
func (r *ShopRepository) ListShops(ctx context.Context) ([]*domain.Shop, error) {
	keys, err := r.kv.Keys(ctx, BucketShopTokens)
	if err != nil {
		return nil, fmt.Errorf("failed to list shops: %w", err)
	}

	shops := make([]*domain.Shop, 0, len(keys))
	for _, key := range keys {
		shop, err := r.GetShop(ctx, key)
		if err != nil {
			return nil, err
		}
		if shop != nil {
			shops = append(shops, shop)
		}
	}
	return shops, nil
}

// DeleteShop removes a shop and its token
func (r *ShopRepository) DeleteShop(ctx context.Context, shopDomain string) error {
	if err := r.kv.Delete(ctx, BucketShopTokens, shopDomain); err != nil {
		return fmt.Errorf("failed to delete shop: %w", err)
	}
	return nil
}

var _ ports.ShopRepository = (*ShopRepository)(nil)

package repository

import (
	"context"
	"fmt"
	"sort"

	"adlign-personalization-layer/internal/domain"
	"adlign-personalization-layer/internal/ports"
)

// MappingRepository stores mappings as shop_domain -> mapping_id -> record
type MappingRepository struct {
	store shopScoped[domain.MappingRecord]
}

// NewMappingRepository creates a new mapping repository
func NewMappingRepository(kv ports.KVStore) *MappingRepository {
	return &MappingRepository{store: shopScoped[domain.MappingRecord]{kv: kv, bucket: BucketMappings}}
}

// SaveMapping saves or replaces a mapping under its shop
func (r *MappingRepository) SaveMapping(ctx context.Context, record *domain.MappingRecord) error {
	err := r.store.update(ctx, record.ShopDomain, func(records map[string]*domain.MappingRecord) error {
		records[record.ID] = record
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save mapping: %w", err)
	}
	return nil
}

// GetMapping retrieves a mapping by id from any shop
func (r *MappingRepository) GetMapping(ctx context.Context, id string) (*domain.MappingRecord, error) {
	shops, err := r.store.shops(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list shops: %w", err)
	}
	for _, shop := range shops {
		records, err := r.store.load(ctx, shop)
		if err != nil {
			return nil, fmt.Errorf("failed to get mapping: %w", err)
		}
		if record, ok := records[id]; ok {
			return record, nil
		}
	}
	return nil, nil
}

// ListMappings lists mappings newest first
func (r *MappingRepository) ListMappings(ctx context.Context, shopDomain string) ([]*domain.MappingRecord, error) {
	shops, err := r.store.scope(ctx, shopDomain)
	if err != nil {
		return nil, fmt.Errorf("failed to list shops: %w", err)
	}

	var out []*domain.MappingRecord
	for _, shop := range shops {
		records, err := r.store.load(ctx, shop)
		if err != nil {
			return nil, fmt.Errorf("failed to list mappings: %w", err)
		}
		for _, record := range records {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// DeleteMapping removes a mapping; false when it did not exist
func (r *MappingRepository) DeleteMapping(ctx context.Context, shopDomain, id string) (bool, error) {
	deleted := false
	err := r.store.update(ctx, shopDomain, func(records map[string]*domain.MappingRecord) error {
		_, deleted = records[id]
		delete(records, id)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete mapping: %w", err)
	}
	return deleted, nil
}

var _ ports.MappingRepository = (*MappingRepository)(nil)

package repository

import (
	"context"
	"fmt"
	"sort"

	"adlign-personalization-layer/internal/domain"
	"adlign-personalization-layer/internal/ports"
)

// LandingRepository stores landing pages as shop_domain -> handle -> landing
type LandingRepository struct {
	store shopScoped[domain.LandingPage]
}

// NewLandingRepository creates a new landing repository
func NewLandingRepository(kv ports.KVStore) *LandingRepository {
	return &LandingRepository{store: shopScoped[domain.LandingPage]{kv: kv, bucket: BucketLandings}}
}

// CreateLanding saves a new landing page
func (r *LandingRepository) CreateLanding(ctx context.Context, landing *domain.LandingPage) error {
	err := r.store.update(ctx, landing.ShopDomain, func(records map[string]*domain.LandingPage) error {
		if _, exists := records[landing.Handle]; exists {
			return fmt.Errorf("landing %q: %w", landing.Handle, domain.ErrConflict)
		}
		records[landing.Handle] = landing
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create landing: %w", err)
	}
	return nil
}

// GetLanding retrieves a landing page by shop and handle
func (r *LandingRepository) GetLanding(ctx context.Context, shopDomain, handle string) (*domain.LandingPage, error) {
	records, err := r.store.load(ctx, shopDomain)
	if err != nil {
		return nil, fmt.Errorf("failed to get landing: %w", err)
	}
	landing, ok := records[handle]
	if !ok {
		return nil, nil
	}
	return landing, nil
}

// ListLandings lists landing pages sorted by shop then handle
func (r *LandingRepository) ListLandings(ctx context.Context, shopDomain string) ([]*domain.LandingPage, error) {
	shops, err := r.store.scope(ctx, shopDomain)
	if err != nil {
		return nil, fmt.Errorf("failed to list shops: %w", err)
	}

	var out []*domain.LandingPage
	for _, shop := range shops {
		records, err := r.store.load(ctx, shop)
		if err != nil {
			return nil, fmt.Errorf("failed to list landings: %w", err)
		}
		for _, landing := range records {
			out = append(out, landing)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ShopDomain != out[j].ShopDomain {
			return out[i].ShopDomain < out[j].ShopDomain
		}
		return out[i].Handle < out[j].Handle
	})
	return out, nil
}

// UpdateLanding applies fn to the stored landing inside one atomic update
func (r *LandingRepository) UpdateLanding(ctx context.Context, shopDomain, handle string, fn func(*domain.LandingPage) error) (*domain.LandingPage, error) {
	var updated *domain.LandingPage
	err := r.store.update(ctx, shopDomain, func(records map[string]*domain.LandingPage) error {
		updated = nil
		landing, ok := records[handle]
		if !ok {
			return nil
		}
		copied := *landing
		if err := fn(&copied); err != nil {
			return err
		}
		records[handle] = &copied
		updated = &copied
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update landing: %w", err)
	}
	return updated, nil
}

// DeleteLanding removes a landing page; false when it did not exist
func (r *LandingRepository) DeleteLanding(ctx context.Context, shopDomain, handle string) (bool, error) {
	deleted := false
	err := r.store.update(ctx, shopDomain, func(records map[string]*domain.LandingPage) error {
		_, deleted = records[handle]
		delete(records, handle)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete landing: %w", err)
	}
	return deleted, nil
}

var _ ports.LandingRepository = (*LandingRepository)(nil)

package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"adlign-personalization-layer/internal/domain"
	"adlign-personalization-layer/internal/ports"
)

// ScanJobRepository keeps the latest scan job per shop
type ScanJobRepository struct {
	kv ports.KVStore
}

// NewScanJobRepository creates a new scan job repository
func NewScanJobRepository(kv ports.KVStore) *ScanJobRepository {
	return &ScanJobRepository{kv: kv}
}

func (r *ScanJobRepository) SaveScanJob(ctx context.Context, job *domain.ScanJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode scan job: %w", err)
	}
	if err := r.kv.Put(ctx, BucketScanStatus, job.ShopDomain, data); err != nil {
		return fmt.Errorf("failed to save scan job: %w", err)
	}
	return nil
}

func (r *ScanJobRepository) GetScanJob(ctx context.Context, shopDomain string) (*domain.ScanJob, error) {
	raw, err := r.kv.Get(ctx, BucketScanStatus, shopDomain)
	if err != nil {
		return nil, fmt.Errorf("failed to get scan job: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	var job domain.ScanJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("failed to decode scan job: %w", err)
	}
	return &job, nil
}

var _ ports.ScanJobRepository = (*ScanJobRepository)(nil)

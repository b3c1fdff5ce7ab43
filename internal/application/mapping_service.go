package application

import (
	"context"
	"fmt"

	"adlign-personalization-layer/internal/domain"
	"adlign-personalization-layer/internal/injection"
	"adlign-personalization-layer/internal/ports"

	"github.com/rs/zerolog"
)

// MappingService exposes stored scan mappings
type MappingService struct {
	mappings ports.MappingRepository
	logger   zerolog.Logger
}

func NewMappingService(mappings ports.MappingRepository, logger zerolog.Logger) *MappingService {
	return &MappingService{mappings: mappings, logger: logger}
}

// List returns one shop's mappings, or all when shop is empty
func (s *MappingService) List(ctx context.Context, shop string) ([]*domain.MappingRecord, error) {
	records, err := s.mappings.ListMappings(ctx, shop)
	if err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}
	return records, nil
}

// Get returns a mapping by id from any shop
func (s *MappingService) Get(ctx context.Context, id string) (*domain.MappingRecord, error) {
	record, err := s.mappings.GetMapping(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get mapping: %w", err)
	}
	if record == nil {
		return nil, fmt.Errorf("%w: mapping %s", domain.ErrNotFound, id)
	}
	return record, nil
}

// Delete removes a mapping. The shop is looked up from the record.
func (s *MappingService) Delete(ctx context.Context, id string) error {
	record, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	deleted, err := s.mappings.DeleteMapping(ctx, record.ShopDomain, id)
	if err != nil {
		return fmt.Errorf("failed to delete mapping: %w", err)
	}
	if !deleted {
		return fmt.Errorf("%w: mapping %s", domain.ErrNotFound, id)
	}
	s.logger.Info().Str("shop", record.ShopDomain).Str("mapping_id", id).Msg("Mapping deleted")
	return nil
}

// TestScript renders a script applying content through the mapping
func (s *MappingService) TestScript(ctx context.Context, id string, content map[string]string) (string, error) {
	if len(content) == 0 {
		return "", fmt.Errorf("%w: test content is required", domain.ErrInvalidInput)
	}
	record, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return injection.TestScript(record, content)
}

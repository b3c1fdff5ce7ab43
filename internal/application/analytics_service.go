package application

import (
	"context"
	"fmt"

	"adlign-personalization-layer/internal/ports"

	"github.com/rs/zerolog"
)

// Analytics summarizes stored data, optionally for one shop
type Analytics struct {
	ShopDomain     string `json:"shop_domain,omitempty"`
	Shops          int    `json:"shops"`
	Landings       int    `json:"landings"`
	ActiveLandings int    `json:"active_landings"`
	Mappings       int    `json:"mappings"`
	AIEnhanced     int    `json:"ai_enhanced_mappings"`
}

type AnalyticsService struct {
	shops    ports.ShopRepository
	landings ports.LandingRepository
	mappings ports.MappingRepository
	logger   zerolog.Logger
}

func NewAnalyticsService(shops ports.ShopRepository, landings ports.LandingRepository, mappings ports.MappingRepository, logger zerolog.Logger) *AnalyticsService {
	return &AnalyticsService{shops: shops, landings: landings, mappings: mappings, logger: logger}
}

// Summary counts shops, landings and mappings. An empty shop covers all.
func (s *AnalyticsService) Summary(ctx context.Context, shop string) (*Analytics, error) {
	out := &Analytics{ShopDomain: shop}

	if shop == "" {
		shops, err := s.shops.ListShops(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list shops: %w", err)
		}
		out.Shops = len(shops)
	} else {
		record, err := s.shops.GetShop(ctx, shop)
		if err != nil {
			return nil, fmt.Errorf("failed to get shop: %w", err)
		}
		if record != nil {
			out.Shops = 1
		}
	}

	landings, err := s.landings.ListLandings(ctx, shop)
	if err != nil {
		return nil, fmt.Errorf("failed to list landings: %w", err)
	}
	out.Landings = len(landings)
	for _, l := range landings {
		if l.IsActive {
			out.ActiveLandings++
		}
	}

	mappings, err := s.mappings.ListMappings(ctx, shop)
	if err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}
	out.Mappings = len(mappings)
	for _, m := range mappings {
		if m.AIEnhanced {
			out.AIEnhanced++
		}
	}
	return out, nil
}

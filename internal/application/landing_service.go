package application

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"

	"adlign-personalization-layer/internal/domain"
	"adlign-personalization-layer/internal/injection"
	"adlign-personalization-layer/internal/ports"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
)

// Sanitizer cleans merchant-provided landing content
type Sanitizer struct {
	text *bluemonday.Policy
	rich *bluemonday.Policy
}

func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		text: bluemonday.StrictPolicy(),
		rich: bluemonday.UGCPolicy(),
	}
}

// Text strips all markup. The result is plain text, not HTML, since
// scripts write it through textContent.
func (s *Sanitizer) Text(v string) string {
	return strings.TrimSpace(html.UnescapeString(s.text.Sanitize(v)))
}

// HTML keeps the safe subset of user-generated markup
func (s *Sanitizer) HTML(v string) string {
	return strings.TrimSpace(s.rich.Sanitize(v))
}

// URL keeps absolute http(s) URLs only
func (s *Sanitizer) URL(v string) (string, bool) {
	v = strings.TrimSpace(v)
	u, err := url.Parse(v)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	return u.String(), true
}

func (s *Sanitizer) landing(l *domain.LandingPage) {
	l.CampaignName = s.Text(l.CampaignName)
	l.CustomTitle = s.Text(l.CustomTitle)
	l.CustomDescription = s.HTML(l.CustomDescription)
	l.CustomPriceText = s.Text(l.CustomPriceText)
	l.CustomComparePriceText = s.Text(l.CustomComparePriceText)
	l.CustomCTAText = s.Text(l.CustomCTAText)
	l.CustomVendor = s.Text(l.CustomVendor)
	l.CustomBadges = s.badges(l.CustomBadges)
	l.CustomImages = s.images(l.CustomImages)
}

// update cleans only the provided fields. Stored values were cleaned on
// write and are never passed through the policies again.
func (s *Sanitizer) update(u domain.LandingUpdate) domain.LandingUpdate {
	text := func(v *string) *string {
		if v == nil {
			return nil
		}
		out := s.Text(*v)
		return &out
	}
	u.CampaignName = text(u.CampaignName)
	u.CustomTitle = text(u.CustomTitle)
	u.CustomPriceText = text(u.CustomPriceText)
	u.CustomComparePriceText = text(u.CustomComparePriceText)
	u.CustomCTAText = text(u.CustomCTAText)
	u.CustomVendor = text(u.CustomVendor)
	if u.MappingID != nil {
		id := strings.TrimSpace(*u.MappingID)
		u.MappingID = &id
	}
	if u.CustomDescription != nil {
		desc := s.HTML(*u.CustomDescription)
		u.CustomDescription = &desc
	}
	if u.CustomBadges != nil {
		badges := s.badges(*u.CustomBadges)
		u.CustomBadges = &badges
	}
	if u.CustomImages != nil {
		images := s.images(*u.CustomImages)
		u.CustomImages = &images
	}
	return u
}

func (s *Sanitizer) badges(in []string) []string {
	out := make([]string, 0, len(in))
	for _, b := range in {
		if b = s.Text(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func (s *Sanitizer) images(in []string) []string {
	out := make([]string, 0, len(in))
	for _, raw := range in {
		if u, ok := s.URL(raw); ok {
			out = append(out, u)
		}
	}
	return out
}

// LandingService manages landing pages
type LandingService struct {
	landings  ports.LandingRepository
	mappings  ports.MappingRepository
	sanitizer *Sanitizer
	logger    zerolog.Logger
	now       func() time.Time
}

func NewLandingService(landings ports.LandingRepository, mappings ports.MappingRepository, logger zerolog.Logger) *LandingService {
	return &LandingService{
		landings:  landings,
		mappings:  mappings,
		sanitizer: NewSanitizer(),
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock replaces the time source, for tests
func (s *LandingService) WithClock(now func() time.Time) *LandingService {
	s.now = now
	return s
}

// Create validates, sanitizes and stores a new landing page
func (s *LandingService) Create(ctx context.Context, landing *domain.LandingPage) (*domain.LandingPage, error) {
	landing.Handle = strings.TrimSpace(landing.Handle)
	if err := landing.Validate(); err != nil {
		return nil, err
	}
	s.sanitizer.landing(landing)

	now := s.now()
	landing.ID = "landing_" + uuid.NewString()
	landing.CreatedAt = now
	landing.UpdatedAt = now

	if err := s.landings.CreateLanding(ctx, landing); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("shop", landing.ShopDomain).
		Str("handle", landing.Handle).
		Str("mapping_id", landing.MappingID).
		Msg("Landing page created")
	return landing, nil
}

// Get returns a landing or domain.ErrNotFound
func (s *LandingService) Get(ctx context.Context, shop, handle string) (*domain.LandingPage, error) {
	if shop == "" || handle == "" {
		return nil, fmt.Errorf("%w: shop_domain and handle are required", domain.ErrInvalidInput)
	}
	landing, err := s.landings.GetLanding(ctx, shop, handle)
	if err != nil {
		return nil, fmt.Errorf("failed to get landing: %w", err)
	}
	if landing == nil {
		return nil, fmt.Errorf("%w: landing %s", domain.ErrNotFound, handle)
	}
	return landing, nil
}

// List returns one shop's landings, or all when shop is empty
func (s *LandingService) List(ctx context.Context, shop string) ([]*domain.LandingPage, error) {
	landings, err := s.landings.ListLandings(ctx, shop)
	if err != nil {
		return nil, fmt.Errorf("failed to list landings: %w", err)
	}
	return landings, nil
}

// Update merges the provided fields; last write wins
func (s *LandingService) Update(ctx context.Context, shop, handle string, update domain.LandingUpdate) (*domain.LandingPage, error) {
	if update.MappingID != nil && strings.TrimSpace(*update.MappingID) == "" {
		return nil, fmt.Errorf("%w: mapping_id cannot be empty", domain.ErrInvalidInput)
	}
	update = s.sanitizer.update(update)
	updated, err := s.landings.UpdateLanding(ctx, shop, handle, func(l *domain.LandingPage) error {
		update.Apply(l)
		l.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update landing: %w", err)
	}
	if updated == nil {
		return nil, fmt.Errorf("%w: landing %s", domain.ErrNotFound, handle)
	}
	return updated, nil
}

// Delete removes a landing page
func (s *LandingService) Delete(ctx context.Context, shop, handle string) error {
	deleted, err := s.landings.DeleteLanding(ctx, shop, handle)
	if err != nil {
		return fmt.Errorf("failed to delete landing: %w", err)
	}
	if !deleted {
		return fmt.Errorf("%w: landing %s", domain.ErrNotFound, handle)
	}
	s.logger.Info().Str("shop", shop).Str("handle", handle).Msg("Landing page deleted")
	return nil
}

// Script renders the storefront script for a landing with its mapping
func (s *LandingService) Script(ctx context.Context, shop, handle string) (string, error) {
	landing, err := s.Get(ctx, shop, handle)
	if err != nil {
		return "", err
	}
	record, err := s.mappings.GetMapping(ctx, landing.MappingID)
	if err != nil {
		return "", fmt.Errorf("failed to get mapping: %w", err)
	}
	var mapping domain.ElementMapping
	if record != nil {
		mapping = record.Mapping
	} else {
		s.logger.Warn().Str("handle", handle).Str("mapping_id", landing.MappingID).Msg("Landing mapping missing, using fallback selectors")
	}
	return injection.LandingScript(landing, mapping)
}

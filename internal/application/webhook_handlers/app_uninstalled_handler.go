package webhook_handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"adlign-personalization-layer/internal/domain"

	"github.com/rs/zerolog"
)

// ShopUninstaller removes a shop's stored credentials
type ShopUninstaller interface {
	Uninstall(ctx context.Context, shop string) error
}

// AppUninstalledHandler handles app uninstalled webhook events
type AppUninstalledHandler struct {
	logger zerolog.Logger
	shops  ShopUninstaller
}

// NewAppUninstalledHandler creates a new app uninstalled webhook handler
func NewAppUninstalledHandler(logger zerolog.Logger, shops ShopUninstaller) *AppUninstalledHandler {
	return &AppUninstalledHandler{logger: logger, shops: shops}
}

// CanHandle returns true if this handler can process the given topic
func (h *AppUninstalledHandler) CanHandle(topic string) bool {
	return topic == domain.TopicAppUninstalled
}

// Handle deletes the shop's access token. Landings and mappings are kept so
// a reinstall picks up where the merchant left off.
func (h *AppUninstalledHandler) Handle(ctx context.Context, event *domain.WebhookEvent) error {
	shopDomain := event.Shop
	if shopDomain == "" {
		var shopData struct {
			Domain          string `json:"domain"`
			MyshopifyDomain string `json:"myshopify_domain"`
		}
		if err := json.Unmarshal(event.Payload, &shopData); err != nil {
			return fmt.Errorf("failed to parse app uninstalled webhook payload: %w", err)
		}
		shopDomain = shopData.MyshopifyDomain
		if shopDomain == "" {
			shopDomain = shopData.Domain
		}
	}
	if shopDomain == "" {
		return fmt.Errorf("%w: app uninstalled webhook without shop", domain.ErrInvalidInput)
	}

	h.logger.Info().
		Str("topic", event.Topic).
		Str("shop", shopDomain).
		Msg("Processing app uninstalled webhook event")

	if err := h.shops.Uninstall(ctx, shopDomain); err != nil {
		return fmt.Errorf("failed to uninstall shop: %w", err)
	}

	h.logger.Info().Str("shop", shopDomain).Msg("App uninstalled - cleanup completed")
	return nil
}

package ports

import (
	"context"

	"adlign-personalization-layer/internal/domain"

	shopify "github.com/bold-commerce/go-shopify/v4"
)

// ShopifyClient defines the Shopify Admin API operations the service relies on
type ShopifyClient interface {
	// Authentication
	ExchangeToken(ctx context.Context, shop string, code string) (string, error)

	// Shop API
	GetShop(ctx context.Context, shop string, accessToken string) (*shopify.Shop, error)

	// Webhook API
	CreateWebhook(ctx context.Context, shop string, accessToken string, topic string, address string) (*shopify.Webhook, error)

	// Theme API
	ListThemes(ctx context.Context, shop string, accessToken string) ([]domain.Theme, error)
	ListAssets(ctx context.Context, shop string, accessToken string, themeID uint64) ([]domain.ThemeAsset, error)
	GetAsset(ctx context.Context, shop string, accessToken string, themeID uint64, key string) (*domain.ThemeAsset, error)
	PutAsset(ctx context.Context, shop string, accessToken string, themeID uint64, key string, value string) error

	// Product API
	ListProducts(ctx context.Context, shop string, accessToken string, limit int) ([]shopify.Product, error)
	GetProduct(ctx context.Context, shop string, accessToken string, productID uint64) (*shopify.Product, error)
	// SetTemplateSuffix with an empty suffix puts the product back on the default template.
	SetTemplateSuffix(ctx context.Context, shop string, accessToken string, productID uint64, suffix string) error

	// Metafield API
	ListProductMetafields(ctx context.Context, shop string, accessToken string, productID uint64) ([]shopify.Metafield, error)
	CreateProductMetafield(ctx context.Context, shop string, accessToken string, productID uint64, metafield shopify.Metafield) (*shopify.Metafield, error)
	DeleteProductMetafield(ctx context.Context, shop string, accessToken string, productID uint64, metafieldID uint64) error
}

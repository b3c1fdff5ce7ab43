package shopify

import (
	"context"
	"fmt"
	"time"

	"adlign-personalization-layer/internal/domain"
	"adlign-personalization-layer/internal/ports"

	goshopify "github.com/bold-commerce/go-shopify/v4"
	"github.com/rs/zerolog"
)

// CallObserver is told the outcome of every Admin API call after retries
type CallObserver interface {
	ObserveShopifyCall(op string, err error, elapsed time.Duration)
}

type client struct {
	app         goshopify.App
	rateLimiter *RateLimiter
	retryConfig RetryConfig
	observer    CallObserver
	logger      zerolog.Logger
}

// NewClient creates a new Shopify client adapter
func NewClient(apiKey, apiSecret string) ports.ShopifyClient {
	return NewClientWithOptions(apiKey, apiSecret, nil, DefaultRetryConfig(), nil, zerolog.Nop())
}

// NewClientWithOptions creates a client with rate limiting and retry options
func NewClientWithOptions(
	apiKey, apiSecret string,
	rateLimiter *RateLimiter,
	retryConfig RetryConfig,
	observer CallObserver,
	logger zerolog.Logger,
) ports.ShopifyClient {
	app := goshopify.App{
		ApiKey:    apiKey,
		ApiSecret: apiSecret,
	}
	return &client{
		app:         app,
		rateLimiter: rateLimiter,
		retryConfig: retryConfig,
		observer:    observer,
		logger:      logger,
	}
}

// createClient is a helper to create a goshopify client
func (c *client) createClient(shopDomain string, accessToken string) (*goshopify.Client, error) {
	client, err := goshopify.NewClient(c.app, shopDomain, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return client, nil
}

// call runs fn under the shop's rate limit, retrying transient failures.
func (c *client) call(ctx context.Context, shopDomain, op string, fn func() error) (err error) {
	if c.observer != nil {
		start := time.Now()
		defer func() { c.observer.ObserveShopifyCall(op, err, time.Since(start)) }()
	}
	for attempt := 0; ; attempt++ {
		if werr := c.rateLimiter.Wait(ctx, shopDomain); werr != nil {
			return fmt.Errorf("failed to %s: %w", op, werr)
		}
		err = fn()
		if err == nil {
			return nil
		}
		if attempt >= c.retryConfig.MaxRetries || !transient(err) {
			break
		}
		delay := c.retryConfig.backoff(attempt)
		c.logger.Warn().
			Err(err).
			Str("shop", shopDomain).
			Str("op", op).
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Msg("Retrying Shopify call")
		if serr := sleepCtx(ctx, delay); serr != nil {
			return fmt.Errorf("failed to %s: %w", op, serr)
		}
	}
	return classify(op, err)
}

// Authentication methods

func (c *client) ExchangeToken(ctx context.Context, shop string, code string) (string, error) {
	token, err := c.app.GetAccessToken(ctx, shop, code)
	if err != nil {
		return "", fmt.Errorf("failed to exchange token: %w", err)
	}
	return token, nil
}

// Shop API

func (c *client) GetShop(ctx context.Context, shopDomain string, accessToken string) (*goshopify.Shop, error) {
	client, err := c.createClient(shopDomain, accessToken)
	if err != nil {
		return nil, err
	}
	var shop *goshopify.Shop
	err = c.call(ctx, shopDomain, "get shop", func() error {
		var err error
		shop, err = client.Shop.Get(ctx, nil)
		return err
	})
	return shop, err
}

// Webhook API

func (c *client) CreateWebhook(ctx context.Context, shopDomain string, accessToken string, topic string, address string) (*goshopify.Webhook, error) {
	client, err := c.createClient(shopDomain, accessToken)
	if err != nil {
		return nil, err
	}
	webhook := goshopify.Webhook{
		Topic:   topic,
		Address: address,
		Format:  "json",
	}
	var created *goshopify.Webhook
	err = c.call(ctx, shopDomain, "create webhook", func() error {
		var err error
		created, err = client.Webhook.Create(ctx, webhook)
		return err
	})
	return created, err
}

// Theme API

func (c *client) ListThemes(ctx context.Context, shopDomain string, accessToken string) ([]domain.Theme, error) {
	client, err := c.createClient(shopDomain, accessToken)
	if err != nil {
		return nil, err
	}
	var themes []goshopify.Theme
	err = c.call(ctx, shopDomain, "list themes", func() error {
		var err error
		themes, err = client.Theme.List(ctx, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.Theme, 0, len(themes))
	for _, t := range themes {
		out = append(out, domain.Theme{ID: t.Id, Name: t.Name, Role: t.Role})
	}
	return out, nil
}

func (c *client) ListAssets(ctx context.Context, shopDomain string, accessToken string, themeID uint64) ([]domain.ThemeAsset, error) {
	client, err := c.createClient(shopDomain, accessToken)
	if err != nil {
		return nil, err
	}
	var assets []goshopify.Asset
	err = c.call(ctx, shopDomain, "list assets", func() error {
		var err error
		assets, err = client.Asset.List(ctx, themeID, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.ThemeAsset, 0, len(assets))
	for _, a := range assets {
		out = append(out, toThemeAsset(a))
	}
	return out, nil
}

func (c *client) GetAsset(ctx context.Context, shopDomain string, accessToken string, themeID uint64, key string) (*domain.ThemeAsset, error) {
	client, err := c.createClient(shopDomain, accessToken)
	if err != nil {
		return nil, err
	}
	var asset *goshopify.Asset
	err = c.call(ctx, shopDomain, "get asset "+key, func() error {
		var err error
		asset, err = client.Asset.Get(ctx, themeID, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := toThemeAsset(*asset)
	return &out, nil
}

func (c *client) PutAsset(ctx context.Context, shopDomain string, accessToken string, themeID uint64, key string, value string) error {
	client, err := c.createClient(shopDomain, accessToken)
	if err != nil {
		return err
	}
	return c.call(ctx, shopDomain, "put asset "+key, func() error {
		_, err := client.Asset.Update(ctx, themeID, goshopify.Asset{Key: key, Value: value})
		return err
	})
}

func toThemeAsset(a goshopify.Asset) domain.ThemeAsset {
	return domain.ThemeAsset{
		Key:         a.Key,
		Value:       a.Value,
		Size:        a.Size,
		ContentType: a.ContentType,
	}
}

// Product API

func (c *client) ListProducts(ctx context.Context, shopDomain string, accessToken string, limit int) ([]goshopify.Product, error) {
	client, err := c.createClient(shopDomain, accessToken)
	if err != nil {
		return nil, err
	}
	var products []goshopify.Product
	err = c.call(ctx, shopDomain, "list products", func() error {
		var err error
		products, err = client.Product.List(ctx, goshopify.ListOptions{Limit: limit})
		return err
	})
	return products, err
}

func (c *client) GetProduct(ctx context.Context, shopDomain string, accessToken string, productID uint64) (*goshopify.Product, error) {
	client, err := c.createClient(shopDomain, accessToken)
	if err != nil {
		return nil, err
	}
	var product *goshopify.Product
	err = c.call(ctx, shopDomain, "get product", func() error {
		var err error
		product, err = client.Product.Get(ctx, productID, nil)
		return err
	})
	return product, err
}

func (c *client) SetTemplateSuffix(ctx context.Context, shopDomain string, accessToken string, productID uint64, suffix string) error {
	client, err := c.createClient(shopDomain, accessToken)
	if err != nil {
		return err
	}
	if suffix == "" {
		// Product.TemplateSuffix is omitempty, so clearing needs an explicit null
		body := map[string]any{"product": map[string]any{"id": productID, "template_suffix": nil}}
		return c.call(ctx, shopDomain, "clear product template", func() error {
			return client.Put(ctx, fmt.Sprintf("products/%d.json", productID), body, nil)
		})
	}
	return c.call(ctx, shopDomain, "update product template", func() error {
		_, err := client.Product.Update(ctx, goshopify.Product{Id: productID, TemplateSuffix: suffix})
		return err
	})
}

// Metafield API

func (c *client) ListProductMetafields(ctx context.Context, shopDomain string, accessToken string, productID uint64) ([]goshopify.Metafield, error) {
	client, err := c.createClient(shopDomain, accessToken)
	if err != nil {
		return nil, err
	}
	var metafields []goshopify.Metafield
	err = c.call(ctx, shopDomain, "list product metafields", func() error {
		var err error
		metafields, err = client.Product.ListMetafields(ctx, productID, nil)
		return err
	})
	return metafields, err
}

func (c *client) CreateProductMetafield(ctx context.Context, shopDomain string, accessToken string, productID uint64, metafield goshopify.Metafield) (*goshopify.Metafield, error) {
	client, err := c.createClient(shopDomain, accessToken)
	if err != nil {
		return nil, err
	}
	var created *goshopify.Metafield
	err = c.call(ctx, shopDomain, "create product metafield "+metafield.Key, func() error {
		var err error
		created, err = client.Product.CreateMetafield(ctx, productID, metafield)
		return err
	})
	return created, err
}

func (c *client) DeleteProductMetafield(ctx context.Context, shopDomain string, accessToken string, productID uint64, metafieldID uint64) error {
	client, err := c.createClient(shopDomain, accessToken)
	if err != nil {
		return err
	}
	return c.call(ctx, shopDomain, "delete product metafield", func() error {
		return client.Product.DeleteMetafield(ctx, productID, metafieldID)
	})
}

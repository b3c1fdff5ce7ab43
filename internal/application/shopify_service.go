package application

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"adlign-personalization-layer/internal/domain"
	"adlign-personalization-layer/internal/ports"

	"github.com/rs/zerolog"
)

// OAuthConfig holds the app credentials and install parameters
type OAuthConfig struct {
	APIKey string
	Scopes []string
	// AppURL is the public base URL; the callback and webhook paths hang off it.
	AppURL string
}

func (c OAuthConfig) redirectURI() string {
	return strings.TrimSuffix(c.AppURL, "/") + "/auth/callback"
}

func (c OAuthConfig) webhookAddress() string {
	return strings.TrimSuffix(c.AppURL, "/") + "/webhooks/shopify"
}

// WebhookTopics are registered for every shop after install
var WebhookTopics = []string{domain.TopicAppUninstalled, domain.TopicThemesPublish}

// ShopifyService owns the OAuth install flow and the encrypted token store
type ShopifyService struct {
	shops    ports.ShopRepository
	sessions ports.SessionRepository
	client   ports.ShopifyClient
	tokens   ports.TokenManager
	verifier ports.SignatureVerifier
	config   OAuthConfig
	logger   zerolog.Logger
	now      func() time.Time
}

// NewShopifyService creates a new Shopify application service
func NewShopifyService(
	shops ports.ShopRepository,
	sessions ports.SessionRepository,
	client ports.ShopifyClient,
	tokens ports.TokenManager,
	verifier ports.SignatureVerifier,
	config OAuthConfig,
	logger zerolog.Logger,
) *ShopifyService {
	return &ShopifyService{
		shops:    shops,
		sessions: sessions,
		client:   client,
		tokens:   tokens,
		verifier: verifier,
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock replaces the time source, for tests
func (s *ShopifyService) WithClock(now func() time.Time) *ShopifyService {
	s.now = now
	return s
}

// BeginInstall stores a fresh OAuth state for shop and returns the Shopify
// authorize URL to redirect the merchant to.
func (s *ShopifyService) BeginInstall(ctx context.Context, shop, returnURL string) (string, error) {
	if !domain.ValidShopDomain(shop) {
		return "", fmt.Errorf("%w: invalid shop domain %q", domain.ErrInvalidInput, shop)
	}

	now := s.now()
	if purged, err := s.sessions.PurgeExpired(ctx, now); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to purge expired OAuth sessions")
	} else if purged > 0 {
		s.logger.Debug().Int("purged", purged).Msg("Purged expired OAuth sessions")
	}

	state, err := newState()
	if err != nil {
		return "", fmt.Errorf("failed to generate oauth state: %w", err)
	}

	session := &domain.Session{
		State:     state,
		Shop:      shop,
		Scopes:    s.config.Scopes,
		ReturnURL: returnURL,
		CreatedAt: now,
		ExpiresAt: now.Add(domain.SessionTTL),
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return "", fmt.Errorf("failed to save oauth session: %w", err)
	}

	q := url.Values{}
	q.Set("client_id", s.config.APIKey)
	q.Set("scope", strings.Join(s.config.Scopes, ","))
	q.Set("redirect_uri", s.config.redirectURI())
	q.Set("state", state)
	q.Set("grant_options[]", "per-user")
	authURL := "https://" + shop + "/admin/oauth/authorize?" + q.Encode()

	s.logger.Info().
		Str("shop", shop).
		Strs("scopes", s.config.Scopes).
		Msg("Generated OAuth authorization URL")

	return authURL, nil
}

// CompleteInstall validates the OAuth callback, exchanges the code and stores
// the encrypted token. The returned session carries the original return URL.
func (s *ShopifyService) CompleteInstall(ctx context.Context, query url.Values) (*domain.Session, error) {
	shop := query.Get("shop")
	code := query.Get("code")
	state := query.Get("state")
	if shop == "" || code == "" || state == "" {
		return nil, fmt.Errorf("%w: shop, code and state are required", domain.ErrInvalidInput)
	}
	if !domain.ValidShopDomain(shop) {
		return nil, fmt.Errorf("%w: invalid shop domain %q", domain.ErrInvalidInput, shop)
	}
	if !s.verifier.VerifyQuery(query) {
		s.logger.Warn().Str("shop", shop).Msg("OAuth callback failed HMAC verification")
		return nil, domain.ErrInvalidSignature
	}

	session, err := s.sessions.ConsumeSession(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("failed to load oauth session: %w", err)
	}
	if session == nil || session.Expired(s.now()) || session.Shop != shop {
		s.logger.Warn().Str("shop", shop).Msg("OAuth callback with unknown, expired or mismatched state")
		return nil, domain.ErrInvalidState
	}

	accessToken, err := s.client.ExchangeToken(ctx, shop, code)
	if err != nil {
		s.logger.Error().Err(err).Str("shop", shop).Msg("Failed to exchange token")
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	encrypted, err := s.tokens.EncryptToken(accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}

	record := &domain.Shop{
		Domain:      shop,
		AccessToken: encrypted,
		Scope:       strings.Join(session.Scopes, ","),
	}
	if err := s.shops.SaveShop(ctx, record); err != nil {
		s.logger.Error().Err(err).Str("shop", shop).Msg("Failed to save shop")
		return nil, fmt.Errorf("failed to save shop: %w", err)
	}

	s.registerWebhooks(ctx, shop, accessToken)

	s.logger.Info().Str("shop", shop).Msg("Shop installed")
	return session, nil
}

// registerWebhooks is best effort; failures never block an install.
func (s *ShopifyService) registerWebhooks(ctx context.Context, shop, accessToken string) {
	address := s.config.webhookAddress()
	for _, topic := range WebhookTopics {
		if _, err := s.client.CreateWebhook(ctx, shop, accessToken, topic, address); err != nil {
			s.logger.Warn().
				Err(err).
				Str("shop", shop).
				Str("topic", topic).
				Msg("Failed to register webhook")
			continue
		}
		s.logger.Debug().Str("shop", shop).Str("topic", topic).Msg("Registered webhook")
	}
}

// AccessToken returns the decrypted token for shop
func (s *ShopifyService) AccessToken(ctx context.Context, shop string) (string, error) {
	if shop == "" {
		return "", fmt.Errorf("%w: shop_domain is required", domain.ErrInvalidInput)
	}
	record, err := s.shops.GetShop(ctx, shop)
	if err != nil {
		return "", fmt.Errorf("failed to get shop: %w", err)
	}
	if record == nil || record.AccessToken == "" {
		return "", fmt.Errorf("%w: %s", domain.ErrShopNotConnected, shop)
	}
	token, err := s.tokens.DecryptToken(record.AccessToken)
	if err != nil {
		s.logger.Error().Err(err).Str("shop", shop).Msg("Failed to decrypt access token")
		return "", fmt.Errorf("failed to decrypt access token: %w", err)
	}
	return token, nil
}

// ListShops returns the connected shops. Tokens stay encrypted.
func (s *ShopifyService) ListShops(ctx context.Context) ([]*domain.Shop, error) {
	shops, err := s.shops.ListShops(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list shops")
		return nil, fmt.Errorf("failed to list shops: %w", err)
	}
	return shops, nil
}

// Statuses describes every connected shop with a masked token preview.
// With validate set each token is checked against the Admin API.
func (s *ShopifyService) Statuses(ctx context.Context, validate bool) ([]domain.ShopStatus, error) {
	shops, err := s.ListShops(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]domain.ShopStatus, 0, len(shops))
	for _, shop := range shops {
		status := domain.ShopStatus{
			Domain:      shop.Domain,
			HasToken:    shop.AccessToken != "",
			InstalledAt: shop.InstalledAt,
		}
		if status.HasToken {
			token, err := s.tokens.DecryptToken(shop.AccessToken)
			if err != nil {
				s.logger.Warn().Err(err).Str("shop", shop.Domain).Msg("Failed to decrypt access token for shop")
				status.HasToken = false
			} else {
				status.TokenPreview = domain.MaskToken(token)
				if validate {
					valid, err := s.tokens.ValidateToken(ctx, shop.Domain, token)
					if err != nil {
						s.logger.Warn().Err(err).Str("shop", shop.Domain).Msg("Token validation failed")
					} else {
						status.Valid = &valid
					}
				}
			}
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// Uninstall removes the stored token for shop
func (s *ShopifyService) Uninstall(ctx context.Context, shop string) error {
	if err := s.shops.DeleteShop(ctx, shop); err != nil {
		return fmt.Errorf("failed to delete shop: %w", err)
	}
	s.logger.Info().Str("shop", shop).Msg("Shop token removed")
	return nil
}

func newState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

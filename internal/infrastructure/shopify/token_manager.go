package shopify

import (
	"context"
	"errors"
	"fmt"

	"adlign-personalization-layer/internal/domain"
	"adlign-personalization-layer/internal/ports"

	"github.com/rs/zerolog"
)

// TokenManager seals access tokens for storage and checks they still work
type TokenManager struct {
	encryptionSvc ports.EncryptionService
	client        ports.ShopifyClient
	logger        zerolog.Logger
}

// NewTokenManager creates a new token manager
func NewTokenManager(encryptionSvc ports.EncryptionService, client ports.ShopifyClient, logger zerolog.Logger) *TokenManager {
	return &TokenManager{
		encryptionSvc: encryptionSvc,
		client:        client,
		logger:        logger,
	}
}

// EncryptToken encrypts an access token before storage
func (tm *TokenManager) EncryptToken(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("token cannot be empty")
	}
	return tm.encryptionSvc.Encrypt(token)
}

// DecryptToken decrypts an access token after retrieval
func (tm *TokenManager) DecryptToken(encryptedToken string) (string, error) {
	if encryptedToken == "" {
		return "", fmt.Errorf("encrypted token cannot be empty")
	}
	return tm.encryptionSvc.Decrypt(encryptedToken)
}

// ValidateToken makes a lightweight Shop call. Shopify tokens do not expire,
// so only an explicit 401/403 counts as invalid; other failures are logged
// and the token is assumed valid.
func (tm *TokenManager) ValidateToken(ctx context.Context, shopDomain string, token string) (bool, error) {
	if token == "" {
		return false, fmt.Errorf("token is empty")
	}
	if shopDomain == "" {
		return false, fmt.Errorf("shop domain is required for token validation")
	}

	_, err := tm.client.GetShop(ctx, shopDomain, token)
	if err == nil {
		tm.logger.Debug().Str("shop", shopDomain).Msg("Token validation successful")
		return true, nil
	}
	if errors.Is(err, domain.ErrUnauthorized) {
		tm.logger.Warn().Str("shop", shopDomain).Msg("Token validation failed: token is invalid or revoked")
		return false, nil
	}

	tm.logger.Warn().
		Err(err).
		Str("shop", shopDomain).
		Msg("Token validation encountered an error (assuming token is valid)")
	return true, nil
}

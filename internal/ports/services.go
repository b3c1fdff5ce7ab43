package ports

import (
	"context"
	"net/url"

	"adlign-personalization-layer/internal/domain"
)

// EncryptionService encrypts secrets at rest
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// LLMClient sends a single prompt to a language model and returns its text reply
type LLMClient interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// WebhookHandler processes one family of webhook topics
type WebhookHandler interface {
	CanHandle(topic string) bool
	Handle(ctx context.Context, event *domain.WebhookEvent) error
}

// TokenManager seals Shopify access tokens and checks they are still accepted
type TokenManager interface {
	EncryptToken(token string) (string, error)
	DecryptToken(encryptedToken string) (string, error)
	ValidateToken(ctx context.Context, shop string, token string) (bool, error)
}

// SignatureVerifier checks Shopify HMAC signatures
type SignatureVerifier interface {
	VerifyQuery(query url.Values) bool
	VerifyWebhook(body []byte, signature string) bool
}

package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"adlign-personalization-layer/internal/domain"
	"adlign-personalization-layer/internal/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// WebhookService verifies Shopify deliveries and dispatches them to handlers
type WebhookService struct {
	verifier ports.SignatureVerifier
	handlers []ports.WebhookHandler
	logger   zerolog.Logger
	now      func() time.Time
}

func NewWebhookService(verifier ports.SignatureVerifier, logger zerolog.Logger, handlers ...ports.WebhookHandler) *WebhookService {
	return &WebhookService{
		verifier: verifier,
		handlers: handlers,
		logger:   logger,
		now:      time.Now,
	}
}

// Process verifies the body signature, then runs every handler for the topic.
// Topics without a handler are acknowledged and ignored.
func (s *WebhookService) Process(ctx context.Context, topic, shop string, body []byte, signature string) error {
	if !s.verifier.VerifyWebhook(body, signature) {
		s.logger.Warn().Str("topic", topic).Str("shop", shop).Msg("Webhook failed HMAC verification")
		return domain.ErrInvalidSignature
	}
	if topic == "" || shop == "" {
		return fmt.Errorf("%w: topic and shop headers are required", domain.ErrInvalidInput)
	}

	event := &domain.WebhookEvent{
		ID:         uuid.NewString(),
		Topic:      topic,
		Shop:       shop,
		Payload:    body,
		ReceivedAt: s.now(),
	}

	var errs []error
	handled := 0
	for _, h := range s.handlers {
		if !h.CanHandle(topic) {
			continue
		}
		handled++
		if err := h.Handle(ctx, event); err != nil {
			s.logger.Error().Err(err).Str("topic", topic).Str("shop", shop).Msg("Webhook handler failed")
			errs = append(errs, err)
		}
	}

	s.logger.Info().
		Str("topic", topic).
		Str("shop", shop).
		Int("handlers", handled).
		Msg("Webhook processed")
	return errors.Join(errs...)
}

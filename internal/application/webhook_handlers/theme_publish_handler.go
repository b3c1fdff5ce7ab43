package webhook_handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"adlign-personalization-layer/internal/domain"

	"github.com/rs/zerolog"
)

// ScanStarter queues a background theme scan
type ScanStarter interface {
	Start(ctx context.Context, shop, trigger string) (*domain.ScanJob, bool, error)
}

// ThemePublishHandler rescans a shop when a new theme goes live
type ThemePublishHandler struct {
	logger zerolog.Logger
	scans  ScanStarter
}

func NewThemePublishHandler(logger zerolog.Logger, scans ScanStarter) *ThemePublishHandler {
	return &ThemePublishHandler{logger: logger, scans: scans}
}

func (h *ThemePublishHandler) CanHandle(topic string) bool {
	return topic == domain.TopicThemesPublish
}

func (h *ThemePublishHandler) Handle(ctx context.Context, event *domain.WebhookEvent) error {
	var theme struct {
		ID   uint64 `json:"id"`
		Name string `json:"name"`
		Role string `json:"role"`
	}
	if err := json.Unmarshal(event.Payload, &theme); err != nil {
		return fmt.Errorf("failed to parse theme publish webhook payload: %w", err)
	}

	job, started, err := h.scans.Start(ctx, event.Shop, "webhook:"+domain.TopicThemesPublish)
	if err != nil {
		return fmt.Errorf("failed to start rescan: %w", err)
	}

	h.logger.Info().
		Str("shop", event.Shop).
		Uint64("theme_id", theme.ID).
		Str("theme", theme.Name).
		Str("job_id", job.ID).
		Bool("started", started).
		Msg("Theme published, rescan requested")
	return nil
}

package domain

import (
	"encoding/json"
	"time"
)

const (
	TopicAppUninstalled = "app/uninstalled"
	TopicThemesPublish  = "themes/publish"
)

// WebhookEvent is a verified Shopify webhook delivery
type WebhookEvent struct {
	ID         string          `json:"id"`
	Topic      string          `json:"topic"`
	Shop       string          `json:"shop"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"received_at"`
}

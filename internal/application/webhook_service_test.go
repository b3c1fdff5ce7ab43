package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"adlign-personalization-layer/internal/application/webhook_handlers"
	"adlign-personalization-layer/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingHandler struct{ topic string }

func (h failingHandler) CanHandle(topic string) bool { return topic == h.topic }

func (h failingHandler) Handle(ctx context.Context, event *domain.WebhookEvent) error {
	return errors.New("handler exploded")
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	svc := NewWebhookService(fakeVerifier{}, zerolog.Nop())

	err := svc.Process(context.Background(), domain.TopicAppUninstalled, testShop, []byte(`{}`), "forged")
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)

	err = svc.Process(context.Background(), "", testShop, []byte(`{}`), "valid")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestWebhookUninstallRemovesShop(t *testing.T) {
	st := newStores()
	ctx := context.Background()
	require.NoError(t, st.shops.SaveShop(ctx, &domain.Shop{Domain: testShop, AccessToken: "enc:shpat_x"}))
	shops := newTestShopifyService(st, newFakeShopify(), time.Now())

	svc := NewWebhookService(fakeVerifier{}, zerolog.Nop(),
		webhook_handlers.NewAppUninstalledHandler(zerolog.Nop(), shops))

	require.NoError(t, svc.Process(ctx, domain.TopicAppUninstalled, testShop, []byte(`{"domain":"demo-store.com"}`), "valid"))

	shop, err := st.shops.GetShop(ctx, testShop)
	require.NoError(t, err)
	assert.Nil(t, shop)
}

func TestWebhookThemePublishStartsRescan(t *testing.T) {
	st := newStores()
	analyzer := &gatedAnalyzer{release: make(chan struct{})}
	close(analyzer.release)
	jobs := NewScanJobManager(analyzer, st.jobs, nil, zerolog.Nop())
	defer jobs.Shutdown(context.Background())

	svc := NewWebhookService(fakeVerifier{}, zerolog.Nop(),
		webhook_handlers.NewThemePublishHandler(zerolog.Nop(), jobs))

	payload := []byte(`{"id": 7, "name": "Dawn", "role": "main"}`)
	require.NoError(t, svc.Process(context.Background(), domain.TopicThemesPublish, testShop, payload, "valid"))

	job := waitForStatus(t, jobs, testShop, domain.ScanJobCompleted)
	assert.Equal(t, "webhook:themes/publish", job.Trigger)
}

func TestWebhookJoinsHandlerErrors(t *testing.T) {
	svc := NewWebhookService(fakeVerifier{}, zerolog.Nop(),
		failingHandler{topic: "products/update"},
		failingHandler{topic: "orders/create"})

	err := svc.Process(context.Background(), "products/update", testShop, []byte(`{}`), "valid")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler exploded")

	assert.NoError(t, svc.Process(context.Background(), "carts/update", testShop, []byte(`{}`), "valid"))
}

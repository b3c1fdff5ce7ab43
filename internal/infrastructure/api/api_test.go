package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"adlign-personalization-layer/internal/application"
	"adlign-personalization-layer/internal/application/webhook_handlers"
	"adlign-personalization-layer/internal/domain"
	"adlign-personalization-layer/internal/infrastructure/middleware"
	"adlign-personalization-layer/internal/infrastructure/pubsub"
	"adlign-personalization-layer/internal/infrastructure/repository"
	"adlign-personalization-layer/internal/infrastructure/shopify"
	"adlign-personalization-layer/internal/ports"
	"adlign-personalization-layer/internal/scanner"

	goshopify "github.com/bold-commerce/go-shopify/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testShop   = "demo-store.myshopify.com"
	testSecret = "shpss_test_secret"
)

type stubShopify struct {
	ports.ShopifyClient
	mu       sync.Mutex
	webhooks []string
}

func (s *stubShopify) ExchangeToken(ctx context.Context, shop, code string) (string, error) {
	return "shpat_" + code, nil
}

func (s *stubShopify) CreateWebhook(ctx context.Context, shop, token, topic, address string) (*goshopify.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.webhooks = append(s.webhooks, topic)
	return &goshopify.Webhook{Topic: topic, Address: address}, nil
}

type plainTokens struct{}

func (plainTokens) EncryptToken(token string) (string, error) { return "enc:" + token, nil }
func (plainTokens) DecryptToken(token string) (string, error) {
	return strings.TrimPrefix(token, "enc:"), nil
}
func (plainTokens) ValidateToken(ctx context.Context, shop, token string) (bool, error) {
	return true, nil
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	handler  http.Handler
	clock    *testClock
	verifier *shopify.Verifier
	shops    *repository.ShopRepository
	mappings *repository.MappingRepository
	jobs     *repository.ScanJobRepository
	client   *stubShopify
}

func newTestEnv(t *testing.T, rateLimit middleware.RateLimitConfig) *testEnv {
	t.Helper()
	kv := repository.NewMemoryStore()
	shops := repository.NewShopRepository(kv)
	sessions := repository.NewSessionRepository(kv)
	mappings := repository.NewMappingRepository(kv)
	landings := repository.NewLandingRepository(kv)
	jobRepo := repository.NewScanJobRepository(kv)

	clock := &testClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	client := &stubShopify{}
	verifier := shopify.NewVerifier(testSecret)
	logger := zerolog.Nop()

	shopSvc := application.NewShopifyService(shops, sessions, client, plainTokens{}, verifier, application.OAuthConfig{
		APIKey: "key",
		Scopes: []string{"read_themes", "write_products"},
		AppURL: "https://app.example.com",
	}, logger).WithClock(clock.now)
	scans := application.NewScanService(shopSvc, client, scanner.New(), nil, mappings, logger)
	events := pubsub.NewScanJobPubSub(logger)
	jobs := application.NewScanJobManager(scans, jobRepo, events, logger)
	t.Cleanup(func() { _ = jobs.Shutdown(context.Background()) })

	webhooks := application.NewWebhookService(verifier, logger,
		webhook_handlers.NewAppUninstalledHandler(logger, shopSvc),
		webhook_handlers.NewThemePublishHandler(logger, jobs),
	)

	handler := NewRouter(Deps{
		Shopify:         shopSvc,
		Scans:           scans,
		Jobs:            jobs,
		Events:          events,
		Mappings:        application.NewMappingService(mappings, logger),
		Landings:        application.NewLandingService(landings, mappings, logger),
		Personalization: application.NewPersonalizationService(shopSvc, client, landings, mappings, logger),
		Analytics:       application.NewAnalyticsService(shops, landings, mappings, logger),
		Webhooks:        webhooks,
		RateLimit:       rateLimit,
		Logger:          logger,
	})

	return &testEnv{
		handler:  handler,
		clock:    clock,
		verifier: verifier,
		shops:    shops,
		mappings: mappings,
		jobs:     jobRepo,
		client:   client,
	}
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

// beginInstall follows /auth and returns the state Shopify would echo back
func (e *testEnv) beginInstall(t *testing.T, returnURL string) string {
	t.Helper()
	target := "/auth?shop=" + testShop
	if returnURL != "" {
		target += "&return_url=" + url.QueryEscape(returnURL)
	}
	rec := e.do(t, http.MethodGet, target, "")
	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, testShop, loc.Host)
	assert.Equal(t, "https://app.example.com/auth/callback", loc.Query().Get("redirect_uri"))
	return loc.Query().Get("state")
}

func (e *testEnv) callback(state string) string {
	q := url.Values{
		"shop":      {testShop},
		"code":      {"abc123"},
		"state":     {state},
		"timestamp": {"1717243200"},
	}
	q.Set("hmac", e.verifier.SignQuery(q))
	return "/auth/callback?" + q.Encode()
}

func TestOAuthInstallFlow(t *testing.T) {
	env := newTestEnv(t, middleware.RateLimitConfig{})
	state := env.beginInstall(t, "")

	rec := env.do(t, http.MethodGet, env.callback(state), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, testShop, body["shop"])

	stored, err := env.shops.GetShop(context.Background(), testShop)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "enc:shpat_abc123", stored.AccessToken)
	assert.NotEmpty(t, env.client.webhooks)

	rec = env.do(t, http.MethodGet, "/api/stores", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stores := decodeBody(t, rec)["stores"].([]any)
	require.Len(t, stores, 1)
	assert.Equal(t, testShop, stores[0].(map[string]any)["domain"])
	assert.Equal(t, "active", stores[0].(map[string]any)["status"])

	// states are single use
	rec = env.do(t, http.MethodGet, env.callback(state), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOAuthCallbackRedirectsToReturnURL(t *testing.T) {
	env := newTestEnv(t, middleware.RateLimitConfig{})
	state := env.beginInstall(t, "https://admin.example.com/settings?tab=shopify")

	rec := env.do(t, http.MethodGet, env.callback(state), "")
	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "admin.example.com", loc.Host)
	assert.Equal(t, "shopify", loc.Query().Get("tab"))
	assert.Equal(t, "success", loc.Query().Get("shopify_oauth"))
	assert.Equal(t, testShop, loc.Query().Get("shop"))
}

func TestOAuthCallbackRejectsExpiredState(t *testing.T) {
	env := newTestEnv(t, middleware.RateLimitConfig{})
	state := env.beginInstall(t, "")

	env.clock.advance(domain.SessionTTL + time.Second)
	rec := env.do(t, http.MethodGet, env.callback(state), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["success"])
}

func TestOAuthCallbackRejectsBadHMAC(t *testing.T) {
	env := newTestEnv(t, middleware.RateLimitConfig{})
	state := env.beginInstall(t, "")

	target := env.callback(state) + "&extra=tampered"
	rec := env.do(t, http.MethodGet, target, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	stored, err := env.shops.GetShop(context.Background(), testShop)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestRootRedirectsShopToInstall(t *testing.T) {
	env := newTestEnv(t, middleware.RateLimitConfig{})
	rec := env.do(t, http.MethodGet, "/?shop="+testShop, "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/auth?shop="+url.QueryEscape(testShop), rec.Header().Get("Location"))
}

func TestAuthRequiresShop(t *testing.T) {
	env := newTestEnv(t, middleware.RateLimitConfig{})
	rec := env.do(t, http.MethodGet, "/auth", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "shop parameter is required", decodeBody(t, rec)["error"])
}

func TestLandingLifecycle(t *testing.T) {
	env := newTestEnv(t, middleware.RateLimitConfig{})
	create := `{"shop_domain":"` + testShop + `","landing_data":{"handle":"vip","mapping_id":"mapping_1","custom_title":"VIP Soap","is_active":true}}`

	rec := env.do(t, http.MethodPost, "/api/landings", create)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	landing := decodeBody(t, rec)["landing"].(map[string]any)
	assert.Equal(t, "vip", landing["handle"])
	assert.Equal(t, testShop, landing["shop_domain"])
	assert.True(t, strings.HasPrefix(landing["id"].(string), "landing_"))

	rec = env.do(t, http.MethodPost, "/api/landings", create)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/landings/vip?shop_domain="+testShop, `{"custom_title":"Gold Soap"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	landing = decodeBody(t, rec)["landing"].(map[string]any)
	assert.Equal(t, "Gold Soap", landing["custom_title"])
	assert.Equal(t, "mapping_1", landing["mapping_id"])

	rec = env.do(t, http.MethodGet, "/api/landings?shop_domain="+testShop, "")
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decodeBody(t, rec)
	assert.EqualValues(t, 1, listed["total"])
	first := listed["mappings"].([]any)[0].(map[string]any)
	assert.Equal(t, "https://"+testShop+"/products/coconut-soap", first["label"])
	assert.NotContains(t, first, "product_url")

	rec = env.do(t, http.MethodGet, "/api/landings/vip/script?shop_domain="+testShop, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/javascript")
	assert.Contains(t, rec.Body.String(), "Gold Soap")

	rec = env.do(t, http.MethodDelete, "/api/landings/vip?shop_domain="+testShop, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/landings/vip?shop_domain="+testShop, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.do(t, http.MethodDelete, "/api/landings/vip?shop_domain="+testShop, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLandingValidation(t *testing.T) {
	env := newTestEnv(t, middleware.RateLimitConfig{})

	rec := env.do(t, http.MethodPost, "/api/landings", `{"shop_domain":"`+testShop+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/landings", `{"shop_domain":"`+testShop+`","landing_data":{"handle":"Bad Handle","mapping_id":"m"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/landings", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "invalid JSON payload")

	rec = env.do(t, http.MethodGet, "/api/landings", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMappingEndpoints(t *testing.T) {
	env := newTestEnv(t, middleware.RateLimitConfig{})
	require.NoError(t, env.mappings.SaveMapping(context.Background(), &domain.MappingRecord{
		ID:         "mapping_1",
		ShopDomain: testShop,
		Label:      "https://" + testShop + "/products/coconut-soap",
		Mapping: domain.ElementMapping{
			"product_title": {Type: domain.KindText, Selector: ".product__title"},
		},
	}))

	rec := env.do(t, http.MethodGet, "/api/mappings?shop_domain="+testShop, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decodeBody(t, rec)["total"])

	rec = env.do(t, http.MethodPost, "/api/mappings/mapping_1/test-script", `{"content":{"product_title":"Hello"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	script := decodeBody(t, rec)["script"].(string)
	assert.Contains(t, script, ".product__title")
	assert.Contains(t, script, "Hello")

	rec = env.do(t, http.MethodPost, "/api/mappings/mapping_1/test-script", `{"content":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/mappings/mapping_1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/mappings/mapping_1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCampaignEndpoints(t *testing.T) {
	env := newTestEnv(t, middleware.RateLimitConfig{})

	rec := env.do(t, http.MethodGet, "/api/campaigns", "")
	require.Equal(t, http.StatusOK, rec.Code)
	available := decodeBody(t, rec)["available_campaigns"].([]any)
	require.NotEmpty(t, available)

	variant := available[0].(string)
	rec = env.do(t, http.MethodGet, "/api/campaign/"+variant+"?product_id=42", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["campaign_name"])
	debug := body["debug"].(map[string]any)
	assert.Equal(t, variant, debug["variant"])
	assert.Equal(t, "42", debug["product_id"])

	rec = env.do(t, http.MethodGet, "/api/campaign/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Len(t, body["available_campaigns"], len(available))
}

func TestProtectedOperationsNeedConnectedShop(t *testing.T) {
	env := newTestEnv(t, middleware.RateLimitConfig{})

	rec := env.do(t, http.MethodPost, "/api/themes/analyze", `{"shop_domain":"`+testShop+`"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/products?shop_domain="+testShop, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/products/abc/diagnose?shop_domain="+testShop, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/products/42/restore?shop_domain="+testShop, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/products/42/restore", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScanJobEventsReplaysFinishedJob(t *testing.T) {
	env := newTestEnv(t, middleware.RateLimitConfig{})
	done := env.clock.now()
	require.NoError(t, env.jobs.SaveScanJob(context.Background(), &domain.ScanJob{
		ID:               "job_1",
		ShopDomain:       testShop,
		Status:           domain.ScanJobCompleted,
		ElementsDetected: 7,
		CreatedAt:        done,
		CompletedAt:      &done,
	}))

	rec := env.do(t, http.MethodGet, "/api/themes/scan-jobs/"+testShop, "")
	require.Equal(t, http.StatusOK, rec.Code)
	job := decodeBody(t, rec)["job"].(map[string]any)
	assert.Equal(t, "completed", job["status"])

	rec = env.do(t, http.MethodGet, "/api/themes/scan-jobs/"+testShop+"/events", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "event: scan_job\n")
	assert.Contains(t, rec.Body.String(), `"status":"completed"`)

	rec = env.do(t, http.MethodGet, "/api/themes/scan-jobs/other.myshopify.com", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookEndpoint(t *testing.T) {
	env := newTestEnv(t, middleware.RateLimitConfig{})
	ctx := context.Background()
	require.NoError(t, env.shops.SaveShop(ctx, &domain.Shop{Domain: testShop, AccessToken: "enc:shpat_x"}))

	body := `{"myshopify_domain":"` + testShop + `"}`
	send := func(signature string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/shopify", strings.NewReader(body))
		req.Header.Set("X-Shopify-Topic", domain.TopicAppUninstalled)
		req.Header.Set("X-Shopify-Shop-Domain", testShop)
		req.Header.Set("X-Shopify-Hmac-Sha256", signature)
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)
		return rec
	}

	rec := send("bm90LWEtc2lnbmF0dXJl")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	stored, err := env.shops.GetShop(ctx, testShop)
	require.NoError(t, err)
	assert.NotNil(t, stored)

	rec = send(env.verifier.SignWebhook([]byte(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decodeBody(t, rec)["received"])
	stored, err = env.shops.GetShop(ctx, testShop)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestRouterRateLimit(t *testing.T) {
	env := newTestEnv(t, middleware.RateLimitConfig{
		Store:  middleware.NewMemoryWindowStore(),
		Limit:  2,
		Window: time.Minute,
	})

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health", "").Code)

	rec := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestSnippetEndpoint(t *testing.T) {
	env := newTestEnv(t, middleware.RateLimitConfig{})
	rec := env.do(t, http.MethodGet, "/api/snippet", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["snippet"])
	assert.NotEmpty(t, body["section"])
	assert.NotEmpty(t, body["snippet_key"])
}

func TestStatusForMapsDomainErrors(t *testing.T) {
	cases := map[error]int{
		domain.ErrInvalidInput:       http.StatusBadRequest,
		domain.ErrShopNotConnected:   http.StatusUnauthorized,
		domain.ErrInvalidState:       http.StatusUnauthorized,
		domain.ErrNotFound:           http.StatusNotFound,
		domain.ErrNoMainTheme:        http.StatusNotFound,
		domain.ErrConflict:           http.StatusConflict,
		application.ErrManagerClosed: http.StatusServiceUnavailable,
		context.DeadlineExceeded:     http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, statusFor(err), err.Error())
	}
}

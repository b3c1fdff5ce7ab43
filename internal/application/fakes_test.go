package application

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"adlign-personalization-layer/internal/domain"
	"adlign-personalization-layer/internal/infrastructure/repository"

	goshopify "github.com/bold-commerce/go-shopify/v4"
)

// fakeShopify is an in-memory Admin API with one theme per shop.
type fakeShopify struct {
	mu sync.Mutex

	themes     []domain.Theme
	assets     map[string]string
	assetErrs  map[string][]error
	assetCalls map[string]int
	products   map[uint64]*goshopify.Product
	metafields map[uint64][]goshopify.Metafield
	webhooks   []string
	suffixes   map[uint64]string
	exchanged  string
	putOrder   []string

	nextMetafieldID uint64
	// block makes GetAsset wait until the context is done
	block bool
}

func newFakeShopify() *fakeShopify {
	return &fakeShopify{
		themes:     []domain.Theme{{ID: 1, Name: "Backup", Role: "unpublished"}, {ID: 7, Name: "Dawn", Role: "main"}},
		assets:     map[string]string{},
		assetErrs:  map[string][]error{},
		assetCalls: map[string]int{},
		products:   map[uint64]*goshopify.Product{},
		metafields: map[uint64][]goshopify.Metafield{},
		suffixes:   map[uint64]string{},
		exchanged:  "shpat_0123456789abcdef",
	}
}

func (f *fakeShopify) ExchangeToken(ctx context.Context, shop, code string) (string, error) {
	if code == "bad" {
		return "", fmt.Errorf("invalid code")
	}
	return f.exchanged, nil
}

func (f *fakeShopify) GetShop(ctx context.Context, shop, token string) (*goshopify.Shop, error) {
	if token == "revoked" {
		return nil, domain.ErrUnauthorized
	}
	return &goshopify.Shop{Domain: shop}, nil
}

func (f *fakeShopify) CreateWebhook(ctx context.Context, shop, token, topic, address string) (*goshopify.Webhook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.webhooks = append(f.webhooks, topic+" "+address)
	return &goshopify.Webhook{Topic: topic, Address: address}, nil
}

func (f *fakeShopify) ListThemes(ctx context.Context, shop, token string) ([]domain.Theme, error) {
	return f.themes, nil
}

func (f *fakeShopify) ListAssets(ctx context.Context, shop, token string, themeID uint64) ([]domain.ThemeAsset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.assets))
	for k := range f.assets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]domain.ThemeAsset, 0, len(keys))
	for _, k := range keys {
		out = append(out, domain.ThemeAsset{Key: k, Size: len(f.assets[k])})
	}
	return out, nil
}

func (f *fakeShopify) GetAsset(ctx context.Context, shop, token string, themeID uint64, key string) (*domain.ThemeAsset, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assetCalls[key]++
	if errs := f.assetErrs[key]; len(errs) > 0 {
		err := errs[0]
		f.assetErrs[key] = errs[1:]
		if err != nil {
			return nil, err
		}
	}
	value, ok := f.assets[key]
	if !ok {
		return nil, fmt.Errorf("failed to get asset %s: %w", key, domain.ErrNotFound)
	}
	return &domain.ThemeAsset{Key: key, Value: value}, nil
}

func (f *fakeShopify) PutAsset(ctx context.Context, shop, token string, themeID uint64, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assets[key] = value
	f.putOrder = append(f.putOrder, key)
	return nil
}

func (f *fakeShopify) ListProducts(ctx context.Context, shop, token string, limit int) ([]goshopify.Product, error) {
	var out []goshopify.Product
	for _, p := range f.products {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeShopify) GetProduct(ctx context.Context, shop, token string, productID uint64) (*goshopify.Product, error) {
	p, ok := f.products[productID]
	if !ok {
		return nil, fmt.Errorf("failed to get product: %w", domain.ErrNotFound)
	}
	cp := *p
	cp.TemplateSuffix = f.suffixes[productID]
	return &cp, nil
}

func (f *fakeShopify) SetTemplateSuffix(ctx context.Context, shop, token string, productID uint64, suffix string) error {
	f.suffixes[productID] = suffix
	return nil
}

func (f *fakeShopify) ListProductMetafields(ctx context.Context, shop, token string, productID uint64) ([]goshopify.Metafield, error) {
	return append([]goshopify.Metafield(nil), f.metafields[productID]...), nil
}

func (f *fakeShopify) CreateProductMetafield(ctx context.Context, shop, token string, productID uint64, mf goshopify.Metafield) (*goshopify.Metafield, error) {
	existing := f.metafields[productID]
	for i := range existing {
		if existing[i].Namespace == mf.Namespace && existing[i].Key == mf.Key {
			mf.Id = existing[i].Id
			existing[i] = mf
			return &mf, nil
		}
	}
	f.nextMetafieldID++
	mf.Id = f.nextMetafieldID
	f.metafields[productID] = append(existing, mf)
	return &mf, nil
}

func (f *fakeShopify) DeleteProductMetafield(ctx context.Context, shop, token string, productID, metafieldID uint64) error {
	existing := f.metafields[productID]
	for i := range existing {
		if existing[i].Id == metafieldID {
			f.metafields[productID] = append(existing[:i], existing[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("failed to delete metafield %d: %w", metafieldID, domain.ErrNotFound)
}

func (f *fakeShopify) calls(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.assetCalls[key]
}

// fakeTokens "encrypts" by prefixing.
type fakeTokens struct{}

func (fakeTokens) EncryptToken(token string) (string, error) { return "enc:" + token, nil }

func (fakeTokens) DecryptToken(encrypted string) (string, error) {
	if !strings.HasPrefix(encrypted, "enc:") {
		return "", fmt.Errorf("not encrypted")
	}
	return strings.TrimPrefix(encrypted, "enc:"), nil
}

func (fakeTokens) ValidateToken(ctx context.Context, shop, token string) (bool, error) {
	return token != "revoked", nil
}

// fakeVerifier accepts signatures equal to "valid".
type fakeVerifier struct{}

func (fakeVerifier) VerifyQuery(q url.Values) bool { return q.Get("hmac") == "valid" }

func (fakeVerifier) VerifyWebhook(body []byte, signature string) bool { return signature == "valid" }

// staticTokens serves a fixed token for any shop.
type staticTokens string

func (t staticTokens) AccessToken(ctx context.Context, shop string) (string, error) {
	if shop == "" {
		return "", domain.ErrInvalidInput
	}
	return string(t), nil
}

type fakeLLM struct {
	reply string
	err   error
	calls int
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) Complete(ctx context.Context, prompt string) (string, error) {
	f.calls++
	return f.reply, f.err
}

type stores struct {
	kv       *repository.MemoryStore
	shops    *repository.ShopRepository
	sessions *repository.SessionRepository
	mappings *repository.MappingRepository
	landings *repository.LandingRepository
	jobs     *repository.ScanJobRepository
}

func newStores() stores {
	kv := repository.NewMemoryStore()
	return stores{
		kv:       kv,
		shops:    repository.NewShopRepository(kv),
		sessions: repository.NewSessionRepository(kv),
		mappings: repository.NewMappingRepository(kv),
		landings: repository.NewLandingRepository(kv),
		jobs:     repository.NewScanJobRepository(kv),
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

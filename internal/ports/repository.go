package ports

import (
	"context"
	"time"

	"adlign-personalization-layer/internal/domain"
)

// UpdateFunc receives the current value of a key (nil when missing) and
// returns the value to store. Returning a nil value deletes the key.
type UpdateFunc func(current []byte) ([]byte, error)

// KVStore is a bucketed key-value store with atomic read-modify-write per key.
// Get returns (nil, nil) when the key does not exist.
type KVStore interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, value []byte) error
	Update(ctx context.Context, bucket, key string, fn UpdateFunc) error
	Delete(ctx context.Context, bucket, key string) error
	Keys(ctx context.Context, bucket string) ([]string, error)
	Close(ctx context.Context) error
}

// ShopRepository persists shop access tokens
type ShopRepository interface {
	SaveShop(ctx context.Context, shop *domain.Shop) error
	GetShop(ctx context.Context, shopDomain string) (*domain.Shop, error)
	ListShops(ctx context.Context) ([]*domain.Shop, error)
	DeleteShop(ctx context.Context, shopDomain string) error
}

// SessionRepository persists OAuth install sessions
type SessionRepository interface {
	CreateSession(ctx context.Context, session *domain.Session) error
	// ConsumeSession removes the session and returns it; (nil, nil) when unknown.
	ConsumeSession(ctx context.Context, state string) (*domain.Session, error)
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

// MappingRepository persists scan mappings, nested by shop
type MappingRepository interface {
	SaveMapping(ctx context.Context, record *domain.MappingRecord) error
	// GetMapping searches every shop for the id.
	GetMapping(ctx context.Context, id string) (*domain.MappingRecord, error)
	// ListMappings lists one shop's mappings, or every shop's when shopDomain is empty.
	ListMappings(ctx context.Context, shopDomain string) ([]*domain.MappingRecord, error)
	DeleteMapping(ctx context.Context, shopDomain, id string) (bool, error)
}

// LandingRepository persists landing pages, nested by shop
type LandingRepository interface {
	// CreateLanding fails with domain.ErrConflict when the handle exists.
	CreateLanding(ctx context.Context, landing *domain.LandingPage) error
	GetLanding(ctx context.Context, shopDomain, handle string) (*domain.LandingPage, error)
	// ListLandings lists one shop's landings, or every shop's when shopDomain is empty.
	ListLandings(ctx context.Context, shopDomain string) ([]*domain.LandingPage, error)
	// UpdateLanding applies fn atomically; (nil, nil) when the landing does not exist.
	UpdateLanding(ctx context.Context, shopDomain, handle string, fn func(*domain.LandingPage) error) (*domain.LandingPage, error)
	DeleteLanding(ctx context.Context, shopDomain, handle string) (bool, error)
}

// ScanJobRepository persists the latest background scan per shop
type ScanJobRepository interface {
	SaveScanJob(ctx context.Context, job *domain.ScanJob) error
	GetScanJob(ctx context.Context, shopDomain string) (*domain.ScanJob, error)
}

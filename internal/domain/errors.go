package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrConflict         = errors.New("already exists")
	ErrShopNotConnected = errors.New("shop not connected")
	ErrInvalidState     = errors.New("invalid or expired oauth state")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrNoMainTheme      = errors.New("no main theme found")
	ErrRateLimited      = errors.New("shopify rate limit exceeded")
	ErrUnauthorized     = errors.New("shopify rejected the access token")
)

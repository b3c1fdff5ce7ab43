package domain

import (
	"regexp"
	"time"
)

// SessionTTL is how long an OAuth state stays valid after the install redirect.
const SessionTTL = 10 * time.Minute

var shopDomainPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]*\.myshopify\.com$`)

// Session represents an in-flight OAuth install, keyed by its state token
type Session struct {
	State     string    `json:"state" bson:"state"`
	Shop      string    `json:"shop" bson:"shop"`
	Scopes    []string  `json:"scopes" bson:"scopes"`
	ReturnURL string    `json:"return_url,omitempty" bson:"return_url,omitempty"`
	ExpiresAt time.Time `json:"expires_at" bson:"expires_at"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// Expired reports whether the session can no longer complete an install.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// ValidShopDomain reports whether shop looks like a *.myshopify.com domain.
func ValidShopDomain(shop string) bool {
	return shopDomainPattern.MatchString(shop)
}

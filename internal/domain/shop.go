package domain

import "time"

// Shop is a connected store and its OAuth access token.
// AccessToken holds the encrypted value as persisted; services decrypt on read.
type Shop struct {
	Domain      string    `json:"shop_domain" bson:"shop_domain"`
	AccessToken string    `json:"access_token" bson:"access_token"`
	Scope       string    `json:"scope,omitempty" bson:"scope,omitempty"`
	InstalledAt time.Time `json:"installed_at" bson:"installed_at"`
	UpdatedAt   time.Time `json:"updated_at" bson:"updated_at"`
}

// ShopStatus is the public view of a connected shop
type ShopStatus struct {
	Domain       string    `json:"shop_domain"`
	HasToken     bool      `json:"has_token"`
	TokenPreview string    `json:"token_preview,omitempty"`
	Valid        *bool     `json:"token_valid,omitempty"`
	InstalledAt  time.Time `json:"installed_at"`
}

// MaskToken keeps the first characters of a token for display.
func MaskToken(token string) string {
	const visible = 10
	if len(token) <= visible {
		return "..."
	}
	return token[:visible] + "..."
}

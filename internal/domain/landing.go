package domain

import (
	"fmt"
	"regexp"
	"time"
)

var handlePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// LandingPage holds custom content for one product variant, unique per (shop, handle).
type LandingPage struct {
	ID                     string    `json:"id"`
	Handle                 string    `json:"handle"`
	ShopDomain             string    `json:"shop_domain"`
	MappingID              string    `json:"mapping_id"`
	CampaignName           string    `json:"campaign_name,omitempty"`
	CustomTitle            string    `json:"custom_title,omitempty"`
	CustomDescription      string    `json:"custom_description,omitempty"`
	CustomPriceText        string    `json:"custom_price_text,omitempty"`
	CustomComparePriceText string    `json:"custom_compare_price_text,omitempty"`
	CustomCTAText          string    `json:"custom_cta_text,omitempty"`
	CustomVendor           string    `json:"custom_vendor,omitempty"`
	CustomBadges           []string  `json:"custom_badges,omitempty"`
	CustomImages           []string  `json:"custom_images,omitempty"`
	IsActive               bool      `json:"is_active"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// LandingUpdate carries the fields a caller wants to change; nil means keep.
type LandingUpdate struct {
	MappingID              *string   `json:"mapping_id,omitempty"`
	CampaignName           *string   `json:"campaign_name,omitempty"`
	CustomTitle            *string   `json:"custom_title,omitempty"`
	CustomDescription      *string   `json:"custom_description,omitempty"`
	CustomPriceText        *string   `json:"custom_price_text,omitempty"`
	CustomComparePriceText *string   `json:"custom_compare_price_text,omitempty"`
	CustomCTAText          *string   `json:"custom_cta_text,omitempty"`
	CustomVendor           *string   `json:"custom_vendor,omitempty"`
	CustomBadges           *[]string `json:"custom_badges,omitempty"`
	CustomImages           *[]string `json:"custom_images,omitempty"`
	IsActive               *bool     `json:"is_active,omitempty"`
}

// Validate checks the fields required to create a landing page.
func (l *LandingPage) Validate() error {
	if l.ShopDomain == "" {
		return fmt.Errorf("%w: shop_domain is required", ErrInvalidInput)
	}
	if l.Handle == "" || l.MappingID == "" {
		return fmt.Errorf("%w: handle and mapping_id are required", ErrInvalidInput)
	}
	if !handlePattern.MatchString(l.Handle) {
		return fmt.Errorf("%w: handle must contain only lowercase letters, digits, '-' or '_'", ErrInvalidInput)
	}
	return nil
}

// Apply merges the provided fields into l. Identity fields are never touched.
func (u LandingUpdate) Apply(l *LandingPage) {
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setString(&l.MappingID, u.MappingID)
	setString(&l.CampaignName, u.CampaignName)
	setString(&l.CustomTitle, u.CustomTitle)
	setString(&l.CustomDescription, u.CustomDescription)
	setString(&l.CustomPriceText, u.CustomPriceText)
	setString(&l.CustomComparePriceText, u.CustomComparePriceText)
	setString(&l.CustomCTAText, u.CustomCTAText)
	setString(&l.CustomVendor, u.CustomVendor)
	if u.CustomBadges != nil {
		l.CustomBadges = *u.CustomBadges
	}
	if u.CustomImages != nil {
		l.CustomImages = *u.CustomImages
	}
	if u.IsActive != nil {
		l.IsActive = *u.IsActive
	}
}

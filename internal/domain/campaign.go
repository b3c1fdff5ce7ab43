package domain

import "sort"

// Campaign is a hardcoded variant served to the storefront script.
type Campaign struct {
	Variant   string            `json:"variant"`
	Name      string            `json:"name"`
	Changes   CampaignChanges   `json:"changes"`
	Selectors map[string]string `json:"selectors"`
}

type CampaignChanges struct {
	Title       string `json:"title"`
	Price       string `json:"price"`
	CTA         string `json:"cta"`
	Description string `json:"description"`
}

var campaignSelectors = map[string]string{
	"title":       "h1",
	"price":       ".price",
	"cta":         `button[type="submit"]`,
	"description": ".product__description",
}

var campaigns = map[string]Campaign{
	"test": {
		Variant: "test",
		Name:    "Test Campaign",
		Changes: CampaignChanges{
			Title:       "🔥 SAVON PREMIUM EXCLUSIF - OFFRE LIMITÉE",
			Price:       `14,90€ <strike style="color:#999;">29,90€</strike> <span style="color:#e74c3c;">-50%</span>`,
			CTA:         "🚀 COMMANDER MAINTENANT",
			Description: "<p><strong>Offre exclusive !</strong> Ce savon artisanal aux noix de coco est fabriqué selon des méthodes traditionnelles.</p>",
		},
	},
	"promo": {
		Variant: "promo",
		Name:    "Black Friday",
		Changes: CampaignChanges{
			Title:       "🖤 BLACK FRIDAY - 70% DE RÉDUCTION",
			Price:       "8,90€ <strike>29,90€</strike> 🔥",
			CTA:         "⚡ PROFITER DE L'OFFRE",
			Description: "<p>🔥 <strong>BLACK FRIDAY EXCEPTIONNEL</strong> - Plus que 24h pour profiter de cette offre unique !</p>",
		},
	},
	"vip": {
		Variant: "vip",
		Name:    "VIP Exclusive",
		Changes: CampaignChanges{
			Title:       "👑 ACCÈS VIP - PRODUIT EXCLUSIF",
			Price:       `24,90€ <span style="color:gold;">★ PREMIUM ★</span>`,
			CTA:         "👑 ACCÈS VIP",
			Description: "<p>✨ <strong>Accès exclusif VIP</strong> - Produit disponible uniquement pour nos membres privilégiés.</p>",
		},
	},
}

// LookupCampaign returns the campaign for a variant.
func LookupCampaign(variant string) (Campaign, bool) {
	c, ok := campaigns[variant]
	if !ok {
		return Campaign{}, false
	}
	c.Selectors = copySelectors()
	return c, true
}

// Campaigns lists all campaigns ordered by variant.
func Campaigns() []Campaign {
	out := make([]Campaign, 0, len(campaigns))
	for _, v := range CampaignVariants() {
		c, _ := LookupCampaign(v)
		out = append(out, c)
	}
	return out
}

// CampaignVariants returns the known variant names, sorted.
func CampaignVariants() []string {
	variants := make([]string, 0, len(campaigns))
	for v := range campaigns {
		variants = append(variants, v)
	}
	sort.Strings(variants)
	return variants
}

func copySelectors() map[string]string {
	out := make(map[string]string, len(campaignSelectors))
	for k, v := range campaignSelectors {
		out[k] = v
	}
	return out
}

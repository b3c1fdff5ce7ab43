package api

import (
	"net/http"

	"adlign-personalization-layer/internal/domain"

	"github.com/go-chi/chi/v5"
)

func (s *server) analytics(w http.ResponseWriter, r *http.Request) {
	summary, err := s.Analytics.Summary(r.Context(), r.URL.Query().Get("shop_domain"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeOK(w, envelope{"analytics": summary})
}

func (s *server) campaigns(w http.ResponseWriter, r *http.Request) {
	writeOK(w, envelope{
		"available_campaigns": domain.CampaignVariants(),
		"campaigns":           domain.Campaigns(),
		"usage":               "GET /api/campaign/{variant}?product_id={id}",
	})
}

func (s *server) campaign(w http.ResponseWriter, r *http.Request) {
	variant := chi.URLParam(r, "variant")
	c, ok := domain.LookupCampaign(variant)
	if !ok {
		writeJSON(w, http.StatusNotFound, envelope{
			"success":             false,
			"error":               "campaign '" + variant + "' not found",
			"available_campaigns": domain.CampaignVariants(),
		})
		return
	}
	writeOK(w, envelope{
		"campaign_name": c.Name,
		"changes":       c.Changes,
		"selectors":     c.Selectors,
		"debug": envelope{
			"timestamp":  s.now().UTC(),
			"variant":    variant,
			"product_id": r.URL.Query().Get("product_id"),
		},
	})
}

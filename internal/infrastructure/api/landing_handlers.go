package api

import (
	"fmt"
	"net/http"

	"adlign-personalization-layer/internal/domain"

	"github.com/go-chi/chi/v5"
)

func (s *server) createLanding(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ShopDomain  string              `json:"shop_domain"`
		LandingData *domain.LandingPage `json:"landing_data"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if req.LandingData == nil {
		writeError(w, r, s.logger, fmt.Errorf("%w: landing_data is required", domain.ErrInvalidInput))
		return
	}
	if req.ShopDomain != "" {
		req.LandingData.ShopDomain = req.ShopDomain
	}

	landing, err := s.Landings.Create(r.Context(), req.LandingData)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{"landing": landing})
}

func (s *server) listLandings(w http.ResponseWriter, r *http.Request) {
	shop, err := shopParam(r)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	landings, err := s.Landings.List(r.Context(), shop)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeOK(w, envelope{"landings": landings, "total": len(landings)})
}

func (s *server) getLanding(w http.ResponseWriter, r *http.Request) {
	shop, err := shopParam(r)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	landing, err := s.Landings.Get(r.Context(), shop, chi.URLParam(r, "handle"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeOK(w, envelope{"landing": landing})
}

func (s *server) updateLanding(w http.ResponseWriter, r *http.Request) {
	shop, err := shopParam(r)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	var update domain.LandingUpdate
	if err := decodeJSON(r, &update); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	landing, err := s.Landings.Update(r.Context(), shop, chi.URLParam(r, "handle"), update)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeOK(w, envelope{"landing": landing})
}

func (s *server) deleteLanding(w http.ResponseWriter, r *http.Request) {
	shop, err := shopParam(r)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	handle := chi.URLParam(r, "handle")
	if err := s.Landings.Delete(r.Context(), shop, handle); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeOK(w, envelope{"deleted": handle})
}

func (s *server) landingScript(w http.ResponseWriter, r *http.Request) {
	shop, err := shopParam(r)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	script, err := s.Landings.Script(r.Context(), shop, chi.URLParam(r, "handle"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(script))
}

package api

import (
	"fmt"
	"net/http"
	"strconv"

	"adlign-personalization-layer/internal/application"
	"adlign-personalization-layer/internal/domain"

	"github.com/go-chi/chi/v5"
)

const (
	defaultProductLimit = 50
	maxProductLimit     = 250
)

func (s *server) listProducts(w http.ResponseWriter, r *http.Request) {
	shop, err := shopParam(r)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	limit := defaultProductLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, s.logger, fmt.Errorf("%w: limit must be a positive integer", domain.ErrInvalidInput))
			return
		}
		limit = min(n, maxProductLimit)
	}

	products, err := s.Personalization.ListProducts(r.Context(), shop, limit)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	out := make([]envelope, 0, len(products))
	for _, p := range products {
		out = append(out, envelope{
			"id":              p.Id,
			"title":           p.Title,
			"handle":          p.Handle,
			"vendor":          p.Vendor,
			"template_suffix": p.TemplateSuffix,
			"status":          p.Status,
		})
	}
	writeOK(w, envelope{"products": out, "total": len(out)})
}

func (s *server) personalize(w http.ResponseWriter, r *http.Request) {
	var req application.PersonalizeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	result, err := s.Personalization.Personalize(r.Context(), req)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeOK(w, envelope{"personalization": result})
}

func (s *server) diagnose(w http.ResponseWriter, r *http.Request) {
	shop, err := shopParam(r)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	id, err := productIDParam(chi.URLParam(r, "product_id"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	diagnosis, err := s.Personalization.Diagnose(r.Context(), shop, id)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeOK(w, envelope{"diagnosis": diagnosis})
}

func (s *server) metafields(w http.ResponseWriter, r *http.Request) {
	shop, err := shopParam(r)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	id, err := productIDParam(chi.URLParam(r, "product_id"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	fields, err := s.Personalization.Metafields(r.Context(), shop, id)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeOK(w, envelope{"product_id": id, "namespace": application.MetafieldNamespace, "metafields": fields})
}

func (s *server) restoreProduct(w http.ResponseWriter, r *http.Request) {
	shop, err := shopParam(r)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	id, err := productIDParam(chi.URLParam(r, "product_id"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	result, err := s.Personalization.Restore(r.Context(), shop, id)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeOK(w, envelope{"restore": result})
}

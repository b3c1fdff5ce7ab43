package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

func (s *server) listMappings(w http.ResponseWriter, r *http.Request) {
	records, err := s.Mappings.List(r.Context(), strings.TrimSpace(r.URL.Query().Get("shop_domain")))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeOK(w, envelope{"mappings": records, "total": len(records)})
}

func (s *server) getMapping(w http.ResponseWriter, r *http.Request) {
	record, err := s.Mappings.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeOK(w, envelope{"mapping": record})
}

func (s *server) deleteMapping(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Mappings.Delete(r.Context(), id); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeOK(w, envelope{"deleted": id})
}

func (s *server) mappingTestScript(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content map[string]string `json:"content"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	script, err := s.Mappings.TestScript(r.Context(), chi.URLParam(r, "id"), req.Content)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeOK(w, envelope{"script": script})
}

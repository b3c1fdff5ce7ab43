package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"adlign-personalization-layer/internal/domain"
	"adlign-personalization-layer/internal/injection"

	"github.com/go-chi/chi/v5"
)

type shopRequest struct {
	ShopDomain string `json:"shop_domain"`
	Background bool   `json:"background,omitempty"`
}

func decodeShop(r *http.Request) (shopRequest, error) {
	var req shopRequest
	if err := decodeJSON(r, &req); err != nil {
		return req, err
	}
	req.ShopDomain = strings.TrimSpace(req.ShopDomain)
	if req.ShopDomain == "" {
		return req, fmt.Errorf("%w: shop_domain is required", domain.ErrInvalidInput)
	}
	return req, nil
}

func mappingSummary(record *domain.MappingRecord) envelope {
	return envelope{
		"mapping_id":        record.ID,
		"label":             record.Label,
		"theme":             record.ThemeName,
		"scan_type":         record.ScanType,
		"ai_enhanced":       record.AIEnhanced,
		"files_analyzed":    len(record.FilesAnalyzed),
		"total_files":       record.TotalFiles,
		"elements_detected": len(record.Mapping),
		"mapping":           record.Mapping,
	}
}

func (s *server) analyzeTheme(w http.ResponseWriter, r *http.Request) {
	req, err := decodeShop(r)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	record, err := s.Scans.Analyze(r.Context(), req.ShopDomain, domain.ScanQuick)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	body := mappingSummary(record)
	if req.Background {
		job, _, err := s.Jobs.Start(r.Context(), req.ShopDomain, "api:analyze")
		if err != nil {
			s.logger.Warn().Err(err).Str("shop", req.ShopDomain).Msg("Failed to start background full scan")
		} else {
			body["scan_job"] = job
			body["status_url"] = "/api/themes/scan-jobs/" + req.ShopDomain
		}
	}
	writeOK(w, body)
}

func (s *server) scanComplete(w http.ResponseWriter, r *http.Request) {
	req, err := decodeShop(r)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	record, err := s.Scans.Analyze(r.Context(), req.ShopDomain, domain.ScanFull)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeOK(w, mappingSummary(record))
}

func (s *server) startScanJob(w http.ResponseWriter, r *http.Request) {
	req, err := decodeShop(r)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	job, started, err := s.Jobs.Start(r.Context(), req.ShopDomain, "api")
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	status := http.StatusAccepted
	if !started {
		status = http.StatusOK
	}
	writeJSON(w, status, envelope{"success": true, "started": started, "job": job})
}

func (s *server) scanJobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.Jobs.Status(r.Context(), chi.URLParam(r, "shop_domain"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeOK(w, envelope{"job": job})
}

// scanJobEvents streams job updates as server-sent events until the job
// finishes or the client goes away.
func (s *server) scanJobEvents(w http.ResponseWriter, r *http.Request) {
	if s.Events == nil {
		writeError(w, r, s.logger, fmt.Errorf("%w: event stream disabled", domain.ErrNotFound))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, s.logger, errors.New("streaming unsupported by response writer"))
		return
	}
	shop := chi.URLParam(r, "shop_domain")

	// subscribe before reading the current state so no update is missed
	sub := s.Events.Subscribe(r.Context(), shop)
	defer sub.Close()

	current, err := s.Jobs.Status(r.Context(), shop)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		writeError(w, r, s.logger, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(job *domain.ScanJob) bool {
		data, err := json.Marshal(job)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "event: scan_job\ndata: %s\n\n", data); err != nil {
			return false
		}
		flusher.Flush()
		return job.Active()
	}

	if current != nil && !send(current) {
		return
	}
	if current == nil {
		fmt.Fprint(w, ": waiting for a scan job\n\n")
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case job, open := <-sub.Events:
			if !open || !send(job) {
				return
			}
		}
	}
}

func (s *server) themeFiles(w http.ResponseWriter, r *http.Request) {
	shop, err := shopParam(r)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	report, err := s.Scans.ThemeFiles(r.Context(), shop)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeOK(w, envelope{"report": report})
}

func (s *server) installSnippet(w http.ResponseWriter, r *http.Request) {
	req, err := decodeShop(r)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	result, err := s.Personalization.InstallSnippet(r.Context(), req.ShopDomain)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeOK(w, envelope{"install": result})
}

func (s *server) snippet(w http.ResponseWriter, r *http.Request) {
	writeOK(w, envelope{
		"snippet_key": injection.SnippetKey,
		"snippet":     injection.LiquidSnippet(),
		"section_key": injection.SectionKey,
		"section":     injection.MappingSection(),
	})
}

package api

import (
	"io"
	"net/http"
	"net/url"
	"strings"
)

func (s *server) beginInstall(w http.ResponseWriter, r *http.Request) {
	shop := strings.TrimSpace(r.URL.Query().Get("shop"))
	if shop == "" {
		badRequest(w, "shop parameter is required")
		return
	}
	authURL, err := s.Shopify.BeginInstall(r.Context(), shop, r.URL.Query().Get("return_url"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

func (s *server) completeInstall(w http.ResponseWriter, r *http.Request) {
	session, err := s.Shopify.CompleteInstall(r.Context(), r.URL.Query())
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	if session.ReturnURL != "" {
		if target, err := url.Parse(session.ReturnURL); err == nil && target.IsAbs() {
			q := target.Query()
			q.Set("shopify_oauth", "success")
			q.Set("shop", session.Shop)
			target.RawQuery = q.Encode()
			http.Redirect(w, r, target.String(), http.StatusFound)
			return
		}
		s.logger.Warn().Str("shop", session.Shop).Msg("Ignoring invalid OAuth return URL")
	}

	writeOK(w, envelope{
		"shop":    session.Shop,
		"message": "App installed",
	})
}

func (s *server) authStatus(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.Shopify.Statuses(r.Context(), r.URL.Query().Get("validate") == "true")
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeOK(w, envelope{"shops": statuses, "total": len(statuses)})
}

func (s *server) connectShopify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ShopDomain string `json:"shop_domain"`
		ReturnURL  string `json:"return_url"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if req.ShopDomain == "" {
		badRequest(w, "shop_domain is required")
		return
	}
	authURL, err := s.Shopify.BeginInstall(r.Context(), strings.TrimSpace(req.ShopDomain), req.ReturnURL)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeOK(w, envelope{"oauth_url": authURL})
}

func (s *server) stores(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.Shopify.Statuses(r.Context(), false)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	stores := make([]envelope, 0, len(statuses))
	for _, st := range statuses {
		status := "active"
		if !st.HasToken {
			status = "disconnected"
		}
		stores = append(stores, envelope{
			"domain":       st.Domain,
			"connected":    st.HasToken,
			"connected_at": st.InstalledAt,
			"status":       status,
		})
	}
	writeOK(w, envelope{"stores": stores, "total": len(stores)})
}

func (s *server) webhook(w http.ResponseWriter, r *http.Request) {
	topic := r.Header.Get("X-Shopify-Topic")
	shop := r.Header.Get("X-Shopify-Shop-Domain")
	signature := r.Header.Get("X-Shopify-Hmac-Sha256")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	r.Body.Close()
	if err != nil {
		badRequest(w, "failed to read request body")
		return
	}

	err = s.Webhooks.Process(r.Context(), topic, shop, body, signature)
	if s.Metrics != nil {
		s.Metrics.ObserveWebhook(topic, err)
	}
	if err != nil {
		// 5xx makes Shopify retry the delivery
		writeError(w, r, s.logger, err)
		return
	}
	writeOK(w, envelope{"received": true})
}

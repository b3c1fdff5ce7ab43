package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"adlign-personalization-layer/internal/application"
	"adlign-personalization-layer/internal/domain"

	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// envelope is the body of every JSON response; success is always set.
type envelope map[string]any

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	if _, ok := body["success"]; !ok {
		body["success"] = status < 400
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeOK(w http.ResponseWriter, body envelope) {
	writeJSON(w, http.StatusOK, body)
}

// statusFor maps domain errors onto HTTP statuses
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrShopNotConnected),
		errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrNoMainTheme):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, application.ErrManagerClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers with the mapped status. Server errors are logged and
// replaced by a generic message so upstream bodies never reach the client.
func writeError(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, err error) {
	status := statusFor(err)
	message := err.Error()
	if status >= 500 {
		logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("Request failed")
		message = http.StatusText(status)
	}
	writeJSON(w, status, envelope{"success": false, "error": message})
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, envelope{"success": false, "error": message})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: failed to read body", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(string(body)) == "" {
		return fmt.Errorf("%w: empty request body", domain.ErrInvalidInput)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: invalid JSON payload", domain.ErrInvalidInput)
	}
	return nil
}

// shopParam reads the required shop_domain query parameter
func shopParam(r *http.Request) (string, error) {
	shop := strings.TrimSpace(r.URL.Query().Get("shop_domain"))
	if shop == "" {
		return "", fmt.Errorf("%w: shop_domain query parameter is required", domain.ErrInvalidInput)
	}
	return shop, nil
}

func productIDParam(raw string) (uint64, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: product_id must be a positive integer", domain.ErrInvalidInput)
	}
	return id, nil
}

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/zoneboard/internal/common"
)

// StatusClientClosedRequest is the non-standard status logged when the
// client went away before the response.
const StatusClientClosedRequest = 499

// APIError is the error body every endpoint returns. Message never carries
// internal details.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}

var errorTable = []struct {
	target  error
	status  int
	code    string
	message string
}{
	{common.ErrInvalidEmail, http.StatusBadRequest, "invalid_email", "invalid email address"},
	{common.ErrInvalidSettings, http.StatusBadRequest, "invalid_settings", "settings must be a JSON object"},
	{common.ErrInvalidInput, http.StatusBadRequest, "invalid_argument", "invalid argument"},
	{common.ErrInvalidToken, http.StatusUnauthorized, "invalid_token", "invalid or expired credential"},
	{common.ErrorUnauthorized, http.StatusUnauthorized, "invalid_token", "invalid or expired credential"},
	{common.ErrProductNotAllowed, http.StatusForbidden, "product_not_allowed", "product is not available"},
	{common.ErrorNotFound, http.StatusNotFound, "not_found", "not found"},
	{common.ErrVersionConflict, http.StatusConflict, "version_conflict", "a newer settings version exists"},
	{common.ErrPurchaseClaimedByOtherUser, http.StatusConflict, "purchase_claimed", "purchase belongs to another account"},
	{common.ErrPurchaseNotActive, http.StatusConflict, "purchase_not_active", "purchase is not active"},
	{common.ErrSettingsTooLarge, http.StatusRequestEntityTooLarge, "settings_too_large", "settings document is too large"},
	{common.ErrRequestTooLarge, http.StatusRequestEntityTooLarge, "request_too_large", "request body is too large"},
	{common.ErrRateLimited, http.StatusTooManyRequests, "rate_limited", "too many requests"},
	{common.ErrUpstream, http.StatusBadGateway, "upstream_error", "upstream service failed"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "deadline_exceeded", "request timed out"},
	{context.Canceled, StatusClientClosedRequest, "canceled", "request canceled"},
	{common.ErrorInternal, http.StatusInternalServerError, "internal", "internal error"},
}

// ToHTTP maps a service error to a status and body. Unknown errors, and a
// nil error, are 500.
func ToHTTP(err error) (int, ErrorResponse) {
	if err != nil {
		for _, e := range errorTable {
			if errors.Is(err, e.target) {
				return e.status, ErrorResponse{Error: APIError{Code: e.code, Message: e.message}}
			}
		}
	}
	return http.StatusInternalServerError, ErrorResponse{Error: APIError{Code: "internal", Message: "internal error"}}
}

// WriteError writes err as an ErrorResponse tagged with the request id.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)
	if rid := r.Header.Get(common.RequestIDHeader); rid != "" {
		resp.Error.RequestID = rid
	}
	if status >= http.StatusInternalServerError {
		loggerFrom(r).Error(r.Context(), "request failed", "status", status, "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

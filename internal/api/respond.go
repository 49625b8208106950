/**
 * @description
 * JSON response helpers. Every response carries the {success: bool} envelope;
 * service errors are mapped to HTTP status codes here so handlers stay thin.
 */
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/reelforge/backend/internal/app"
	"github.com/reelforge/backend/internal/store"
)

type successEnvelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

type errorEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// respondWithJSON writes a payload wrapped in the success envelope.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(successEnvelope{Success: true, Data: payload})
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// respondWithError writes an error message in the failure envelope.
func respondWithError(w http.ResponseWriter, code int, message string) {
	response, _ := json.Marshal(errorEnvelope{Success: false, Error: message})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// respondWithServiceError maps known service errors to status codes. Unknown
// errors become opaque 500s so internals never leak to clients.
func respondWithServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrUnknownPlan),
		errors.Is(err, app.ErrInvalidBillingCycle),
		errors.Is(err, app.ErrNotAnUpgrade),
		errors.Is(err, app.ErrNotADowngrade),
		errors.Is(err, app.ErrDowngradeToFree),
		errors.Is(err, app.ErrNoProviderSubscription),
		errors.Is(err, app.ErrCreditLimitReached),
		errors.Is(err, app.ErrInvalidSceneCount),
		errors.Is(err, app.ErrInvalidVideoStatus),
		errors.Is(err, app.ErrWeakPassword),
		errors.Is(err, app.ErrInvalidEmail),
		errors.Is(err, app.ErrInvalidContactMessage),
		errors.Is(err, app.ErrPaymentNotRetryable),
		errors.Is(err, app.ErrRetryUnsupported):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrInvalidCredentials):
		respondWithError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, app.ErrPaymentMismatch):
		respondWithError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, app.ErrEmailTaken):
		respondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrUserNotFound),
		errors.Is(err, store.ErrSubscriptionNotFound),
		errors.Is(err, store.ErrPlanNotFound),
		errors.Is(err, store.ErrPaymentNotFound),
		errors.Is(err, store.ErrVideoNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	default:
		respondWithError(w, http.StatusInternalServerError, "internal server error")
	}
}

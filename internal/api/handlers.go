/**
 * @description
 * HTTP handler functions for the subscription endpoints. Handlers parse the
 * request, call the service layer, and write the enveloped JSON response.
 */
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/reelforge/backend/internal/app"
)

// Handler holds the application services that handlers interact with.
type Handler struct {
	auth     app.AuthService
	subs     app.Service
	webhooks app.WebhookService
	videos   app.VideoService
	payments app.PaymentService
	contact  app.ContactService
	admin    app.AdminService
	logger   *slog.Logger

	stripeWebhookSecret string
	paypalVerifier      PayPalWebhookVerifier
}

// NewHandler creates a new Handler wired to the application services.
func NewHandler(
	auth app.AuthService,
	subs app.Service,
	webhooks app.WebhookService,
	videos app.VideoService,
	payments app.PaymentService,
	contact app.ContactService,
	admin app.AdminService,
	logger *slog.Logger,
	stripeWebhookSecret string,
	paypalVerifier PayPalWebhookVerifier,
) *Handler {
	return &Handler{
		auth:                auth,
		subs:                subs,
		webhooks:            webhooks,
		videos:              videos,
		payments:            payments,
		contact:             contact,
		admin:               admin,
		logger:              logger,
		stripeWebhookSecret: stripeWebhookSecret,
		paypalVerifier:      paypalVerifier,
	}
}

// handleListPlans returns the public plan catalog.
func (h *Handler) handleListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.subs.ListPlans(r.Context())
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, plans)
}

// handleGetStatus returns the user's subscription status.
func (h *Handler) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	status, err := h.subs.GetStatus(r.Context(), userID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, status)
}

// handleGetUsage returns credit consumption for the current cycle.
func (h *Handler) handleGetUsage(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	usage, err := h.subs.GetUsage(r.Context(), userID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, usage)
}

// handleCreateCheckoutSession starts a Stripe Checkout flow.
func (h *Handler) handleCreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		Plan         string `json:"plan"`
		BillingCycle string `json:"billing_cycle"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.subs.CreateCheckoutSession(r.Context(), userID, EmailFromContext(r.Context()), req.Plan, req.BillingCycle)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, session)
}

// handleCreatePayPalSubscription starts a PayPal approval flow.
func (h *Handler) handleCreatePayPalSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		Plan         string `json:"plan"`
		BillingCycle string `json:"billing_cycle"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sub, err := h.subs.CreatePayPalSubscription(r.Context(), userID, req.Plan, req.BillingCycle)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, sub)
}

// handleConfirmPayment is the direct confirmation path after checkout. The
// invoice is re-fetched from Stripe, never trusted from the client.
func (h *Handler) handleConfirmPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		InvoiceID string `json:"invoice_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.InvoiceID == "" {
		respondWithError(w, http.StatusBadRequest, "invoice_id is required")
		return
	}

	if err := h.webhooks.ConfirmStripePayment(r.Context(), userID, req.InvoiceID); err != nil {
		respondWithServiceError(w, err)
		return
	}

	status, err := h.subs.GetStatus(r.Context(), userID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, status)
}

// handleUpgrade switches the user to a higher plan mid-cycle.
func (h *Handler) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		Plan string `json:"plan"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.subs.Upgrade(r.Context(), userID, req.Plan)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// handleDowngrade schedules a plan decrease for the next cycle boundary.
func (h *Handler) handleDowngrade(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		Plan string `json:"plan"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sub, err := h.subs.Downgrade(r.Context(), userID, req.Plan)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, sub)
}

// handleCancel reverts the user to the free plan immediately.
func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	sub, err := h.subs.Cancel(r.Context(), userID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, sub)
}

// handleUseCredit consumes credits atomically.
func (h *Handler) handleUseCredit(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		Credits int `json:"credits"`
	}
	// An empty body means a single credit.
	_ = json.NewDecoder(r.Body).Decode(&req)

	sub, err := h.subs.ConsumeCredits(r.Context(), userID, req.Credits)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, sub)
}

// handleBillingPortal returns a Stripe billing portal URL.
func (h *Handler) handleBillingPortal(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	url, err := h.subs.BillingPortal(r.Context(), userID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"url": url})
}

// handleListPayments returns the user's payment ledger.
func (h *Handler) handleListPayments(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	payments, err := h.payments.ListPayments(r.Context(), userID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, payments)
}

// handleListLogs returns the user's subscription audit trail.
func (h *Handler) handleListLogs(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	logs, err := h.payments.ListLogs(r.Context(), userID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, logs)
}

// handleContact stores an inbound contact message.
func (h *Handler) handleContact(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string `json:"name"`
		Email   string `json:"email"`
		Subject string `json:"subject"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := h.contact.Submit(r.Context(), req.Name, req.Email, req.Subject, req.Message)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, msg)
}

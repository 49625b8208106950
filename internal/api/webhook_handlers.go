/**
 * @description
 * Provider webhook endpoints. Both verify the raw body signature before
 * touching any state, then translate the provider payload into the neutral
 * invoice structs the webhook service reconciles. Events that reference no
 * known subscription are acknowledged with 200 so the provider stops
 * redelivering them.
 */
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/reelforge/backend/internal/app"
	"github.com/reelforge/backend/internal/domain"
)

// Webhook bodies are small; this bound guards against junk uploads.
const maxWebhookBody = 1 << 20

// PayPalWebhookVerifier checks a webhook's transmission signature with PayPal.
type PayPalWebhookVerifier interface {
	VerifyWebhookSignature(ctx context.Context, headers http.Header, body []byte) (bool, error)
}

// stripeInvoicePayload is the subset of the invoice object the handler needs.
// Decoded from the raw event to stay independent of SDK struct reshuffles
// between Stripe API versions: accounts pinned to 2025 API versions deliver
// the subscription under parent.subscription_details and the line price under
// pricing.price_details, older accounts use the flat fields.
type stripeInvoicePayload struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
	Parent       struct {
		SubscriptionDetails struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
	AmountPaid       int64  `json:"amount_paid"`
	AmountDue        int64  `json:"amount_due"`
	Currency         string `json:"currency"`
	HostedInvoiceURL string `json:"hosted_invoice_url"`
	Lines            struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
			Pricing struct {
				PriceDetails struct {
					Price string `json:"price"`
				} `json:"price_details"`
			} `json:"pricing"`
		} `json:"data"`
	} `json:"lines"`
}

func (p stripeInvoicePayload) subscriptionID() string {
	if p.Subscription != "" {
		return p.Subscription
	}
	return p.Parent.SubscriptionDetails.Subscription
}

func (p stripeInvoicePayload) priceID() string {
	for _, line := range p.Lines.Data {
		if line.Price.ID != "" {
			return line.Price.ID
		}
		if line.Pricing.PriceDetails.Price != "" {
			return line.Pricing.PriceDetails.Price
		}
	}
	return ""
}

// handleStripeWebhook verifies and dispatches Stripe events.
func (h *Handler) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	event, err := webhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), h.stripeWebhookSecret)
	if err != nil {
		h.logger.Warn("stripe webhook signature verification failed", "error", err)
		respondWithError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	switch event.Type {
	case "invoice.payment_succeeded", "invoice.paid":
		var inv stripeInvoicePayload
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			respondWithError(w, http.StatusBadRequest, "malformed invoice payload")
			return
		}
		err = h.webhooks.HandleInvoicePaid(r.Context(), app.InvoicePaid{
			Provider:       domain.ProviderStripe,
			PaymentID:      inv.ID,
			CustomerID:     inv.Customer,
			SubscriptionID: inv.subscriptionID(),
			PriceID:        inv.priceID(),
			Amount:         inv.AmountPaid,
			Currency:       inv.Currency,
			ReceiptURL:     inv.HostedInvoiceURL,
			Description:    "stripe invoice",
		})

	case "invoice.payment_failed":
		var inv stripeInvoicePayload
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			respondWithError(w, http.StatusBadRequest, "malformed invoice payload")
			return
		}
		err = h.webhooks.HandleInvoiceFailed(r.Context(), app.InvoiceFailed{
			Provider:       domain.ProviderStripe,
			PaymentID:      inv.ID,
			CustomerID:     inv.Customer,
			SubscriptionID: inv.subscriptionID(),
			Amount:         inv.AmountDue,
			Currency:       inv.Currency,
			FailureReason:  "invoice payment failed",
		})

	case "charge.refunded":
		var ch struct {
			Invoice string `json:"invoice"`
		}
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			respondWithError(w, http.StatusBadRequest, "malformed charge payload")
			return
		}
		err = h.webhooks.HandlePaymentRefunded(r.Context(), domain.ProviderStripe, ch.Invoice)

	case "customer.subscription.deleted":
		var sub struct {
			ID       string `json:"id"`
			Customer string `json:"customer"`
		}
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			respondWithError(w, http.StatusBadRequest, "malformed subscription payload")
			return
		}
		err = h.webhooks.HandleSubscriptionDeleted(r.Context(), domain.ProviderStripe, sub.Customer, sub.ID)

	default:
		h.logger.Info("ignoring stripe event", "type", event.Type)
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	h.ackWebhook(w, string(event.Type), err)
}

// paypalWebhookEvent mirrors PayPal's webhook envelope.
type paypalWebhookEvent struct {
	EventType string `json:"event_type"`
	Resource  struct {
		ID                 string `json:"id"`
		PlanID             string `json:"plan_id"`
		CustomID           string `json:"custom_id"`
		BillingAgreementID string `json:"billing_agreement_id"`
		SaleID             string `json:"sale_id"`
		Amount             struct {
			Total    string `json:"total"`
			Currency string `json:"currency"`
		} `json:"amount"`
	} `json:"resource"`
}

// handlePayPalWebhook verifies and dispatches PayPal events.
func (h *Handler) handlePayPalWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	valid, err := h.paypalVerifier.VerifyWebhookSignature(r.Context(), r.Header, payload)
	if err != nil {
		h.logger.Warn("paypal webhook verification failed", "error", err)
		respondWithError(w, http.StatusBadRequest, "verification failed")
		return
	}
	if !valid {
		respondWithError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	var event paypalWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		respondWithError(w, http.StatusBadRequest, "malformed event payload")
		return
	}

	switch event.EventType {
	case "BILLING.SUBSCRIPTION.ACTIVATED":
		err = h.webhooks.HandlePayPalSubscriptionActivated(r.Context(), event.Resource.CustomID, event.Resource.ID, event.Resource.PlanID)

	case "PAYMENT.SALE.COMPLETED":
		err = h.webhooks.HandleInvoicePaid(r.Context(), app.InvoicePaid{
			Provider:       domain.ProviderPayPal,
			PaymentID:      event.Resource.ID,
			SubscriptionID: event.Resource.BillingAgreementID,
			Amount:         paypalAmountCents(event.Resource.Amount.Total),
			Currency:       event.Resource.Amount.Currency,
			Description:    "paypal sale",
		})

	case "PAYMENT.SALE.REFUNDED":
		err = h.webhooks.HandlePaymentRefunded(r.Context(), domain.ProviderPayPal, event.Resource.SaleID)

	case "BILLING.SUBSCRIPTION.PAYMENT.FAILED":
		err = h.webhooks.HandleInvoiceFailed(r.Context(), app.InvoiceFailed{
			Provider:       domain.ProviderPayPal,
			SubscriptionID: event.Resource.ID,
			FailureReason:  "paypal subscription payment failed",
		})

	case "BILLING.SUBSCRIPTION.CANCELLED", "BILLING.SUBSCRIPTION.EXPIRED", "BILLING.SUBSCRIPTION.SUSPENDED":
		err = h.webhooks.HandleSubscriptionDeleted(r.Context(), domain.ProviderPayPal, "", event.Resource.ID)

	default:
		h.logger.Info("ignoring paypal event", "type", event.EventType)
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	h.ackWebhook(w, event.EventType, err)
}

// ackWebhook maps the reconciliation outcome to the provider's expectations:
// unmatched events are acknowledged so redelivery stops, real failures get a
// 500 so the provider retries.
func (h *Handler) ackWebhook(w http.ResponseWriter, eventType string, err error) {
	switch {
	case err == nil:
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "processed"})
	case errors.Is(err, app.ErrUnmatchedWebhook):
		h.logger.Warn("webhook references no known subscription", "type", eventType)
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "unmatched"})
	default:
		h.logger.Error("webhook processing failed", "type", eventType, "error", err)
		respondWithError(w, http.StatusInternalServerError, "webhook processing failed")
	}
}

// paypalAmountCents converts PayPal's decimal string amounts to cents.
func paypalAmountCents(total string) int64 {
	f, err := strconv.ParseFloat(total, 64)
	if err != nil {
		return 0
	}
	return int64(math.Round(f * 100))
}

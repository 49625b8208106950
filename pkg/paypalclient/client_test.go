package paypalclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// newTestServer serves the OAuth token endpoint plus a caller-supplied
// handler for everything else.
func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client, *int) {
	t.Helper()
	tokenCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client-id" || pass != "client-secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "test-token",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/", handler)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := NewClient(server.URL, "client-id", "client-secret", "wh-1")
	return server, client, &tokenCalls
}

func TestCreateSubscription(t *testing.T) {
	_, client, tokenCalls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/billing/subscriptions" || r.Method != "POST" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Fatalf("expected bearer token header, got %q", got)
		}

		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		if body["plan_id"] != "P-GROWTH-M" {
			t.Fatalf("expected plan_id=P-GROWTH-M, got %v", body["plan_id"])
		}
		if body["custom_id"] != "user-1" {
			t.Fatalf("expected custom_id=user-1, got %v", body["custom_id"])
		}

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "I-TEST",
			"status": "APPROVAL_PENDING",
			"links": []map[string]string{
				{"href": "https://paypal.test/self", "rel": "self"},
				{"href": "https://paypal.test/approve", "rel": "approve"},
			},
		})
	})

	subID, approvalURL, err := client.CreateSubscription(context.Background(), "P-GROWTH-M", "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subID != "I-TEST" {
		t.Fatalf("expected subscription ID I-TEST, got %q", subID)
	}
	if approvalURL != "https://paypal.test/approve" {
		t.Fatalf("expected approval link, got %q", approvalURL)
	}
	if *tokenCalls != 1 {
		t.Fatalf("expected one token request, got %d", *tokenCalls)
	}
}

func TestTokenIsCachedAcrossRequests(t *testing.T) {
	_, client, tokenCalls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	ctx := context.Background()
	if err := client.CancelSubscription(ctx, "I-TEST", "user requested"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := client.ReviseSubscriptionPlan(ctx, "I-TEST", "P-SCALE-M"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if *tokenCalls != 1 {
		t.Fatalf("expected cached token after first request, got %d token calls", *tokenCalls)
	}
}

func TestErrorResponseSurfacesDetails(t *testing.T) {
	_, client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"name":    "UNPROCESSABLE_ENTITY",
			"message": "The requested action could not be performed.",
			"details": []map[string]string{
				{"issue": "SUBSCRIPTION_STATUS_INVALID", "description": "Invalid subscription status for cancel action."},
			},
		})
	})

	err := client.CancelSubscription(context.Background(), "I-DEAD", "cleanup")
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *ErrorResponse
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected ErrorResponse, got %T: %v", err, err)
	}
	if apiErr.Name != "UNPROCESSABLE_ENTITY" {
		t.Fatalf("expected error name UNPROCESSABLE_ENTITY, got %q", apiErr.Name)
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	_, client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/notifications/verify-webhook-signature" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		if body["webhook_id"] != "wh-1" {
			t.Fatalf("expected webhook_id=wh-1, got %v", body["webhook_id"])
		}
		if body["transmission_id"] != "tx-1" {
			t.Fatalf("expected transmission_id=tx-1, got %v", body["transmission_id"])
		}
		json.NewEncoder(w).Encode(map[string]string{"verification_status": "SUCCESS"})
	})

	headers := http.Header{}
	headers.Set("Paypal-Transmission-Id", "tx-1")
	headers.Set("Paypal-Transmission-Sig", "sig")
	headers.Set("Paypal-Transmission-Time", "2026-01-01T00:00:00Z")
	headers.Set("Paypal-Auth-Algo", "SHA256withRSA")
	headers.Set("Paypal-Cert-Url", "https://paypal.test/cert")

	valid, err := client.VerifyWebhookSignature(context.Background(), headers, []byte(`{"event_type":"PAYMENT.SALE.COMPLETED"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !valid {
		t.Fatal("expected verification to succeed")
	}
}

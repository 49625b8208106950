/**
 * @description
 * This package provides a client for the PayPal REST API. It encapsulates
 * OAuth2 client-credentials authentication with token caching, billing
 * subscription management, and webhook signature verification.
 */
package paypalclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Client is a client for the PayPal API.
type Client struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	WebhookID    string
	HTTPClient   *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient creates a new PayPal API client.
func NewClient(baseURL, clientID, clientSecret, webhookID string) *Client {
	return &Client{
		BaseURL:      strings.TrimSuffix(baseURL, "/"),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		WebhookID:    webhookID,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ErrorResponse represents an error from the PayPal API.
type ErrorResponse struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Details []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`
}

func (e *ErrorResponse) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("paypal api error: %s - %s", e.Name, e.Details[0].Description)
	}
	return fmt.Sprintf("paypal api error: %s - %s", e.Name, e.Message)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// token returns a cached OAuth2 access token, refreshing it when it is close
// to expiry.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry.Add(-time.Minute)) {
		return c.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.SetBasicAuth(c.ClientID, c.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("paypal token request failed with status %d", resp.StatusCode)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	c.accessToken = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return c.accessToken, nil
}

// SubscriptionResponse is the response from the create-subscription endpoint.
type SubscriptionResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links"`
}

// ApprovalURL returns the link the subscriber must visit to approve the
// subscription.
func (s *SubscriptionResponse) ApprovalURL() string {
	for _, link := range s.Links {
		if link.Rel == "approve" {
			return link.Href
		}
	}
	return ""
}

// CreateSubscription creates a billing subscription for a plan. The user ID
// travels in custom_id so the activation webhook can bind it back.
func (c *Client) CreateSubscription(ctx context.Context, planID, userID string) (string, string, error) {
	payload := map[string]interface{}{
		"plan_id":   planID,
		"custom_id": userID,
	}

	var out SubscriptionResponse
	if err := c.do(ctx, "POST", "/v1/billing/subscriptions", payload, &out); err != nil {
		return "", "", err
	}
	return out.ID, out.ApprovalURL(), nil
}

// ReviseSubscriptionPlan switches an active subscription to a different plan.
func (c *Client) ReviseSubscriptionPlan(ctx context.Context, subscriptionID, planID string) error {
	payload := map[string]interface{}{
		"plan_id": planID,
	}
	path := "/v1/billing/subscriptions/" + subscriptionID + "/revise"
	return c.do(ctx, "POST", path, payload, nil)
}

// CancelSubscription cancels a billing subscription.
func (c *Client) CancelSubscription(ctx context.Context, subscriptionID, reason string) error {
	payload := map[string]interface{}{
		"reason": reason,
	}
	path := "/v1/billing/subscriptions/" + subscriptionID + "/cancel"
	return c.do(ctx, "POST", path, payload, nil)
}

// VerifyWebhookSignature asks PayPal to confirm a webhook transmission. The
// raw body must be passed through untouched.
func (c *Client) VerifyWebhookSignature(ctx context.Context, headers http.Header, body []byte) (bool, error) {
	payload := map[string]interface{}{
		"auth_algo":         headers.Get("Paypal-Auth-Algo"),
		"cert_url":          headers.Get("Paypal-Cert-Url"),
		"transmission_id":   headers.Get("Paypal-Transmission-Id"),
		"transmission_sig":  headers.Get("Paypal-Transmission-Sig"),
		"transmission_time": headers.Get("Paypal-Transmission-Time"),
		"webhook_id":        c.WebhookID,
		"webhook_event":     json.RawMessage(body),
	}

	var out struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := c.do(ctx, "POST", "/v1/notifications/verify-webhook-signature", payload, &out); err != nil {
		return false, err
	}
	return out.VerificationStatus == "SUCCESS", nil
}

// do is a generic helper to execute authenticated API requests.
func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	accessToken, err := c.token(ctx)
	if err != nil {
		return err
	}

	var reqBody io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewBuffer(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil || errResp.Name == "" {
			return fmt.Errorf("paypal request %s %s failed with status %d", method, path, resp.StatusCode)
		}
		return &errResp
	}

	if out != nil && len(bodyBytes) > 0 {
		if err := json.Unmarshal(bodyBytes, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

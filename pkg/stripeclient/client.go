/**
 * @description
 * This package wraps the Stripe SDK operations the backend needs: customer
 * management, Checkout sessions, subscription price changes, the billing
 * portal, and invoice retrieval/retry. The global API key is set once at
 * construction; all calls go through the SDK's package-level clients.
 */
package stripeclient

import (
	"context"
	"fmt"

	stripe "github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/invoice"
	"github.com/stripe/stripe-go/v82/subscription"
)

// Client wraps Stripe operations behind the gateway interfaces the
// application layer consumes.
type Client struct{}

// NewClient sets the global Stripe API key and returns a client.
func NewClient(apiKey string) *Client {
	stripe.Key = apiKey
	return &Client{}
}

// EnsureCustomer returns an existing Stripe customer ID or creates a new
// customer tagged with the user ID.
func (c *Client) EnsureCustomer(_ context.Context, userID, email, existingCustomerID string) (string, error) {
	if existingCustomerID != "" {
		return existingCustomerID, nil
	}

	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Metadata: map[string]string{
			"user_id": userID,
		},
	}
	cust, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	return cust.ID, nil
}

// CreateCheckoutSession starts a hosted Checkout flow in subscription mode.
func (c *Client) CreateCheckoutSession(_ context.Context, customerID, priceID, successURL, cancelURL string) (string, string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer: stripe.String(customerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
	}
	s, err := checkoutsession.New(params)
	if err != nil {
		return "", "", fmt.Errorf("create checkout session: %w", err)
	}
	return s.ID, s.URL, nil
}

// ChangeSubscriptionPrice swaps the subscription's single item to a new
// price, prorating when requested.
func (c *Client) ChangeSubscriptionPrice(_ context.Context, subscriptionID, priceID string, prorate bool) error {
	sub, err := subscription.Get(subscriptionID, nil)
	if err != nil {
		return fmt.Errorf("get stripe subscription: %w", err)
	}
	if len(sub.Items.Data) == 0 {
		return fmt.Errorf("stripe subscription %s has no items", subscriptionID)
	}

	prorationBehavior := "none"
	if prorate {
		prorationBehavior = "create_prorations"
	}

	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{
			{
				ID:    stripe.String(sub.Items.Data[0].ID),
				Price: stripe.String(priceID),
			},
		},
		ProrationBehavior: stripe.String(prorationBehavior),
	}
	if _, err := subscription.Update(subscriptionID, params); err != nil {
		return fmt.Errorf("update stripe subscription: %w", err)
	}
	return nil
}

// CancelSubscriptionAtPeriodEnd stops renewal without an immediate cutoff.
func (c *Client) CancelSubscriptionAtPeriodEnd(_ context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	}
	if _, err := subscription.Update(subscriptionID, params); err != nil {
		return fmt.Errorf("cancel stripe subscription: %w", err)
	}
	return nil
}

// CreateBillingPortalSession returns a URL the user can manage billing at.
func (c *Client) CreateBillingPortalSession(_ context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	s, err := portalsession.New(params)
	if err != nil {
		return "", fmt.Errorf("create billing portal session: %w", err)
	}
	return s.URL, nil
}

// PayInvoice asks Stripe to re-attempt collection of an open invoice.
func (c *Client) PayInvoice(_ context.Context, invoiceID string) error {
	if _, err := invoice.Pay(invoiceID, &stripe.InvoicePayParams{}); err != nil {
		return fmt.Errorf("pay stripe invoice: %w", err)
	}
	return nil
}

// Invoice is the normalized subset of a Stripe invoice the backend consumes.
type Invoice struct {
	ID               string
	CustomerID       string
	SubscriptionID   string
	PriceID          string
	AmountPaid       int64
	Currency         string
	HostedInvoiceURL string
}

// FetchInvoice retrieves an invoice and flattens the fields the
// reconciliation path needs.
func (c *Client) FetchInvoice(_ context.Context, invoiceID string) (*Invoice, error) {
	inv, err := invoice.Get(invoiceID, nil)
	if err != nil {
		return nil, fmt.Errorf("get stripe invoice: %w", err)
	}

	out := &Invoice{
		ID:               inv.ID,
		AmountPaid:       inv.AmountPaid,
		Currency:         string(inv.Currency),
		HostedInvoiceURL: inv.HostedInvoiceURL,
	}
	if inv.Customer != nil {
		out.CustomerID = inv.Customer.ID
	}
	if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil && inv.Parent.SubscriptionDetails.Subscription != nil {
		out.SubscriptionID = inv.Parent.SubscriptionDetails.Subscription.ID
	}
	if inv.Lines != nil && len(inv.Lines.Data) > 0 {
		line := inv.Lines.Data[0]
		if line.Pricing != nil && line.Pricing.PriceDetails != nil {
			out.PriceID = line.Pricing.PriceDetails.Price
		}
	}
	return out, nil
}

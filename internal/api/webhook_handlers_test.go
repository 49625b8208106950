package api

import (
	"encoding/json"
	"testing"
)

func TestStripeInvoicePayloadDecodesBothShapes(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		wantSub   string
		wantPrice string
	}{
		{
			name: "flat fields",
			payload: `{
				"id": "in_1",
				"customer": "cus_123",
				"subscription": "sub_legacy",
				"lines": {"data": [{"price": {"id": "price_growth_m"}}]}
			}`,
			wantSub:   "sub_legacy",
			wantPrice: "price_growth_m",
		},
		{
			name: "nested 2025 fields",
			payload: `{
				"id": "in_2",
				"customer": "cus_123",
				"parent": {"subscription_details": {"subscription": "sub_nested"}},
				"lines": {"data": [{"pricing": {"price_details": {"price": "price_growth_m"}}}]}
			}`,
			wantSub:   "sub_nested",
			wantPrice: "price_growth_m",
		},
		{
			name: "flat fields win when both present",
			payload: `{
				"id": "in_3",
				"subscription": "sub_legacy",
				"parent": {"subscription_details": {"subscription": "sub_nested"}},
				"lines": {"data": [{"price": {"id": "price_a"}, "pricing": {"price_details": {"price": "price_b"}}}]}
			}`,
			wantSub:   "sub_legacy",
			wantPrice: "price_a",
		},
		{
			name:      "missing everything",
			payload:   `{"id": "in_4"}`,
			wantSub:   "",
			wantPrice: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var inv stripeInvoicePayload
			if err := json.Unmarshal([]byte(tt.payload), &inv); err != nil {
				t.Fatalf("failed to decode payload: %v", err)
			}
			if got := inv.subscriptionID(); got != tt.wantSub {
				t.Fatalf("expected subscription %q, got %q", tt.wantSub, got)
			}
			if got := inv.priceID(); got != tt.wantPrice {
				t.Fatalf("expected price %q, got %q", tt.wantPrice, got)
			}
		})
	}
}

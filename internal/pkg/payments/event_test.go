package payments

import (
	"encoding/json"
	"testing"
	"time"
)

func TestKindFromType(t *testing.T) {
	tests := []struct {
		in   string
		want EventKind
	}{
		{in: "checkout.session.completed", want: KindCheckoutCompleted},
		{in: "invoice.payment_succeeded", want: KindInvoicePaid},
		{in: "customer.subscription.updated", want: KindSubscriptionUpdated},
		{in: "customer.subscription.deleted", want: KindSubscriptionDeleted},
		{in: "payment_intent.succeeded", want: KindUnknown},
		{in: "", want: KindUnknown},
	}

	for _, tt := range tests {
		if got := KindFromType(tt.in); got != tt.want {
			t.Fatalf("KindFromType(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseEvent_CheckoutMetadataEmail(t *testing.T) {
	raw := json.RawMessage(`{
		"id": "cs_test_1",
		"mode": "payment",
		"amount_total": 2900,
		"customer": "cus_1",
		"metadata": { "snippet_id": "mega-menu", "customer_email": "a@b.com" },
		"customer_details": { "email": "payer@b.com" }
	}`)

	ev, err := ParseEvent("checkout.session.completed", "evt_1", raw)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if ev.Kind != KindCheckoutCompleted || ev.Checkout == nil {
		t.Fatalf("expected typed checkout payload, got kind %v", ev.Kind)
	}
	co := ev.Checkout
	if co.SessionID != "cs_test_1" || co.SnippetID != "mega-menu" {
		t.Fatalf("unexpected ids: session=%q snippet=%q", co.SessionID, co.SnippetID)
	}
	if co.Email != "a@b.com" {
		t.Fatalf("metadata email should win over customer_details, got %q", co.Email)
	}
	if co.AmountTotal != 2900 {
		t.Fatalf("expected amount_total 2900, got %d", co.AmountTotal)
	}
}

func TestParseEvent_CheckoutEmailFallback(t *testing.T) {
	raw := json.RawMessage(`{
		"id": "cs_test_2",
		"mode": "subscription",
		"subscription": "sub_1",
		"customer": "cus_1",
		"metadata": { "plan": "monthly" },
		"customer_details": { "email": "payer@b.com" }
	}`)

	ev, err := ParseEvent("checkout.session.completed", "evt_2", raw)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if ev.Checkout.Email != "payer@b.com" {
		t.Fatalf("expected fallback to payer email, got %q", ev.Checkout.Email)
	}
	if ev.Checkout.Plan != "monthly" || ev.Checkout.SubscriptionID != "sub_1" {
		t.Fatalf("unexpected payload: %+v", ev.Checkout)
	}
}

func TestParseEvent_CheckoutMissingSessionID(t *testing.T) {
	if _, err := ParseEvent("checkout.session.completed", "evt_3", json.RawMessage(`{"mode":"payment"}`)); err == nil {
		t.Fatalf("expected error for missing session id")
	}
}

func TestParseEvent_InvoicePeriodEnd(t *testing.T) {
	raw := json.RawMessage(`{
		"id": "in_1",
		"subscription": "sub_1",
		"customer": "cus_1",
		"lines": { "data": [ { "period": { "end": 1700000000 } } ] }
	}`)

	ev, err := ParseEvent("invoice.payment_succeeded", "evt_4", raw)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if ev.Invoice == nil || ev.Invoice.PeriodEnd == nil {
		t.Fatalf("expected invoice period end")
	}
	want := time.Unix(1700000000, 0).UTC()
	if !ev.Invoice.PeriodEnd.Equal(want) {
		t.Fatalf("expected period end %v, got %v", want, ev.Invoice.PeriodEnd)
	}
}

func TestParseEvent_SubscriptionSnapshot(t *testing.T) {
	raw := json.RawMessage(`{
		"id": "sub_1",
		"customer": "cus_1",
		"status": "Past_Due",
		"current_period_start": 1700000000,
		"current_period_end": 1702592000,
		"items": { "data": [ { "price": { "id": "price_1", "recurring": { "interval": "month" } } } ] }
	}`)

	ev, err := ParseEvent("customer.subscription.updated", "evt_5", raw)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	sp := ev.Subscription
	if sp == nil {
		t.Fatalf("expected typed subscription payload")
	}
	if sp.Status != "past_due" {
		t.Fatalf("expected normalized status past_due, got %q", sp.Status)
	}
	if sp.PriceID != "price_1" || sp.Interval != "month" {
		t.Fatalf("unexpected price fields: %+v", sp)
	}
	if sp.CanceledAt != nil {
		t.Fatalf("expected nil canceled_at for zero timestamp")
	}
}

func TestParseEvent_UnknownKindKeepsRawType(t *testing.T) {
	ev, err := ParseEvent("charge.refunded", "evt_6", json.RawMessage(`{"id":"ch_1"}`))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if ev.Kind != KindUnknown || ev.RawKind != "charge.refunded" {
		t.Fatalf("expected unknown kind carrying raw type, got %v %q", ev.Kind, ev.RawKind)
	}
	if ev.Checkout != nil || ev.Invoice != nil || ev.Subscription != nil {
		t.Fatalf("unknown events must not carry payloads")
	}
}

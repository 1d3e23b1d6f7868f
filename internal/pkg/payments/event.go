package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// EventKind is the closed set of webhook event types this backend reconciles.
// Every other provider event type maps to KindUnknown and is acknowledged as
// a no-op, since Stripe adds event types over time and redelivers on non-2xx.
type EventKind int

const (
	KindUnknown EventKind = iota
	KindCheckoutCompleted
	KindInvoicePaid
	KindSubscriptionUpdated
	KindSubscriptionDeleted
)

const (
	eventTypeCheckoutCompleted   = "checkout.session.completed"
	eventTypeInvoicePaid         = "invoice.payment_succeeded"
	eventTypeSubscriptionUpdated = "customer.subscription.updated"
	eventTypeSubscriptionDeleted = "customer.subscription.deleted"
)

func KindFromType(rawType string) EventKind {
	switch strings.TrimSpace(rawType) {
	case eventTypeCheckoutCompleted:
		return KindCheckoutCompleted
	case eventTypeInvoicePaid:
		return KindInvoicePaid
	case eventTypeSubscriptionUpdated:
		return KindSubscriptionUpdated
	case eventTypeSubscriptionDeleted:
		return KindSubscriptionDeleted
	default:
		return KindUnknown
	}
}

func (k EventKind) String() string {
	switch k {
	case KindCheckoutCompleted:
		return eventTypeCheckoutCompleted
	case KindInvoicePaid:
		return eventTypeInvoicePaid
	case KindSubscriptionUpdated:
		return eventTypeSubscriptionUpdated
	case KindSubscriptionDeleted:
		return eventTypeSubscriptionDeleted
	default:
		return "unknown"
	}
}

// Event is the fully typed form of a verified webhook delivery. Exactly one
// payload pointer is non-nil for the known kinds; all nested-field probing of
// the provider JSON happens in ParseEvent, nowhere else.
type Event struct {
	ID      string
	Kind    EventKind
	RawKind string

	Checkout     *CheckoutPayload
	Invoice      *InvoicePayload
	Subscription *SubscriptionPayload
}

// CheckoutPayload carries the fields of a completed checkout session the
// reconciliation handlers need. Email is already resolved with the metadata
// fallback chain (metadata.customer_email, then the payer's own email).
type CheckoutPayload struct {
	SessionID      string
	Mode           string
	AmountTotal    int64 // minor units
	SubscriptionID string
	CustomerID     string
	Email          string
	SnippetID      string
	Plan           string
}

// InvoicePayload carries the renewal fields of a paid invoice.
type InvoicePayload struct {
	InvoiceID      string
	SubscriptionID string
	CustomerID     string
	PeriodEnd      *time.Time
}

// SubscriptionPayload is the full subscription snapshot of a lifecycle event.
type SubscriptionPayload struct {
	SubscriptionID     string
	CustomerID         string
	Status             string
	PriceID            string
	Interval           string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CanceledAt         *time.Time
}

type rawCheckoutSession struct {
	ID              string            `json:"id"`
	Mode            string            `json:"mode"`
	AmountTotal     int64             `json:"amount_total"`
	Subscription    string            `json:"subscription"`
	Customer        string            `json:"customer"`
	Metadata        map[string]string `json:"metadata"`
	CustomerDetails struct {
		Email string `json:"email"`
	} `json:"customer_details"`
}

type rawInvoice struct {
	ID           string `json:"id"`
	Subscription string `json:"subscription"`
	Customer     string `json:"customer"`
	Lines        struct {
		Data []struct {
			Period struct {
				End int64 `json:"end"`
			} `json:"period"`
		} `json:"data"`
	} `json:"lines"`
}

type rawSubscription struct {
	ID                 string `json:"id"`
	Customer           string `json:"customer"`
	Status             string `json:"status"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	CanceledAt         int64  `json:"canceled_at"`
	Items              struct {
		Data []struct {
			Price struct {
				ID        string `json:"id"`
				Recurring struct {
					Interval string `json:"interval"`
				} `json:"recurring"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// ParseEvent converts a verified provider event into its typed form. It is
// the single validation step: handlers never touch the raw JSON.
func ParseEvent(rawType, id string, data json.RawMessage) (*Event, error) {
	ev := &Event{
		ID:      strings.TrimSpace(id),
		Kind:    KindFromType(rawType),
		RawKind: strings.TrimSpace(rawType),
	}

	switch ev.Kind {
	case KindCheckoutCompleted:
		var raw rawCheckoutSession
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse checkout session: %w", err)
		}
		if strings.TrimSpace(raw.ID) == "" {
			return nil, errors.New("checkout session payload missing session id")
		}
		email := strings.TrimSpace(raw.Metadata["customer_email"])
		if email == "" {
			email = strings.TrimSpace(raw.CustomerDetails.Email)
		}
		ev.Checkout = &CheckoutPayload{
			SessionID:      strings.TrimSpace(raw.ID),
			Mode:           strings.TrimSpace(raw.Mode),
			AmountTotal:    raw.AmountTotal,
			SubscriptionID: strings.TrimSpace(raw.Subscription),
			CustomerID:     strings.TrimSpace(raw.Customer),
			Email:          email,
			SnippetID:      strings.TrimSpace(raw.Metadata["snippet_id"]),
			Plan:           strings.TrimSpace(raw.Metadata["plan"]),
		}
	case KindInvoicePaid:
		var raw rawInvoice
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse invoice: %w", err)
		}
		inv := &InvoicePayload{
			InvoiceID:      strings.TrimSpace(raw.ID),
			SubscriptionID: strings.TrimSpace(raw.Subscription),
			CustomerID:     strings.TrimSpace(raw.Customer),
		}
		if len(raw.Lines.Data) > 0 {
			inv.PeriodEnd = unixTime(raw.Lines.Data[0].Period.End)
		}
		ev.Invoice = inv
	case KindSubscriptionUpdated, KindSubscriptionDeleted:
		var raw rawSubscription
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse subscription: %w", err)
		}
		sub := &SubscriptionPayload{
			SubscriptionID:     strings.TrimSpace(raw.ID),
			CustomerID:         strings.TrimSpace(raw.Customer),
			Status:             strings.ToLower(strings.TrimSpace(raw.Status)),
			CurrentPeriodStart: unixTime(raw.CurrentPeriodStart),
			CurrentPeriodEnd:   unixTime(raw.CurrentPeriodEnd),
			CanceledAt:         unixTime(raw.CanceledAt),
		}
		if len(raw.Items.Data) > 0 {
			sub.PriceID = strings.TrimSpace(raw.Items.Data[0].Price.ID)
			sub.Interval = strings.TrimSpace(raw.Items.Data[0].Price.Recurring.Interval)
		}
		ev.Subscription = sub
	}

	return ev, nil
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

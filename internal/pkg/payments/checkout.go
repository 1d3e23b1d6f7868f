package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"

	"github.com/liquidsnips/liquidsnips/app/models"
	"github.com/liquidsnips/liquidsnips/internal/pkg/env"
)

// ErrInvalidPlan is returned when a subscription plan key does not map to a
// configured Stripe price. It is surfaced synchronously to the checkout
// caller, unlike webhook-side failures.
var ErrInvalidPlan = errors.New("invalid plan or price not configured")

// CheckoutFactory begins hosted checkout sessions. The returned session id is
// the idempotency key the purchase handler later consumes, and the URL is
// where the client redirects the buyer.
type CheckoutFactory struct {
	monthlyPriceID string
	yearlyPriceID  string
	publicDomain   string
}

func NewCheckoutFactory(monthlyPriceID, yearlyPriceID, publicDomain string) *CheckoutFactory {
	return &CheckoutFactory{
		monthlyPriceID: strings.TrimSpace(monthlyPriceID),
		yearlyPriceID:  strings.TrimSpace(yearlyPriceID),
		publicDomain:   strings.TrimRight(strings.TrimSpace(publicDomain), "/"),
	}
}

// NewCheckoutFactoryFromEnv also installs the Stripe secret key. Call once
// from the process entry point before serving requests.
func NewCheckoutFactoryFromEnv() *CheckoutFactory {
	stripe.Key = strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", ""))
	return NewCheckoutFactory(
		env.GetEnv("STRIPE_PRICE_MONTHLY", ""),
		env.GetEnv("STRIPE_PRICE_YEARLY", ""),
		env.GetEnv("PUBLIC_DOMAIN", ""),
	)
}

// SessionResult is the redirect URL plus the opaque session identifier.
type SessionResult struct {
	URL string `json:"url"`
	ID  string `json:"id"`
}

// SnippetSessionInput describes a one-off snippet purchase session.
type SnippetSessionInput struct {
	SnippetID     string
	Title         string
	Amount        float64 // major units
	Quantity      int64
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
}

// SubscriptionSessionInput describes a subscription checkout session.
type SubscriptionSessionInput struct {
	Plan          string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
}

// CreateSnippetSession begins a payment-mode checkout for a single snippet.
// The snippet id and resolved customer email travel in the session metadata
// so the webhook side can attribute the purchase.
func (f *CheckoutFactory) CreateSnippetSession(ctx context.Context, in SnippetSessionInput) (*SessionResult, error) {
	if strings.TrimSpace(in.SnippetID) == "" {
		return nil, errors.New("snippet id is required")
	}
	quantity := in.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	name := strings.TrimSpace(in.Title)
	if name == "" {
		name = fmt.Sprintf("Snippet %s", in.SnippetID)
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(string(stripe.CurrencyUSD)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(name),
					},
					UnitAmount: stripe.Int64(minorUnits(in.Amount)),
				},
				Quantity: stripe.Int64(quantity),
			},
		},
		SuccessURL:        stripe.String(f.successURL(in.SuccessURL)),
		CancelURL:         stripe.String(f.cancelURL(in.CancelURL)),
		ClientReferenceID: stripe.String(uuid.NewString()),
	}
	params.Context = ctx
	params.AddMetadata("snippet_id", in.SnippetID)
	if email := strings.TrimSpace(in.CustomerEmail); email != "" {
		params.AddMetadata("customer_email", email)
		params.CustomerEmail = stripe.String(email)
	}

	sess, err := checkoutsession.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &SessionResult{URL: sess.URL, ID: sess.ID}, nil
}

// CreateSubscriptionSession begins a subscription-mode checkout. The plan key
// is resolved server-side to a configured Stripe price; clients never send
// price ids.
func (f *CheckoutFactory) CreateSubscriptionSession(ctx context.Context, in SubscriptionSessionInput) (*SessionResult, error) {
	priceID, err := f.priceForPlan(in.Plan)
	if err != nil {
		return nil, err
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(f.successURL(in.SuccessURL)),
		CancelURL:         stripe.String(f.cancelURL(in.CancelURL)),
		ClientReferenceID: stripe.String(uuid.NewString()),
	}
	params.Context = ctx
	params.AddMetadata("plan", normalizePlan(in.Plan))
	if email := strings.TrimSpace(in.CustomerEmail); email != "" {
		params.AddMetadata("customer_email", email)
		params.CustomerEmail = stripe.String(email)
	}

	sess, err := checkoutsession.New(params)
	if err != nil {
		return nil, fmt.Errorf("create subscription session: %w", err)
	}
	return &SessionResult{URL: sess.URL, ID: sess.ID}, nil
}

// CreatePortalSession opens the provider's billing portal for an existing
// customer so they can manage or cancel their subscription.
func (f *CheckoutFactory) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	if strings.TrimSpace(customerID) == "" {
		return "", errors.New("customer id is required")
	}
	if strings.TrimSpace(returnURL) == "" {
		returnURL = f.publicDomain
	}

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(strings.TrimSpace(customerID)),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	sess, err := portalsession.New(params)
	if err != nil {
		return "", fmt.Errorf("create portal session: %w", err)
	}
	return sess.URL, nil
}

func (f *CheckoutFactory) priceForPlan(plan string) (string, error) {
	var priceID string
	switch normalizePlan(plan) {
	case models.PlanMonthly:
		priceID = f.monthlyPriceID
	case models.PlanYearly:
		priceID = f.yearlyPriceID
	}
	if priceID == "" {
		return "", ErrInvalidPlan
	}
	return priceID, nil
}

func (f *CheckoutFactory) successURL(override string) string {
	if u := strings.TrimSpace(override); u != "" {
		return u
	}
	return f.publicDomain + "/?checkout=success"
}

func (f *CheckoutFactory) cancelURL(override string) string {
	if u := strings.TrimSpace(override); u != "" {
		return u
	}
	return f.publicDomain + "/?checkout=canceled"
}

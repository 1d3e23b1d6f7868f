package payments

import (
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/liquidsnips/liquidsnips/internal/pkg/env"
)

// ErrInvalidSignature is the single failure mode of webhook verification.
// Malformed headers, wrong secrets and stale timestamps all collapse into it
// so the response does not reveal which check failed.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Verifier checks that a webhook delivery genuinely originated from Stripe.
// Verification runs over the raw, unmodified request body; a re-serialized
// body would break the byte-sensitive HMAC.
type Verifier struct {
	signingSecret string
}

func NewVerifier(signingSecret string) *Verifier {
	return &Verifier{signingSecret: strings.TrimSpace(signingSecret)}
}

func NewVerifierFromEnv() *Verifier {
	return NewVerifier(env.GetEnv("STRIPE_WEBHOOK_SECRET", ""))
}

// VerifyAndParse validates the signature header against the raw payload and
// returns the typed event. Callers must reject the request without further
// processing when ErrInvalidSignature is returned.
func (v *Verifier) VerifyAndParse(payload []byte, signatureHeader string) (*Event, error) {
	if v.signingSecret == "" || strings.TrimSpace(signatureHeader) == "" {
		return nil, ErrInvalidSignature
	}

	stripeEvent, err := webhook.ConstructEventWithOptions(payload, signatureHeader, v.signingSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, ErrInvalidSignature
	}

	return ParseEvent(string(stripeEvent.Type), stripeEvent.ID, stripeEvent.Data.Raw)
}

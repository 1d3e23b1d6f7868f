package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"
)

const testSigningSecret = "whsec_test_secret"

// signPayload builds a Stripe-Signature header the way the provider does:
// an HMAC-SHA256 over "<timestamp>.<payload>" keyed with the signing secret.
func signPayload(t *testing.T, secret string, payload []byte, ts time.Time) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func checkoutEventBody(sessionID string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_sig_1",
		"type": "checkout.session.completed",
		"data": { "object": { "id": %q, "mode": "payment", "amount_total": 2900,
			"metadata": { "snippet_id": "mega-menu", "customer_email": "a@b.com" } } }
	}`, sessionID))
}

func TestVerifyAndParse_ValidSignature(t *testing.T) {
	v := NewVerifier(testSigningSecret)
	body := checkoutEventBody("cs_sig_1")
	header := signPayload(t, testSigningSecret, body, time.Now())

	ev, err := v.VerifyAndParse(body, header)
	if err != nil {
		t.Fatalf("unexpected verification error: %v", err)
	}
	if ev.ID != "evt_sig_1" || ev.Kind != KindCheckoutCompleted {
		t.Fatalf("unexpected event: id=%q kind=%v", ev.ID, ev.Kind)
	}
	if ev.Checkout == nil || ev.Checkout.SessionID != "cs_sig_1" {
		t.Fatalf("expected typed checkout payload, got %+v", ev.Checkout)
	}
}

func TestVerifyAndParse_WrongSecret(t *testing.T) {
	v := NewVerifier(testSigningSecret)
	body := checkoutEventBody("cs_sig_2")
	header := signPayload(t, "whsec_other_secret", body, time.Now())

	if _, err := v.VerifyAndParse(body, header); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyAndParse_TamperedBody(t *testing.T) {
	v := NewVerifier(testSigningSecret)
	body := checkoutEventBody("cs_sig_3")
	header := signPayload(t, testSigningSecret, body, time.Now())

	tampered := checkoutEventBody("cs_sig_4")
	if _, err := v.VerifyAndParse(tampered, header); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyAndParse_StaleTimestamp(t *testing.T) {
	v := NewVerifier(testSigningSecret)
	body := checkoutEventBody("cs_sig_5")
	header := signPayload(t, testSigningSecret, body, time.Now().Add(-time.Hour))

	if _, err := v.VerifyAndParse(body, header); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyAndParse_AuthenticButMalformedPayload(t *testing.T) {
	v := NewVerifier(testSigningSecret)
	// Correctly signed, but the checkout object has no session id. The
	// error must stay distinguishable from a signature failure so the
	// webhook endpoint can acknowledge instead of triggering redelivery.
	body := []byte(`{
		"id": "evt_sig_7",
		"type": "checkout.session.completed",
		"data": { "object": { "mode": "payment" } }
	}`)
	header := signPayload(t, testSigningSecret, body, time.Now())

	_, err := v.VerifyAndParse(body, header)
	if err == nil {
		t.Fatalf("expected parse error for payload without session id")
	}
	if errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("parse failure must not be reported as a signature failure")
	}
}

func TestVerifyAndParse_MissingHeaderOrSecret(t *testing.T) {
	body := checkoutEventBody("cs_sig_6")

	if _, err := NewVerifier(testSigningSecret).VerifyAndParse(body, ""); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for empty header, got %v", err)
	}
	header := signPayload(t, testSigningSecret, body, time.Now())
	if _, err := NewVerifier("").VerifyAndParse(body, header); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for unconfigured secret, got %v", err)
	}
}

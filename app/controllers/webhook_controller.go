package controllers

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/liquidsnips/liquidsnips/app/models"
	"github.com/liquidsnips/liquidsnips/internal/pkg/catalog"
	"github.com/liquidsnips/liquidsnips/internal/pkg/database"
	"github.com/liquidsnips/liquidsnips/internal/pkg/payments"
)

const webhookTimeout = 15 * time.Second

// HandleStripeWebhook receives asynchronous payment events. Verification
// runs over the raw body; anything that verifies is acknowledged with
// {received: true} whether it was processed, a duplicate, or an ignored
// kind. Only a processing timeout returns non-2xx, which makes Stripe
// redeliver; a redelivered event id is dispatched again unless an earlier
// delivery already processed it cleanly.
func HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("Stripe-Signature"))

	event, err := payments.NewVerifierFromEnv().VerifyAndParse(rawBody, signature)
	if err != nil {
		if errors.Is(err, payments.ErrInvalidSignature) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid signature"})
		}
		// The signature checked out, so the event is authentic but its
		// payload is malformed. Redelivery would carry the same bytes;
		// acknowledge instead of making Stripe retry it forever.
		log.Printf("discarding verified webhook with unparseable payload: %v", err)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true})
	}

	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	store := payments.NewStore(database.GetDB())
	created, stored, err := store.RecordEvent(ctx, &models.WebhookEvent{
		StripeEventID: event.ID,
		EventType:     event.RawKind,
		PayloadJSON:   string(rawBody),
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook persist failed"})
	}
	if !payments.ShouldProcess(created, stored) {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "duplicate": true})
	}

	reconciler := payments.NewReconciler(store, catalog.NewService(database.GetDB()))
	processErr := payments.NewRouter(reconciler).Dispatch(ctx, event)
	_ = store.MarkEventProcessed(ctx, stored.ID, processErr)
	if processErr != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "event processing failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true})
}

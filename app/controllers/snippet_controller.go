package controllers

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/liquidsnips/liquidsnips/internal/pkg/catalog"
	"github.com/liquidsnips/liquidsnips/internal/pkg/database"
	"github.com/liquidsnips/liquidsnips/internal/pkg/metrics/counter"
	"github.com/liquidsnips/liquidsnips/internal/pkg/payments"
)

const catalogTimeout = 10 * time.Second

// HandleListSnippets returns published catalog metadata, optionally filtered
// by category. Snippet code is never included in listings.
func HandleListSnippets(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), catalogTimeout)
	defer cancel()

	svc := catalog.NewService(database.GetDB())

	category := strings.TrimSpace(c.Query("category"))
	var (
		snippets interface{}
		err      error
	)
	if category != "" && !strings.EqualFold(category, "all") {
		snippets, err = svc.ListPublishedByCategory(ctx, category)
	} else {
		snippets, err = svc.ListPublished(ctx)
	}
	if err != nil {
		log.Printf("error listing snippets: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not list snippets"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"snippets": snippets})
}

// HandleGetSnippet returns one snippet. The full code body is included only
// when the caller names a user (by email) who holds a grant for it; callers
// reach this route through the internal API key middleware.
func HandleGetSnippet(c *fiber.Ctx) error {
	snippetID := strings.TrimSpace(c.Params("id"))
	if snippetID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "snippet id missing"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), catalogTimeout)
	defer cancel()

	snippet, err := catalog.NewService(database.GetDB()).Get(ctx, snippetID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "snippet not found"})
		}
		log.Printf("error loading snippet %s: %v", snippetID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not load snippet"})
	}

	if err := counter.AddSnippetView(snippetID); err != nil {
		log.Printf("failed to count view for snippet %s: %v", snippetID, err)
	}

	response := fiber.Map{"snippet": snippet}
	if email := strings.TrimSpace(c.Query("email")); email != "" {
		store := payments.NewStore(database.GetDB())
		if user, err := store.UserByEmail(ctx, email); err == nil {
			granted := false
			if user.IsActive() {
				if user.HasActiveSubscription() {
					granted = true
				} else if ok, err := store.HasAccess(ctx, user.ID, snippetID); err == nil && ok {
					granted = true
				}
			}
			if granted {
				response["code"] = snippet.Code
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("error resolving user %s: %v", email, err)
		}
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// HandleGetAccess is the entitlement read endpoint for the session provider:
// it returns the snippet ids a user may view plus their subscription status.
func HandleGetAccess(c *fiber.Ctx) error {
	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "email query parameter required"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), catalogTimeout)
	defer cancel()

	store := payments.NewStore(database.GetDB())
	user, err := store.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user not found"})
		}
		log.Printf("error resolving user %s: %v", email, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not resolve user"})
	}
	if !user.IsActive() {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "account disabled"})
	}

	snippetIDs, err := store.AccessSnippetIDs(ctx, user.ID)
	if err != nil {
		log.Printf("error listing access for user %d: %v", user.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not list access"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"snippet_ids":         snippetIDs,
		"subscription_status": user.SubscriptionStatus,
		"subscription_plan":   user.SubscriptionPlan,
	})
}

// HandleInvalidateCatalogCache drops the cached published-id list. Seeding
// tooling calls this after changing the catalog so activation grants see the
// new snippet set immediately instead of after the cache TTL.
func HandleInvalidateCatalogCache(c *fiber.Ctx) error {
	catalog.NewService(database.GetDB()).InvalidatePublished()
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"invalidated": true})
}

package controllers

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/liquidsnips/liquidsnips/internal/pkg/catalog"
	"github.com/liquidsnips/liquidsnips/internal/pkg/database"
	"github.com/liquidsnips/liquidsnips/internal/pkg/payments"
)

const checkoutTimeout = 20 * time.Second

type createCheckoutSessionRequest struct {
	SnippetID     string  `json:"snippetId" validate:"required,max=191"`
	Amount        float64 `json:"amount" validate:"gte=0"`
	Quantity      int64   `json:"quantity" validate:"gte=0,lte=10"`
	CustomerEmail string  `json:"customerEmail" validate:"omitempty,email"`
	SuccessURL    string  `json:"successUrl" validate:"omitempty,url"`
	CancelURL     string  `json:"cancelUrl" validate:"omitempty,url"`
}

type createSubscriptionSessionRequest struct {
	Plan          string `json:"plan" validate:"required"`
	CustomerEmail string `json:"customerEmail" validate:"omitempty,email"`
	SuccessURL    string `json:"successUrl" validate:"omitempty,url"`
	CancelURL     string `json:"cancelUrl" validate:"omitempty,url"`
}

type createPortalSessionRequest struct {
	CustomerID string `json:"customerId"`
	Email      string `json:"email" validate:"omitempty,email"`
	ReturnURL  string `json:"returnUrl" validate:"omitempty,url"`
}

func parseAndValidate(c *fiber.Ctx, req interface{}) error {
	if err := c.BodyParser(req); err != nil {
		return err
	}
	return validator.New().Struct(req)
}

// HandleCreateCheckoutSession begins a one-off snippet purchase session.
// When the snippet exists in the catalog its stored price and title win over
// the client-supplied amount.
func HandleCreateCheckoutSession(c *fiber.Ctx) error {
	var req createCheckoutSessionRequest
	if err := parseAndValidate(c, &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), checkoutTimeout)
	defer cancel()

	input := payments.SnippetSessionInput{
		SnippetID:     req.SnippetID,
		Amount:        req.Amount,
		Quantity:      req.Quantity,
		CustomerEmail: req.CustomerEmail,
		SuccessURL:    req.SuccessURL,
		CancelURL:     req.CancelURL,
	}
	if snippet, err := catalog.NewService(database.GetDB()).Get(ctx, req.SnippetID); err == nil {
		input.Title = snippet.Title
		input.Amount = snippet.Price
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("catalog lookup failed for snippet %s: %v", req.SnippetID, err)
	}

	result, err := payments.NewCheckoutFactoryFromEnv().CreateSnippetSession(ctx, input)
	if err != nil {
		log.Printf("create checkout session failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not create checkout session"})
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

// HandleCreateSubscriptionSession begins a subscription checkout. The plan
// key comes from the client; the Stripe price id never does.
func HandleCreateSubscriptionSession(c *fiber.Ctx) error {
	var req createSubscriptionSessionRequest
	if err := parseAndValidate(c, &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), checkoutTimeout)
	defer cancel()

	result, err := payments.NewCheckoutFactoryFromEnv().CreateSubscriptionSession(ctx, payments.SubscriptionSessionInput{
		Plan:          req.Plan,
		CustomerEmail: req.CustomerEmail,
		SuccessURL:    req.SuccessURL,
		CancelURL:     req.CancelURL,
	})
	if err != nil {
		if errors.Is(err, payments.ErrInvalidPlan) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid plan or price not configured"})
		}
		log.Printf("create subscription session failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not create subscription session"})
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

// HandleCreatePortalSession opens the Stripe billing portal. The customer id
// can be resolved from a known email when the client does not have it.
func HandleCreatePortalSession(c *fiber.Ctx) error {
	var req createPortalSessionRequest
	if err := parseAndValidate(c, &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), checkoutTimeout)
	defer cancel()

	customerID := req.CustomerID
	if customerID == "" && req.Email != "" {
		user, err := payments.NewStore(database.GetDB()).UserByEmail(ctx, req.Email)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				log.Printf("error finding user for portal session: %v", err)
			}
		} else {
			customerID = user.StripeCustomerID
		}
	}
	if customerID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "customerId or email required"})
	}

	url, err := payments.NewCheckoutFactoryFromEnv().CreatePortalSession(ctx, customerID, req.ReturnURL)
	if err != nil {
		log.Printf("create portal session failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not create portal session"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"url": url})
}

package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/liquidsnips/liquidsnips/app/controllers"
)

type HttpRouter struct {
}

// InstallRouter registers the payment-facing routes. The route names mirror
// what the storefront client calls.
func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Post("/create-checkout-session", controllers.HandleCreateCheckoutSession)
	app.Post("/create-subscription-session", controllers.HandleCreateSubscriptionSession)
	app.Post("/create-portal-session", controllers.HandleCreatePortalSession)

	// Stripe requires the raw request body for signature verification; the
	// handler reads c.BodyRaw() before anything touches the payload.
	app.Post("/webhook", controllers.HandleStripeWebhook)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}

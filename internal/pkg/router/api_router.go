package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/liquidsnips/liquidsnips/app/controllers"
	"github.com/liquidsnips/liquidsnips/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// v1 routes are server-to-server: the session provider reads catalog
	// and entitlement state with the internal API key.
	v1 := api.Group("/v1", middleware.InternalAPIKeyMiddleware())
	v1.Get("/snippets", controllers.HandleListSnippets)
	v1.Get("/snippets/:id", controllers.HandleGetSnippet)
	v1.Get("/access", controllers.HandleGetAccess)
	v1.Post("/catalog/invalidate", controllers.HandleInvalidateCatalogCache)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}

package admin

import (
	"git.solsynth.dev/hypernet/mideck/pkg/internal/services"
	"github.com/gofiber/fiber/v2"
)

type Services struct {
	Store    *services.Store
	Registry *services.Registry
}

func MapControllers(app *fiber.App, baseURL string, s *Services) {
	admin := app.Group(baseURL)
	{
		admin.Post("/resync", s.adminTriggerResync)
	}
}

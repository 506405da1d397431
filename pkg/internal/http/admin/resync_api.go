package admin

import (
	"github.com/gofiber/fiber/v2"
)

func (s *Services) adminTriggerResync(c *fiber.Ctx) error {
	servers, err := s.Store.GetServers()
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	timelines, err := s.Store.GetTimelines()
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(s.Registry.Sync(timelines, servers))
}

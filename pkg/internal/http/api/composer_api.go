package api

import (
	"git.solsynth.dev/hypernet/mideck/pkg/internal/http/exts"
	"git.solsynth.dev/hypernet/mideck/pkg/internal/services"
	"github.com/gofiber/fiber/v2"
)

func (s *Services) getDraft(c *fiber.Ctx) error {
	return c.JSON(s.Composer.Draft())
}

func (s *Services) updateDraft(c *fiber.Ctx) error {
	var draft services.Draft
	if err := c.BodyParser(&draft); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	s.Composer.SetDraft(draft)

	return c.JSON(s.Composer.Draft())
}

func (s *Services) pickServer(c *fiber.Ctx) error {
	server, ok := s.Composer.PickServer(c.Query("target"), c.Query("preferred"))
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "no signed in server is available")
	}

	return c.JSON(server)
}

func (s *Services) submitDraft(c *fiber.Ctx) error {
	var draft services.Draft
	if err := c.BodyParser(&draft); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	note, err := s.Composer.Submit(c.UserContext(), draft)
	if err != nil {
		return exts.ErrorStatus(err)
	}

	return c.JSON(note)
}

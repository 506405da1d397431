package api

import (
	"git.solsynth.dev/hypernet/mideck/pkg/internal/http/exts"
	"github.com/gofiber/fiber/v2"
)

func (s *Services) listUserLists(c *fiber.Ctx) error {
	lists, err := s.Interactions.UserLists(c.UserContext(), c.Params("serverId"))
	if err != nil {
		return exts.ErrorStatus(err)
	}

	return c.JSON(lists)
}

func (s *Services) getReactions(c *fiber.Ctx) error {
	summary, err := s.Interactions.Reactions(c.UserContext(), c.Params("serverId"), c.Params("noteId"))
	if err != nil {
		return exts.ErrorStatus(err)
	}

	return c.JSON(summary)
}

func (s *Services) addReaction(c *fiber.Ctx) error {
	var data struct {
		Reaction string `json:"reaction" validate:"required,max=128"`
		Toggle   bool   `json:"toggle"`
	}

	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}

	serverID, noteID := c.Params("serverId"), c.Params("noteId")
	if data.Toggle {
		summary, err := s.Interactions.ToggleReaction(c.UserContext(), serverID, noteID, data.Reaction)
		if err != nil {
			return exts.ErrorStatus(err)
		}
		return c.JSON(summary)
	}

	summary, err := s.Interactions.React(c.UserContext(), serverID, noteID, data.Reaction)
	if err != nil {
		return exts.ErrorStatus(err)
	}

	return c.JSON(summary)
}

func (s *Services) removeReaction(c *fiber.Ctx) error {
	summary, err := s.Interactions.Unreact(c.UserContext(), c.Params("serverId"), c.Params("noteId"))
	if err != nil {
		return exts.ErrorStatus(err)
	}

	return c.JSON(summary)
}

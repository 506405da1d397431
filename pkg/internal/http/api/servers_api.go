package api

import (
	"git.solsynth.dev/hypernet/mideck/pkg/internal/http/exts"
	"git.solsynth.dev/hypernet/mideck/pkg/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

func (s *Services) listServers(c *fiber.Ctx) error {
	servers, err := s.Store.GetServers()
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(servers)
}

func (s *Services) getServer(c *fiber.Ctx) error {
	server, err := s.Store.GetServer(c.Params("serverId"))
	if err != nil {
		return exts.ErrorStatus(err)
	}

	return c.JSON(server)
}

func (s *Services) getServerMeta(c *fiber.Ctx) error {
	server, err := s.Store.GetServer(c.Params("serverId"))
	if err != nil {
		return exts.ErrorStatus(err)
	}

	meta, err := s.Catalog.Meta(c.UserContext(), server.Origin)
	if err != nil {
		return exts.ErrorStatus(err)
	}

	return c.JSON(meta)
}

func (s *Services) listServerEmojis(c *fiber.Ctx) error {
	server, err := s.Store.GetServer(c.Params("serverId"))
	if err != nil {
		return exts.ErrorStatus(err)
	}

	emojis, err := s.Catalog.Emojis(c.UserContext(), server.Origin)
	if err != nil {
		return exts.ErrorStatus(err)
	}

	return c.JSON(emojis)
}

// signIn checks the token against the server and fills in the account it belongs to.
func (s *Services) signIn(c *fiber.Ctx, server *models.ServerConnection) error {
	if !server.HasToken() {
		return nil
	}
	user, err := s.Clients.ForServer(*server).I(c.UserContext())
	if err != nil {
		return err
	}
	server.UserID = user.ID
	server.Username = user.Username

	if meta, err := s.Catalog.Meta(c.UserContext(), server.Origin); err != nil {
		log.Warn().Err(err).Str("origin", server.Origin).Msg("Failed to load server meta, keeping the origin as name...")
	} else {
		server.ServerName = meta.Name
	}
	return nil
}

func (s *Services) addServer(c *fiber.Ctx) error {
	var data struct {
		Origin      string `json:"origin" validate:"required"`
		AccessToken string `json:"access_token"`
		IsActive    *bool  `json:"is_active"`
	}

	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}

	server := models.ServerConnection{
		Origin:      models.NormalizeOrigin(data.Origin),
		AccessToken: data.AccessToken,
		IsActive:    data.IsActive == nil || *data.IsActive,
	}
	if err := s.signIn(c, &server); err != nil {
		return exts.ErrorStatus(err)
	}

	server, err := s.Store.AddServer(server)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	return c.JSON(server)
}

func (s *Services) updateServer(c *fiber.Ctx) error {
	var data struct {
		AccessToken *string `json:"access_token"`
		IsActive    *bool   `json:"is_active"`
	}

	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}

	server, err := s.Store.GetServer(c.Params("serverId"))
	if err != nil {
		return exts.ErrorStatus(err)
	}

	if data.AccessToken != nil && *data.AccessToken != server.AccessToken {
		server.AccessToken = *data.AccessToken
		if err := s.signIn(c, &server); err != nil {
			return exts.ErrorStatus(err)
		}
	}
	if data.IsActive != nil {
		server.IsActive = *data.IsActive
	}

	if server, err = s.Store.UpdateServer(server); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	s.Catalog.Invalidate(c.UserContext(), server.Origin)

	return c.JSON(server)
}

func (s *Services) deleteServer(c *fiber.Ctx) error {
	server, err := s.Store.GetServer(c.Params("serverId"))
	if err != nil {
		return exts.ErrorStatus(err)
	}

	if err := s.Store.DeleteServer(server.ID); err != nil {
		return exts.ErrorStatus(err)
	}
	s.Catalog.Invalidate(c.UserContext(), server.Origin)

	return c.JSON(server)
}

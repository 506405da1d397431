package api

import (
	"context"
	"time"

	"git.solsynth.dev/hypernet/mideck/pkg/internal/http/exts"
	"git.solsynth.dev/hypernet/mideck/pkg/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

const emojiWaitTimeout = 10 * time.Second

type emojiResponse struct {
	Name  string  `json:"name"`
	Host  string  `json:"host"`
	State string  `json:"state"`
	URL   *string `json:"url"`
}

func (s *Services) resolveEmoji(c *fiber.Ctx) error {
	host, name := utils.CopyString(c.Params("host")), utils.CopyString(c.Params("name"))

	if !c.QueryBool("wait") {
		result := s.Emojis.Peek(name, host, nil)
		status := fiber.StatusOK
		if result.State == services.EmojiPending {
			status = fiber.StatusAccepted
		}
		return c.Status(status).JSON(emojiResponse{Name: name, Host: host, State: result.State.String(), URL: result.URL})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), emojiWaitTimeout)
	defer cancel()
	url, err := s.Emojis.Resolve(ctx, name, host, nil)
	if err != nil {
		return exts.ErrorStatus(err)
	}

	state := services.EmojiResolved
	if url == nil {
		state = services.EmojiMissing
	}
	return c.JSON(emojiResponse{Name: name, Host: host, State: state.String(), URL: url})
}

func (s *Services) resolveEmojis(c *fiber.Ctx) error {
	var data struct {
		Names []string          `json:"names" validate:"required,max=256"`
		Local map[string]string `json:"local"`
	}

	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), emojiWaitTimeout)
	defer cancel()
	urls, err := s.Emojis.ResolveAll(ctx, utils.CopyString(c.Params("host")), data.Names, data.Local)
	if err != nil {
		return exts.ErrorStatus(err)
	}

	return c.JSON(urls)
}

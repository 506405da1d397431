package api

import (
	"git.solsynth.dev/hypernet/mideck/pkg/internal/http/exts"
	"git.solsynth.dev/hypernet/mideck/pkg/internal/models"
	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"
)

type timelineRequest struct {
	Name      string                  `json:"name" validate:"max=64"`
	ServerID  string                  `json:"server_id" validate:"required"`
	Type      string                  `json:"type" validate:"required,oneof=home local social global list user channel"`
	IsVisible *bool                   `json:"is_visible"`
	Settings  models.TimelineSettings `json:"settings"`
}

func (s *Services) listTimelines(c *fiber.Ctx) error {
	timelines, err := s.Store.GetTimelines()
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(timelines)
}

func (s *Services) addTimeline(c *fiber.Ctx) error {
	var data timelineRequest
	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}

	timeline, err := s.Store.AddTimeline(models.TimelineConfig{
		Name:      data.Name,
		ServerID:  data.ServerID,
		Type:      data.Type,
		IsVisible: data.IsVisible == nil || *data.IsVisible,
		Settings:  datatypes.NewJSONType(data.Settings),
	})
	if err != nil {
		return exts.ErrorStatus(err)
	}

	return c.JSON(timeline)
}

func (s *Services) updateTimeline(c *fiber.Ctx) error {
	var data timelineRequest
	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}

	timeline, err := s.Store.GetTimeline(c.Params("timelineId"))
	if err != nil {
		return exts.ErrorStatus(err)
	}

	timeline.Name = data.Name
	timeline.ServerID = data.ServerID
	timeline.Type = data.Type
	timeline.Settings = datatypes.NewJSONType(data.Settings)
	if data.IsVisible != nil {
		timeline.IsVisible = *data.IsVisible
	}

	if timeline, err = s.Store.UpdateTimeline(timeline); err != nil {
		return exts.ErrorStatus(err)
	}

	return c.JSON(timeline)
}

func (s *Services) deleteTimeline(c *fiber.Ctx) error {
	if err := s.Store.DeleteTimeline(c.Params("timelineId")); err != nil {
		return exts.ErrorStatus(err)
	}

	return c.SendStatus(fiber.StatusOK)
}

func (s *Services) reorderTimelines(c *fiber.Ctx) error {
	var data struct {
		IDs []string `json:"ids" validate:"required"`
	}

	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}

	if err := s.Store.ReorderTimelines(data.IDs); err != nil {
		return exts.ErrorStatus(err)
	}

	timelines, err := s.Store.GetTimelines()
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(timelines)
}

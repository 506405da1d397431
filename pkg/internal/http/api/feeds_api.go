package api

import (
	"git.solsynth.dev/hypernet/mideck/pkg/internal/http/exts"
	"git.solsynth.dev/hypernet/mideck/pkg/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"
)

func (s *Services) lookupFeed(c *fiber.Ctx) (*services.Feed, error) {
	feed, ok := s.Registry.Feed(c.Params("timelineId"))
	if !ok {
		return nil, fiber.NewError(fiber.StatusNotFound, "timeline has no running feed")
	}
	return feed, nil
}

func (s *Services) listFeeds(c *fiber.Ctx) error {
	return c.JSON(lo.Map(s.Registry.Feeds(), func(item *services.Feed, _ int) services.FeedSnapshot {
		return item.Snapshot()
	}))
}

func (s *Services) getFeed(c *fiber.Ctx) error {
	feed, err := s.lookupFeed(c)
	if err != nil {
		return err
	}

	return c.JSON(feed.Snapshot())
}

func (s *Services) loadMoreFeed(c *fiber.Ctx) error {
	feed, err := s.lookupFeed(c)
	if err != nil {
		return err
	}

	feed.LoadMore(c.UserContext())

	return c.JSON(feed.Snapshot())
}

func (s *Services) refreshFeed(c *fiber.Ctx) error {
	feed, err := s.lookupFeed(c)
	if err != nil {
		return err
	}

	feed.Refresh(c.UserContext())

	return c.JSON(feed.Snapshot())
}

func (s *Services) reconnectFeed(c *fiber.Ctx) error {
	feed, err := s.lookupFeed(c)
	if err != nil {
		return err
	}

	if err := feed.Reconnect(c.UserContext()); err != nil {
		return exts.ErrorStatus(err)
	}

	return c.JSON(feed.Snapshot())
}

package api

import (
	"git.solsynth.dev/hypernet/mideck/pkg/internal/services"
	"github.com/gofiber/fiber/v2"
)

// Services is everything the handlers reach into.
type Services struct {
	Store    *services.Store
	Clients  *services.ClientPool
	Registry *services.Registry
	Emojis   *services.EmojiCache
	Composer *services.Composer
	Catalog  *services.ServerCatalog

	Interactions *services.Interactions
}

func MapAPIs(app *fiber.App, baseURL string, s *Services) {
	api := app.Group(baseURL)
	{
		servers := api.Group("/servers")
		{
			servers.Get("/", s.listServers)
			servers.Get("/:serverId", s.getServer)
			servers.Get("/:serverId/meta", s.getServerMeta)
			servers.Get("/:serverId/emojis", s.listServerEmojis)
			servers.Get("/:serverId/lists", s.listUserLists)
			servers.Get("/:serverId/notes/:noteId/reactions", s.getReactions)
			servers.Post("/:serverId/notes/:noteId/reactions", s.addReaction)
			servers.Delete("/:serverId/notes/:noteId/reactions", s.removeReaction)
			servers.Post("/", s.addServer)
			servers.Put("/:serverId", s.updateServer)
			servers.Delete("/:serverId", s.deleteServer)
		}

		timelines := api.Group("/timelines")
		{
			timelines.Get("/", s.listTimelines)
			timelines.Post("/", s.addTimeline)
			timelines.Post("/order", s.reorderTimelines)
			timelines.Put("/:timelineId", s.updateTimeline)
			timelines.Delete("/:timelineId", s.deleteTimeline)

			timelines.Get("/:timelineId/feed", s.getFeed)
			timelines.Post("/:timelineId/more", s.loadMoreFeed)
			timelines.Post("/:timelineId/refresh", s.refreshFeed)
			timelines.Post("/:timelineId/reconnect", s.reconnectFeed)
		}

		api.Get("/feeds", s.listFeeds)

		emojis := api.Group("/emojis")
		{
			emojis.Get("/:host/:name", s.resolveEmoji)
			emojis.Post("/:host", s.resolveEmojis)
		}

		composer := api.Group("/composer")
		{
			composer.Get("/", s.getDraft)
			composer.Put("/", s.updateDraft)
			composer.Get("/server", s.pickServer)
			composer.Post("/submit", s.submitDraft)
		}
	}
}

package http

import (
	"git.solsynth.dev/hypernet/mideck/pkg/internal/http/admin"
	"git.solsynth.dev/hypernet/mideck/pkg/internal/http/api"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

type App struct {
	app *fiber.App
}

func NewServer(services *api.Services) *App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		Immutable:             true,
		EnableIPValidation:    true,
		ServerHeader:          "Hypernet.Mideck",
		AppName:               "Hypernet.Mideck",
		JSONEncoder:           jsoniter.ConfigCompatibleWithStandardLibrary.Marshal,
		JSONDecoder:           jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal,
		BodyLimit:             50 * 1024 * 1024,
		EnablePrintRoutes:     viper.GetBool("debug.print_routes"),
	})

	// The deck UI runs on another local origin.
	app.Use(cors.New(cors.Config{
		AllowOrigins: lo.Ternary(viper.IsSet("cors.allow_origins"), viper.GetString("cors.allow_origins"), "*"),
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	app.Use(logger.New(logger.Config{
		Format: "${status} | ${latency} | ${method} ${path}\n",
		Output: log.Logger,
	}))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	api.MapAPIs(app, "/api", services)
	admin.MapControllers(app, "/api/admin", &admin.Services{
		Store:    services.Store,
		Registry: services.Registry,
	})

	return &App{app}
}

func (v *App) Listen() {
	if err := v.app.Listen(viper.GetString("bind")); err != nil {
		log.Fatal().Err(err).Msg("An error occurred when starting server...")
	}
}

func (v *App) Shutdown() error {
	return v.app.Shutdown()
}

// Fiber exposes the underlying app, mainly for tests.
func (v *App) Fiber() *fiber.App {
	return v.app
}

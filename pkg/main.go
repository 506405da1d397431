package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	pkg "git.solsynth.dev/hypernet/mideck/pkg/internal"
	"git.solsynth.dev/hypernet/mideck/pkg/internal/cache"
	"git.solsynth.dev/hypernet/mideck/pkg/internal/database"
	"git.solsynth.dev/hypernet/mideck/pkg/internal/http"
	"git.solsynth.dev/hypernet/mideck/pkg/internal/http/api"
	"git.solsynth.dev/hypernet/mideck/pkg/internal/models"
	"git.solsynth.dev/hypernet/mideck/pkg/internal/services"
	"github.com/fatih/color"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
}

func main() {
	// Booting screen
	fmt.Println(color.YellowString(" __  __ _     _           _\n|  \\/  (_) __| | ___  ___| | __\n| |\\/| | |/ _` |/ _ \\/ __| |/ /\n| |  | | | (_| |  __/ (__|   <\n|_|  |_|_|\\__,_|\\___|\\___|_|\\_\\"))
	fmt.Printf("%s v%s\n", color.New(color.FgHiYellow).Add(color.Bold).Sprintf("Hypernet.Mideck"), pkg.AppVersion)
	fmt.Printf("The multi-server Misskey deck in Hypernet\n")
	color.HiBlack("=====================================================\n")

	// Configure settings
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.SetConfigName("settings")
	viper.SetConfigType("toml")

	// Load settings
	if err := viper.ReadInConfig(); err != nil {
		log.Panic().Err(err).Msg("An error occurred when loading settings.")
	}

	// Debugging
	if viper.GetBool("debug.enabled") {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// Connect to database
	if err := database.NewGorm(); err != nil {
		log.Fatal().Err(err).Msg("An error occurred when connect to database.")
	} else if err := database.RunMigration(database.C); err != nil {
		log.Fatal().Err(err).Msg("An error occurred when running database auto migration.")
	}

	// Initialize cache
	if err := cache.NewStore(); err != nil {
		log.Fatal().Err(err).Msg("An error occurred when initializing cache.")
	}

	// Wire services
	store := services.NewStore(database.C)
	clients := services.NewClientPool(services.ClientOptions()...)

	emojis := services.NewEmojiCache(func(host string) services.EmojiSource {
		return clients.Anonymous(host)
	})
	if viper.GetBool("emoji.persist") {
		emojis.WithPersister(store)
		if entries, err := store.LoadEmojis(); err != nil {
			log.Error().Err(err).Msg("An error occurred when loading emoji cache.")
		} else {
			emojis.Load(entries)
			log.Info().Int("count", len(entries)).Msg("Loaded persisted emoji cache.")
		}
	}

	catalog := services.NewServerCatalog(cache.S, viper.GetDuration("cache.catalog_ttl"), func(origin string) services.CatalogSource {
		return clients.Anonymous(origin)
	})
	composer := services.NewComposer(store, func(server models.ServerConnection) services.NoteWriter {
		return clients.ForServer(server)
	})
	interactions := services.NewInteractions(store, func(server models.ServerConnection) services.InteractionClient {
		return clients.ForServer(server)
	})

	registry := services.NewRegistry(clients.FeedSource)
	ctx, cancel := context.WithCancel(context.Background())
	go registry.Run(ctx, store)

	// Configure timed tasks
	resyncInterval := viper.GetString("timelines.resync_interval")
	if len(resyncInterval) == 0 {
		resyncInterval = "@every 1m"
	}
	quartz := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(&log.Logger)))
	if _, err := quartz.AddFunc(resyncInterval, func() {
		if err := registry.Resync(store); err != nil {
			log.Error().Err(err).Msg("An error occurred when resyncing timelines...")
		}
	}); err != nil {
		log.Fatal().Err(err).Msg("An error occurred when scheduling timeline resync.")
	}
	quartz.Start()

	// Server
	server := http.NewServer(&api.Services{
		Store:    store,
		Clients:  clients,
		Registry: registry,
		Emojis:   emojis,
		Composer: composer,
		Catalog:  catalog,

		Interactions: interactions,
	})
	go server.Listen()

	// Messages
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	quartz.Stop()
	cancel()
	registry.Close()
	if err := server.Shutdown(); err != nil {
		log.Error().Err(err).Msg("An error occurred when shutting down server...")
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/spf13/cobra"

	"github.com/sonroyaalmerol/kumavoice/internal/autocomplete"
	"github.com/sonroyaalmerol/kumavoice/internal/config"
	"github.com/sonroyaalmerol/kumavoice/internal/handlers"
	"github.com/sonroyaalmerol/kumavoice/internal/logging"
	"github.com/sonroyaalmerol/kumavoice/internal/player"
	"github.com/sonroyaalmerol/kumavoice/internal/repository"
	"github.com/sonroyaalmerol/kumavoice/internal/resolver"
	"github.com/sonroyaalmerol/kumavoice/internal/session"
	"github.com/sonroyaalmerol/kumavoice/internal/spotify"
	"github.com/sonroyaalmerol/kumavoice/internal/ui"
)

var (
	envFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:          "kumavoice",
	Short:        "Discord voice playback bot",
	Long:         `kumavoice joins voice channels and streams audio resolved from searches and links.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		return run(ctx)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before the environment")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	log := logging.Setup(debug)

	cfg, err := config.LoadConfig(envFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Debug && !debug {
		log = logging.Setup(true)
	}

	db, err := repository.OpenDB(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	repo := repository.NewRepo(db)
	defer repo.Close()
	log.Info("database ready", "component", "database", "path", cfg.DatabasePath())

	resolver.Install(ctx)

	var sp *spotify.Client
	if cfg.SpotifyEnabled() {
		sp = spotify.NewClientCredentials(ctx, cfg.SpotifyClientID, cfg.SpotifyClientSecret)
	}

	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return err
	}

	embeds := ui.Embeds{Color: int(cfg.EmbedColor)}
	connector := player.NewConnector(dg, cfg.OpusBitrate, log)
	manager := session.NewManager(session.Options{
		Connect: func(ctx context.Context, guildID, channelID string) (session.Conn, error) {
			c, err := connector.Connect(ctx, guildID, channelID)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		Resolver: resolver.New(resolver.Options{
			Cookies: cfg.YtdlCookies,
			Proxy:   cfg.YoutubeProxy,
			Timeout: cfg.ResolveTimeout,
			Rate:    cfg.ResolveRate,
			Burst:   cfg.ResolveBurst,
			Spotify: sp,
			Logger:  log,
		}),
		Presence:    handlers.NewPresence(dg.State),
		Notifier:    handlers.NewNotifier(dg, embeds, log),
		GracePeriod: cfg.IdleTimeout,
		Logger:      log,
	})

	cmd := handlers.NewCommandHandler(
		cfg,
		manager,
		repository.NewFavoritesService(repo),
		autocomplete.New(sp, log),
		embeds,
		log,
	)
	bot := handlers.NewBot(cfg, dg, manager, cmd, log)

	return bot.Run(ctx)
}

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/sonroyaalmerol/kumavoice/internal/autocomplete"
	"github.com/sonroyaalmerol/kumavoice/internal/config"
	"github.com/sonroyaalmerol/kumavoice/internal/repository"
	"github.com/sonroyaalmerol/kumavoice/internal/session"
	"github.com/sonroyaalmerol/kumavoice/internal/ui"
)

const (
	commandTimeout      = 90 * time.Second
	autocompleteTimeout = 2500 * time.Millisecond
)

type CommandHandler struct {
	cfg     *config.Config
	manager *session.Manager
	favs    *repository.FavoritesService
	suggest *autocomplete.Suggester
	embeds  ui.Embeds
	log     *slog.Logger

	base context.Context
}

func NewCommandHandler(
	cfg *config.Config,
	manager *session.Manager,
	favs *repository.FavoritesService,
	suggest *autocomplete.Suggester,
	embeds ui.Embeds,
	log *slog.Logger,
) *CommandHandler {
	if log == nil {
		log = slog.Default()
	}
	return &CommandHandler{
		cfg:     cfg,
		manager: manager,
		favs:    favs,
		suggest: suggest,
		embeds:  embeds,
		log:     log.With("component", "bot"),
		base:    context.Background(),
	}
}

func queryOption(desc string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Name:         "query",
		Description:  desc,
		Type:         discordgo.ApplicationCommandOptionString,
		Required:     true,
		Autocomplete: true,
	}
}

func favoriteNameOption(complete bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Name:         "name",
		Description:  "favorite name",
		Type:         discordgo.ApplicationCommandOptionString,
		Required:     true,
		Autocomplete: complete,
	}
}

func commandDefinitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{Name: "summon", Description: "Bring the bot into your voice channel"},
		{
			Name:        "queue",
			Description: "Add a track to the end of the queue",
			Options:     []*discordgo.ApplicationCommandOption{queryOption("search text, YouTube or Spotify link")},
		},
		{
			Name:        "play",
			Description: "Play a track right now",
			Options:     []*discordgo.ApplicationCommandOption{queryOption("search text, YouTube or Spotify link")},
		},
		{Name: "skip", Description: "Skip the current track"},
		{Name: "leave", Description: "Disconnect and clear the queue"},
		{Name: "now-playing", Description: "Show the current track and queue"},
		{
			Name:        "favorites",
			Description: "Manage saved queries",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "use",
					Description: "queue a favorite",
					Options:     []*discordgo.ApplicationCommandOption{favoriteNameOption(true)},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "list",
					Description: "list favorites",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "create",
					Description: "save a query as a favorite",
					Options: []*discordgo.ApplicationCommandOption{
						favoriteNameOption(false),
						{Name: "query", Description: "query", Type: discordgo.ApplicationCommandOptionString, Required: true},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "remove",
					Description: "remove one of your favorites",
					Options:     []*discordgo.ApplicationCommandOption{favoriteNameOption(true)},
				},
			},
		},
	}
}

// RegisterCommands overwrites the command set for guildID, or globally when
// guildID is empty.
func (h *CommandHandler) RegisterCommands(s *discordgo.Session, appID, guildID string) error {
	start := time.Now()
	created, err := s.ApplicationCommandBulkOverwrite(appID, guildID, commandDefinitions())
	if err != nil {
		return err
	}
	h.log.Info("registered commands", "guildID", guildID, "count", len(created), "took", time.Since(start))
	return nil
}

func (h *CommandHandler) HandleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		h.log.Debug("interaction: application command", "guildID", i.GuildID, "userID", userIDOf(i), "command", i.ApplicationCommandData().Name)
		h.handleChatCommand(s, i)
	case discordgo.InteractionApplicationCommandAutocomplete:
		h.handleAutocomplete(s, i)
	default:
		h.log.Debug("interaction: ignored type", "type", i.Type, "guildID", i.GuildID)
	}
}

func (h *CommandHandler) handleChatCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" || userIDOf(i) == "" {
		h.reply(s, i, h.embeds.Info("❌ Commands only work inside a server", ""), true)
		return
	}

	ctx, cancel := context.WithTimeout(h.base, commandTimeout)
	defer cancel()

	switch name := i.ApplicationCommandData().Name; name {
	case "summon":
		h.cmdSummon(ctx, s, i)
	case "queue":
		h.cmdQueue(ctx, s, i)
	case "play":
		h.cmdPlay(ctx, s, i)
	case "skip":
		h.cmdSkip(ctx, s, i)
	case "leave":
		h.cmdLeave(ctx, s, i)
	case "now-playing":
		h.cmdNowPlaying(s, i)
	case "favorites":
		h.cmdFavorites(ctx, s, i)
	default:
		h.log.Debug("unknown command", "name", name, "guildID", i.GuildID, "userID", userIDOf(i))
	}
}

func (h *CommandHandler) handleAutocomplete(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	opts := data.Options
	if data.Name == "favorites" && len(opts) > 0 {
		opts = opts[0].Options
	}
	focused := focusedOption(opts)
	if focused == nil {
		return
	}

	ctx, cancel := context.WithTimeout(h.base, autocompleteTimeout)
	defer cancel()

	choices := []*discordgo.ApplicationCommandOptionChoice{}
	switch {
	case focused.Name == "query" && (data.Name == "play" || data.Name == "queue"):
		if c := h.suggest.Choices(ctx, focused.StringValue(), 10); c != nil {
			choices = c
		}
	case focused.Name == "name" && data.Name == "favorites":
		names, err := h.favs.Suggest(ctx, i.GuildID, focused.StringValue())
		if err != nil {
			h.log.Warn("favorite suggestions failed", "guildID", i.GuildID, "err", err)
		}
		choices = autocomplete.Static(names)
	}

	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	}); err != nil {
		h.log.Debug("autocomplete respond failed", "guildID", i.GuildID, "err", err)
	}
}

func (h *CommandHandler) cmdSummon(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	// joining voice can outlast the interaction deadline
	h.deferReply(s, i, true)

	res, channelID, err := h.manager.Summon(ctx, i.GuildID, userIDOf(i), i.ChannelID)
	if err != nil {
		h.editError(s, i, "summon", err)
		return
	}
	h.editReply(s, i, h.embeds.Joined(res, channelID))
}

func (h *CommandHandler) cmdQueue(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	query := optionString(i.ApplicationCommandData().Options, "query")
	h.deferReply(s, i, false)
	h.enqueue(ctx, s, i, query)
}

func (h *CommandHandler) enqueue(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, query string) {
	t, pos, err := h.manager.Enqueue(ctx, i.GuildID, query, userIDOf(i), i.ChannelID)
	if err != nil {
		h.editError(s, i, "queue", err)
		return
	}
	h.editReply(s, i, h.embeds.Queued(t, pos))
}

func (h *CommandHandler) cmdPlay(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	query := optionString(i.ApplicationCommandData().Options, "query")
	h.deferReply(s, i, false)

	t, err := h.manager.Play(ctx, i.GuildID, query, userIDOf(i), i.ChannelID)
	if err != nil {
		h.editError(s, i, "play", err)
		return
	}
	h.editReply(s, i, h.embeds.NowPlaying(t))
}

func (h *CommandHandler) cmdSkip(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	// stopping the player waits for the sender to exit
	h.deferReply(s, i, false)

	t, err := h.manager.Skip(ctx, i.GuildID)
	if err != nil {
		h.editError(s, i, "skip", err)
		return
	}
	h.editReply(s, i, h.embeds.Skipped(t))
}

func (h *CommandHandler) cmdLeave(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	h.deferReply(s, i, false)

	channelID, err := h.manager.Leave(ctx, i.GuildID)
	if err != nil {
		h.editError(s, i, "leave", err)
		return
	}
	h.editReply(s, i, h.embeds.Left(channelID))
}

func (h *CommandHandler) cmdNowPlaying(s *discordgo.Session, i *discordgo.InteractionCreate) {
	snap, err := h.manager.NowPlaying(i.GuildID)
	if err != nil {
		h.replyError(s, i, "now-playing", err)
		return
	}
	h.reply(s, i, h.embeds.Status(snap), true)
}

func (h *CommandHandler) cmdFavorites(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := i.ApplicationCommandData().Options
	if len(opts) == 0 {
		return
	}
	sub := opts[0]
	name := optionString(sub.Options, "name")
	userID := userIDOf(i)

	switch sub.Name {
	case "create":
		query := optionString(sub.Options, "query")
		if err := h.favs.Create(ctx, i.GuildID, userID, name, query); err != nil {
			h.replyError(s, i, "favorites create", err)
			return
		}
		h.log.Info("favorite created", "guildID", i.GuildID, "userID", userID, "name", name)
		h.reply(s, i, h.embeds.Info("👍 Favorite created", name), false)
	case "remove":
		if err := h.favs.Remove(ctx, i.GuildID, userID, name); err != nil {
			h.replyError(s, i, "favorites remove", err)
			return
		}
		h.log.Info("favorite removed", "guildID", i.GuildID, "userID", userID, "name", name)
		h.reply(s, i, h.embeds.Info("👍 Favorite removed", name), false)
	case "list":
		items, err := h.favs.List(ctx, i.GuildID)
		if err != nil {
			h.replyError(s, i, "favorites list", err)
			return
		}
		h.reply(s, i, h.embeds.Favorites(items), true)
	case "use":
		h.deferReply(s, i, false)
		f, err := h.favs.Use(ctx, i.GuildID, name)
		if err != nil {
			h.editError(s, i, "favorites use", err)
			return
		}
		h.log.Info("favorite used", "guildID", i.GuildID, "userID", userID, "name", f.Name)
		h.enqueue(ctx, s, i, f.Query)
	}
}

func (h *CommandHandler) logFailure(i *discordgo.InteractionCreate, command string, err error) {
	if isUserFacing(err) {
		h.log.Debug("command rejected", "command", command, "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
		return
	}
	h.log.Warn("command failed", "command", command, "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
}

func isUserFacing(err error) bool {
	return session.IsUserError(err) ||
		errors.Is(err, repository.ErrFavoriteExists) ||
		errors.Is(err, repository.ErrFavoriteNotFound) ||
		errors.Is(err, repository.ErrNotOwner) ||
		errors.Is(err, repository.ErrInvalidFavorite)
}

func (h *CommandHandler) replyError(s *discordgo.Session, i *discordgo.InteractionCreate, command string, err error) {
	h.logFailure(i, command, err)
	h.reply(s, i, h.embeds.Error(err), true)
}

func (h *CommandHandler) editError(s *discordgo.Session, i *discordgo.InteractionCreate, command string, err error) {
	h.logFailure(i, command, err)
	h.editReply(s, i, h.embeds.Error(err))
}

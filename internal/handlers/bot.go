package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/sonroyaalmerol/kumavoice/internal/config"
	"github.com/sonroyaalmerol/kumavoice/internal/session"
)

const shutdownTimeout = 10 * time.Second

type Bot struct {
	cfg     *config.Config
	dg      *discordgo.Session
	manager *session.Manager
	cmd     *CommandHandler
	log     *slog.Logger
}

func NewBot(cfg *config.Config, dg *discordgo.Session, manager *session.Manager, cmd *CommandHandler, log *slog.Logger) *Bot {
	if log == nil {
		log = slog.Default()
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
	return &Bot{cfg: cfg, dg: dg, manager: manager, cmd: cmd, log: log.With("component", "bot")}
}

// Run connects to the gateway and blocks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.cmd.base = ctx

	b.dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		b.log.Info("connected", "user", s.State.User.Username, "guilds", len(r.Guilds))
		if b.cfg.BotActivity != "" {
			if err := s.UpdateListeningStatus(b.cfg.BotActivity); err != nil {
				b.log.Warn("set activity failed", "err", err)
			}
		}

		appID := s.State.User.ID
		if err := b.cmd.RegisterCommands(s, appID, b.cfg.DebugGuildID); err != nil {
			b.log.Error("register commands", "guildID", b.cfg.DebugGuildID, "err", err)
			return
		}
		if b.cfg.DebugGuildID != "" {
			// drop stale global commands so they don't show twice
			if _, err := s.ApplicationCommandBulkOverwrite(appID, "", []*discordgo.ApplicationCommand{}); err != nil {
				b.log.Error("clear global commands", "err", err)
			}
		}
	})

	b.dg.AddHandler(b.cmd.HandleInteraction)
	b.dg.AddHandler(b.onVoiceStateUpdate)

	if err := b.dg.Open(); err != nil {
		return err
	}
	defer b.dg.Close()

	<-ctx.Done()

	// leave voice while the gateway is still up
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	b.manager.Shutdown(shutdownCtx)
	b.log.Info("shut down")
	return nil
}

func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	if vs.VoiceState == nil {
		return
	}
	ev := presenceEvent(s.State, vs)
	b.manager.OnVoicePresenceChange(vs.GuildID, vs.UserID, ev.isBot, ev.before, ev.after)
}

type voiceEvent struct {
	isBot         bool
	before, after string
}

func presenceEvent(state *discordgo.State, vs *discordgo.VoiceStateUpdate) voiceEvent {
	ev := voiceEvent{after: vs.ChannelID}
	if vs.BeforeUpdate != nil {
		ev.before = vs.BeforeUpdate.ChannelID
	}
	switch {
	case vs.Member != nil && vs.Member.User != nil:
		ev.isBot = vs.Member.User.Bot
	case state != nil:
		if m, err := state.Member(vs.GuildID, vs.UserID); err == nil && m.User != nil {
			ev.isBot = m.User.Bot
		}
	}
	if state != nil && state.User != nil && vs.UserID == state.User.ID {
		ev.isBot = true
	}
	return ev
}

package handlers

import (
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/sonroyaalmerol/kumavoice/internal/track"
	"github.com/sonroyaalmerol/kumavoice/internal/ui"
)

// ChannelNotifier posts session announcements to the guild's status channel.
type ChannelNotifier struct {
	dg     *discordgo.Session
	embeds ui.Embeds
	log    *slog.Logger
}

func NewNotifier(dg *discordgo.Session, embeds ui.Embeds, log *slog.Logger) *ChannelNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &ChannelNotifier{dg: dg, embeds: embeds, log: log.With("component", "bot")}
}

func (n *ChannelNotifier) NowPlaying(channelID string, t track.Request) {
	n.send(channelID, n.embeds.NowPlaying(t))
}

func (n *ChannelNotifier) LeftIdle(channelID string) {
	n.send(channelID, n.embeds.LeftIdle())
}

func (n *ChannelNotifier) send(channelID string, embed *discordgo.MessageEmbed) {
	if channelID == "" {
		return
	}
	if _, err := n.dg.ChannelMessageSendEmbed(channelID, embed); err != nil {
		n.log.Warn("status message failed", "channelID", channelID, "title", embed.Title, "err", err)
	}
}

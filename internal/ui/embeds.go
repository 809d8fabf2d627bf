package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/sonroyaalmerol/kumavoice/internal/repository"
	"github.com/sonroyaalmerol/kumavoice/internal/session"
	"github.com/sonroyaalmerol/kumavoice/internal/track"
	"github.com/sonroyaalmerol/kumavoice/internal/utils"
)

const (
	errorColor = 0x992222
	maxQueued  = 10
)

// Embeds renders bot replies in the configured accent color.
type Embeds struct {
	Color int
}

func trackLink(t track.Request) string {
	title := utils.EscapeMd(t.DisplayTitle())
	if t.WebpageURL == "" {
		return "**" + title + "**"
	}
	return fmt.Sprintf("[%s](%s)", title, t.WebpageURL)
}

func duration(t track.Request) string {
	if t.Duration <= 0 {
		return "live"
	}
	return utils.PrettyTime(t.Duration)
}

func (e Embeds) trackEmbed(title string, t track.Request) *discordgo.MessageEmbed {
	desc := trackLink(t)
	if t.RequestedBy != "" {
		desc += fmt.Sprintf("\nRequested by <@%s>", t.RequestedBy)
	}
	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: desc,
		Color:       e.Color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Duration", Value: duration(t), Inline: true},
		},
	}
	if t.Thumbnail != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: t.Thumbnail}
	}
	return embed
}

func (e Embeds) NowPlaying(t track.Request) *discordgo.MessageEmbed {
	return e.trackEmbed("🎵 Now Playing", t)
}

func (e Embeds) Queued(t track.Request, position int) *discordgo.MessageEmbed {
	embed := e.trackEmbed("➡️ Queued Track", t)
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name: "Position", Value: fmt.Sprint(position), Inline: true,
	})
	return embed
}

func (e Embeds) Skipped(t track.Request) *discordgo.MessageEmbed {
	return e.Info("⏭️ Track skipped", trackLink(t))
}

// Status shows the current track and what is queued behind it.
func (e Embeds) Status(snap session.Snapshot) *discordgo.MessageEmbed {
	if snap.Current == nil {
		return e.Error(session.ErrNothingPlaying)
	}
	embed := e.NowPlaying(*snap.Current)
	if len(snap.Queued) == 0 {
		return embed
	}

	var b strings.Builder
	var total time.Duration
	for i, t := range snap.Queued {
		total += t.Duration
		if i >= maxQueued {
			continue
		}
		fmt.Fprintf(&b, "`%d.` %s `[ %s ]`\n", i+1, trackLink(t), duration(t))
	}
	if extra := len(snap.Queued) - maxQueued; extra > 0 {
		fmt.Fprintf(&b, "…and %d more\n", extra)
	}
	embed.Description += "\n\n**Up next:**\n" + b.String()
	embed.Fields = append(embed.Fields,
		&discordgo.MessageEmbedField{Name: "In queue", Value: plural(len(snap.Queued), "track"), Inline: true},
		&discordgo.MessageEmbedField{Name: "Total length", Value: utils.PrettyTime(total), Inline: true},
	)
	return embed
}

func (e Embeds) Joined(res session.SummonResult, channelID string) *discordgo.MessageEmbed {
	switch res {
	case session.SummonAlreadyHere:
		return e.Info("✅ I'm already in your voice channel.", "")
	case session.SummonMoved:
		return e.Info("🔄 Moved to", fmt.Sprintf("<#%s>", channelID))
	default:
		return e.Info("🔊 Joined", fmt.Sprintf("<#%s>", channelID))
	}
}

func (e Embeds) Left(channelID string) *discordgo.MessageEmbed {
	return e.Info("💨 Left", fmt.Sprintf("<#%s>", channelID))
}

func (e Embeds) LeftIdle() *discordgo.MessageEmbed {
	return e.Info("💨 Left due to inactivity", "Nobody was listening.")
}

func (e Embeds) Favorites(list []repository.Favorite) *discordgo.MessageEmbed {
	if len(list) == 0 {
		return e.Info("⭐ Favorites", "There aren't any favorites yet.")
	}
	var b strings.Builder
	for _, f := range list {
		fmt.Fprintf(&b, "**%s**: %s (<@%s>)\n",
			utils.EscapeMd(f.Name), utils.EscapeMd(utils.Truncate(f.Query, 80)), f.Author)
	}
	return e.Info("⭐ Favorites", b.String())
}

func (e Embeds) Info(title, desc string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{Title: title, Description: desc, Color: e.Color}
}

// Error maps an error to the message users see. Unknown errors get a
// generic failure card so internals never leak into chat.
func (e Embeds) Error(err error) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{Title: ErrorTitle(err), Color: errorColor}
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

package session

import (
	"context"

	"github.com/sonroyaalmerol/kumavoice/internal/track"
)

// Conn is a voice connection plus the player that decodes into it.
// A session owns its Conn exclusively.
type Conn interface {
	ChannelID() string
	IsConnected() bool
	IsPlaying() bool
	// Play starts t and calls onComplete exactly once when it ends, with a
	// non-nil error if the pipeline failed. onComplete may run on any goroutine.
	Play(t track.Request, onComplete func(error))
	// Stop ends the current track. Its onComplete still fires.
	Stop()
	MoveTo(ctx context.Context, channelID string) error
	Disconnect(ctx context.Context) error
}

// ConnectFunc joins channelID in guildID.
type ConnectFunc func(ctx context.Context, guildID, channelID string) (Conn, error)

// Resolver turns a search query or URL into a playable track.
type Resolver interface {
	Resolve(ctx context.Context, query string) (track.Request, error)
}

// Presence answers questions about who sits in which voice channel.
type Presence interface {
	UserVoiceChannel(guildID, userID string) (string, bool)
	HumanOccupants(guildID, channelID string) int
}

// Notifier posts session announcements to a text channel.
type Notifier interface {
	NowPlaying(channelID string, t track.Request)
	LeftIdle(channelID string)
}

type nopNotifier struct{}

func (nopNotifier) NowPlaying(string, track.Request) {}
func (nopNotifier) LeftIdle(string)                  {}

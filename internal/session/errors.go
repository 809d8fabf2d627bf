package session

import (
	"errors"
	"fmt"
)

// User-facing failures. They end the triggering command only.
var (
	ErrNotInVoiceChannel = errors.New("user is not in a voice channel")
	ErrNoVoiceSession    = errors.New("no voice session in this guild")
	ErrNoSearchResults   = errors.New("no search results")
	ErrNothingPlaying    = errors.New("nothing is playing")
	ErrNotConnected      = errors.New("not connected to a voice channel")
)

// errSessionClosed is returned by a session that has already been torn down.
var errSessionClosed = errors.New("session closed")

// PlayerFault is a decode or transmit failure reported by the player mid-track.
type PlayerFault struct {
	GuildID string
	Title   string
	Err     error
}

func (e *PlayerFault) Error() string {
	return fmt.Sprintf("player fault in guild %s while playing %q: %v", e.GuildID, e.Title, e.Err)
}

func (e *PlayerFault) Unwrap() error { return e.Err }

// IsUserError reports whether err belongs to the user-facing taxonomy.
func IsUserError(err error) bool {
	return errors.Is(err, ErrNotInVoiceChannel) ||
		errors.Is(err, ErrNoVoiceSession) ||
		errors.Is(err, ErrNoSearchResults) ||
		errors.Is(err, ErrNothingPlaying) ||
		errors.Is(err, ErrNotConnected)
}

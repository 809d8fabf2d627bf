package ui

import (
	"errors"

	"github.com/sonroyaalmerol/kumavoice/internal/repository"
	"github.com/sonroyaalmerol/kumavoice/internal/session"
)

var errorTitles = []struct {
	err   error
	title string
}{
	{session.ErrNotInVoiceChannel, "❌ You are not in a voice channel"},
	{session.ErrNoVoiceSession, "❌ Not in voice channel"},
	{session.ErrNotConnected, "❌ I'm not connected to a voice channel"},
	{session.ErrNoSearchResults, "😵‍💫 No results found"},
	{session.ErrNothingPlaying, "❌ Nothing is playing"},
	{repository.ErrFavoriteExists, "❌ A favorite with that name already exists"},
	{repository.ErrFavoriteNotFound, "❌ No favorite with that name exists"},
	{repository.ErrNotOwner, "❌ You can only remove your own favorites"},
	{repository.ErrInvalidFavorite, "❌ A favorite needs a name and a query"},
}

func ErrorTitle(err error) string {
	for _, e := range errorTitles {
		if errors.Is(err, e.err) {
			return e.title
		}
	}
	return "💥 Something went wrong"
}

package autocomplete

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/sonroyaalmerol/kumavoice/internal/spotify"
	"github.com/sonroyaalmerol/kumavoice/internal/utils"
)

const (
	defaultEndpoint = "https://suggestqueries.google.com/complete/search"
	// Discord rejects choice names and values longer than this
	maxChoiceLen = 100
	maxChoices   = 25
)

type Suggester struct {
	http     *http.Client
	spotify  *spotify.Client
	endpoint string
	log      *slog.Logger
}

// New builds a Suggester. sp may be nil when Spotify is not configured.
func New(sp *spotify.Client, log *slog.Logger) *Suggester {
	if log == nil {
		log = slog.Default()
	}
	return &Suggester{
		http:     &http.Client{Timeout: 2 * time.Second},
		spotify:  sp,
		endpoint: defaultEndpoint,
		log:      log.With("component", "resolver"),
	}
}

func (s *Suggester) YouTube(ctx context.Context, query string) ([]string, error) {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("client", "firefox")
	q.Set("ds", "yt")
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("suggest: unexpected status %s", resp.Status)
	}

	// ["query", ["suggestion", ...], ...]
	var parsed []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	if len(parsed) < 2 {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal(parsed[1], &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Choices merges YouTube suggestions with Spotify track matches. Spotify gets
// up to half of the slots when configured.
func (s *Suggester) Choices(ctx context.Context, query string, limit int) []*discordgo.ApplicationCommandOptionChoice {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	if limit <= 0 || limit > maxChoices {
		limit = 10
	}

	yt, err := s.YouTube(ctx, query)
	if err != nil {
		s.log.Debug("youtube suggestions failed", "err", err)
	}

	var sp []spotify.Track
	if s.spotify != nil {
		sp, err = s.spotify.SearchTracks(ctx, query, limit/2)
		if err != nil {
			s.log.Debug("spotify suggestions failed", "err", err)
		}
	}

	if len(yt) > limit-len(sp) {
		yt = yt[:limit-len(sp)]
	}
	out := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(yt)+len(sp))
	for _, v := range yt {
		if len(v) > maxChoiceLen {
			continue
		}
		out = append(out, &discordgo.ApplicationCommandOptionChoice{
			Name:  utils.Truncate("YouTube: "+v, maxChoiceLen),
			Value: v,
		})
	}
	for _, t := range sp {
		name := "Spotify: 🎵 " + t.Name
		if len(t.Artists) > 0 {
			name += " - " + t.Artists[0]
		}
		out = append(out, &discordgo.ApplicationCommandOptionChoice{
			Name:  utils.Truncate(name, maxChoiceLen),
			Value: t.URI(),
		})
	}
	return out
}

// Static wraps fixed strings, such as favorite names, as choices.
func Static(values []string) []*discordgo.ApplicationCommandOptionChoice {
	out := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(values))
	for _, v := range values {
		if len(out) == maxChoices {
			break
		}
		out = append(out, &discordgo.ApplicationCommandOptionChoice{
			Name:  utils.Truncate(v, maxChoiceLen),
			Value: v,
		})
	}
	return out
}

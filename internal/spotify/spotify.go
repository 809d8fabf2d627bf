package spotify

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
)

type Track struct {
	ID      spotify.ID
	Name    string
	Artists []string
}

// URI is the spotify:track:<id> form accepted back by the resolver.
func (t Track) URI() string { return "spotify:track:" + string(t.ID) }

// SearchQuery is the text handed to a YouTube search for this track.
func (t Track) SearchQuery() string {
	parts := append([]string{t.Name}, t.Artists...)
	return strings.Join(parts, " ")
}

type Client struct {
	raw *spotify.Client
}

func NewClientCredentials(ctx context.Context, clientID, clientSecret string) *Client {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	httpClient := cfg.Client(ctx)
	return &Client{raw: spotify.New(httpClient, spotify.WithRetry(true))}
}

// IsLink reports whether raw looks like a Spotify URL or URI.
func IsLink(raw string) bool {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "spotify:") {
		return true
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Host == "open.spotify.com" || u.Host == "www.open.spotify.com"
}

func ParseID(raw string) (typ string, id spotify.ID, err error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "spotify:") {
		parts := strings.Split(raw, ":")
		if len(parts) == 3 && parts[2] != "" {
			return parts[1], spotify.ID(parts[2]), nil
		}
		return "", "", fmt.Errorf("invalid spotify URI")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}
	if u.Host != "open.spotify.com" && u.Host != "www.open.spotify.com" {
		return "", "", fmt.Errorf("not a spotify URL")
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	// localized links look like /intl-de/track/<id>
	if len(parts) > 0 && strings.HasPrefix(parts[0], "intl-") {
		parts = parts[1:]
	}
	if len(parts) < 2 || parts[1] == "" {
		return "", "", fmt.Errorf("invalid spotify URL path")
	}
	switch parts[0] {
	case "album", "playlist", "track", "artist":
		return parts[0], spotify.ID(parts[1]), nil
	}
	return "", "", fmt.Errorf("unsupported spotify type")
}

func (c *Client) GetTrack(ctx context.Context, id spotify.ID) (Track, error) {
	t, err := c.raw.GetTrack(ctx, id)
	if err != nil {
		return Track{}, err
	}
	return fromSimple(t.SimpleTrack), nil
}

// SearchTracks returns up to limit tracks matching query.
func (c *Client) SearchTracks(ctx context.Context, query string, limit int) ([]Track, error) {
	res, err := c.raw.Search(ctx, query, spotify.SearchTypeTrack, spotify.Limit(limit))
	if err != nil {
		return nil, err
	}
	if res.Tracks == nil {
		return nil, nil
	}
	out := make([]Track, 0, len(res.Tracks.Tracks))
	for _, t := range res.Tracks.Tracks {
		out = append(out, fromSimple(t.SimpleTrack))
	}
	return out, nil
}

func fromSimple(t spotify.SimpleTrack) Track {
	out := Track{ID: t.ID, Name: t.Name}
	for _, a := range t.Artists {
		out.Artists = append(out.Artists, a.Name)
	}
	return out
}

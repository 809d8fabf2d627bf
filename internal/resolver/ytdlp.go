package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	ytdlp "github.com/lrstanley/go-ytdlp"
	"golang.org/x/time/rate"

	"github.com/sonroyaalmerol/kumavoice/internal/session"
	"github.com/sonroyaalmerol/kumavoice/internal/spotify"
	"github.com/sonroyaalmerol/kumavoice/internal/track"
)

const (
	audioFormat      = "bestaudio[protocol!=m3u8][protocol!=m3u8_native]/bestaudio/best"
	defaultUserAgent = "Mozilla/5.0"
	socketTimeout    = 30 // seconds
)

var installOnce sync.Once

// Install makes sure a yt-dlp binary is available. It is safe to call more than once.
func Install(ctx context.Context) {
	installOnce.Do(func() {
		ytdlp.MustInstall(ctx, nil)
	})
}

type Options struct {
	Cookies string
	Proxy   string
	Timeout time.Duration
	Rate    float64
	Burst   int
	Spotify *spotify.Client
	Logger  *slog.Logger
}

// YTDLP resolves queries and URLs with yt-dlp. Free text becomes a
// first-result YouTube search.
type YTDLP struct {
	cookies string
	proxy   string
	timeout time.Duration
	limiter *rate.Limiter
	spotify *spotify.Client
	log     *slog.Logger
}

func New(opts Options) *YTDLP {
	if opts.Timeout <= 0 {
		opts.Timeout = 45 * time.Second
	}
	if opts.Rate <= 0 {
		opts.Rate = 2
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &YTDLP{
		cookies: opts.Cookies,
		proxy:   opts.Proxy,
		timeout: opts.Timeout,
		limiter: rate.NewLimiter(rate.Limit(opts.Rate), opts.Burst),
		spotify: opts.Spotify,
		log:     opts.Logger.With("component", "resolver"),
	}
}

func (y *YTDLP) Resolve(ctx context.Context, query string) (track.Request, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return track.Request{}, session.ErrNotFound
	}

	target, err := y.target(ctx, query)
	if err != nil {
		return track.Request{}, err
	}

	if err := y.limiter.Wait(ctx); err != nil {
		return track.Request{}, fmt.Errorf("resolve rate limit: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, y.timeout)
	defer cancel()

	start := time.Now()
	res, err := y.command().Run(ctx, target)
	if err != nil {
		return track.Request{}, fmt.Errorf("yt-dlp %q: %w", target, err)
	}

	t, err := parseInfo(res.Stdout)
	if err != nil {
		return track.Request{}, err
	}
	y.log.Debug("resolved", "query", query, "title", t.Title, "took", time.Since(start).Round(time.Millisecond))
	return t, nil
}

// command builds a single-item JSON dump invocation.
func (y *YTDLP) command() *ytdlp.Command {
	cmd := ytdlp.New().
		Format(audioFormat).
		DumpJSON().
		NoPlaylist().
		SocketTimeout(socketTimeout).
		Quiet().
		NoWarnings().
		IgnoreConfig()
	if y.proxy != "" {
		cmd.Proxy(y.proxy)
	}
	if y.cookies != "" {
		cmd.Cookies(y.cookies)
	}
	return cmd
}

// target turns a query into something yt-dlp accepts.
func (y *YTDLP) target(ctx context.Context, query string) (string, error) {
	if spotify.IsLink(query) {
		return y.spotifyTarget(ctx, query)
	}
	if isURL(query) {
		return query, nil
	}
	return "ytsearch1:" + query, nil
}

func (y *YTDLP) spotifyTarget(ctx context.Context, link string) (string, error) {
	if y.spotify == nil {
		return "", fmt.Errorf("%w: spotify links are not configured", session.ErrNotFound)
	}
	typ, id, err := spotify.ParseID(link)
	if err != nil {
		return "", fmt.Errorf("%w: %v", session.ErrNotFound, err)
	}
	if typ != "track" {
		return "", fmt.Errorf("%w: spotify %s links are not playable, use a track link", session.ErrNotFound, typ)
	}
	st, err := y.spotify.GetTrack(ctx, id)
	if err != nil {
		return "", fmt.Errorf("spotify track %s: %w", id, err)
	}
	return "ytsearch1:" + st.SearchQuery(), nil
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

type ytdlpFormat struct {
	URL         string            `json:"url"`
	Acodec      string            `json:"acodec"`
	Vcodec      string            `json:"vcodec"`
	HTTPHeaders map[string]string `json:"http_headers"`
}

type ytdlpInfo struct {
	ID               string            `json:"id"`
	Title            string            `json:"title"`
	WebpageURL       string            `json:"webpage_url"`
	URL              string            `json:"url"`
	Duration         float64           `json:"duration"`
	Thumbnail        string            `json:"thumbnail"`
	IsLive           bool              `json:"is_live"`
	HTTPHeaders      map[string]string `json:"http_headers"`
	RequestedFormats []ytdlpFormat     `json:"requested_formats"`
	Entries          []ytdlpInfo       `json:"entries"`
}

// parseInfo reads the first JSON document yt-dlp printed.
func parseInfo(stdout string) (track.Request, error) {
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var info ytdlpInfo
		if err := json.Unmarshal([]byte(line), &info); err != nil {
			return track.Request{}, fmt.Errorf("parse yt-dlp json: %w", err)
		}
		if len(info.Entries) > 0 {
			info = info.Entries[0]
		}
		return info.toTrack()
	}
	return track.Request{}, session.ErrNotFound
}

func (info ytdlpInfo) toTrack() (track.Request, error) {
	streamURL, headers := info.URL, info.HTTPHeaders
	if streamURL == "" {
		// merged formats carry the audio url on the audio-only entry
		for _, f := range info.RequestedFormats {
			if f.URL == "" {
				continue
			}
			if streamURL == "" || (f.Vcodec == "none" && f.Acodec != "none") {
				streamURL, headers = f.URL, f.HTTPHeaders
			}
		}
	}
	if streamURL == "" {
		return track.Request{}, fmt.Errorf("%w: no playable format for %q", session.ErrNotFound, info.Title)
	}

	h := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		h[k] = v
	}
	if _, ok := h["User-Agent"]; !ok {
		h["User-Agent"] = defaultUserAgent
	}

	t := track.Request{
		Title:      info.Title,
		WebpageURL: info.WebpageURL,
		StreamURL:  streamURL,
		Headers:    h,
		Duration:   time.Duration(info.Duration * float64(time.Second)),
		Thumbnail:  info.Thumbnail,
	}
	if info.IsLive {
		t.Duration = 0
	}
	if err := t.Validate(); err != nil {
		return track.Request{}, fmt.Errorf("%w: %v", session.ErrNotFound, err)
	}
	return t, nil
}

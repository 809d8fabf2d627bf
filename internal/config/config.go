package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DiscordToken string `env:"DISCORD_TOKEN,required"`
	// DebugGuildID limits slash command registration to one guild.
	DebugGuildID string `env:"DEBUG_GUILD_ID"`
	EmbedColor   Color  `env:"EMBED_COLOR" envDefault:"0xc896ff"`
	BotActivity  string `env:"BOT_ACTIVITY" envDefault:"music"`
	DataDir      string `env:"DATA_DIR" envDefault:"./data"`
	Debug        bool   `env:"DEBUG"`

	YtdlCookies    string        `env:"YTDL_COOKIES"`
	YoutubeProxy   string        `env:"YOUTUBE_PROXY"`
	ResolveTimeout time.Duration `env:"RESOLVE_TIMEOUT" envDefault:"45s"`
	ResolveRate    float64       `env:"RESOLVE_RATE" envDefault:"2"`
	ResolveBurst   int           `env:"RESOLVE_BURST" envDefault:"4"`

	SpotifyClientID     string `env:"SPOTIFY_CLIENT_ID"`
	SpotifyClientSecret string `env:"SPOTIFY_CLIENT_SECRET"`

	IdleTimeout time.Duration `env:"IDLE_TIMEOUT" envDefault:"30s"`
	OpusBitrate int           `env:"OPUS_BITRATE" envDefault:"128000"`
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }

// Color is an embed color written as hex, with or without a 0x or # prefix.
type Color int

func (c *Color) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	s = strings.TrimPrefix(strings.TrimPrefix(strings.ToLower(s), "0x"), "#")
	v, err := strconv.ParseInt(s, 16, 32)
	if err != nil || v < 0 || v > 0xffffff {
		return ErrConfig(fmt.Sprintf("invalid EMBED_COLOR %q", string(b)))
	}
	*c = Color(v)
	return nil
}

// LoadConfig reads envFile when present and then the process environment.
func LoadConfig(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, ErrConfig(err.Error())
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if cfg.YtdlCookies != "" {
		if _, err := os.Stat(cfg.YtdlCookies); err != nil {
			// yt-dlp would fail on every resolve
			return nil, ErrConfig(fmt.Sprintf("YTDL_COOKIES file unreadable: %v", err))
		}
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.DiscordToken) == "" {
		return ErrConfig("DISCORD_TOKEN required")
	}
	if c.IdleTimeout <= 0 {
		return ErrConfig("IDLE_TIMEOUT must be positive")
	}
	if c.ResolveRate <= 0 || c.ResolveBurst <= 0 {
		return ErrConfig("RESOLVE_RATE and RESOLVE_BURST must be positive")
	}
	if c.OpusBitrate < 6000 || c.OpusBitrate > 510000 {
		return ErrConfig("OPUS_BITRATE must be between 6000 and 510000")
	}
	if (c.SpotifyClientID == "") != (c.SpotifyClientSecret == "") {
		return ErrConfig("SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET must be set together")
	}
	return nil
}

// SpotifyEnabled reports whether Spotify links can be resolved.
func (c *Config) SpotifyEnabled() bool {
	return c.SpotifyClientID != "" && c.SpotifyClientSecret != ""
}

func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "db.sqlite")
}

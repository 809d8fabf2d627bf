package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("DATA_DIR", filepath.Join(dir, "data"))

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, Color(0xc896ff), cfg.EmbedColor)
	assert.Equal(t, 30*time.Second, cfg.IdleTimeout)
	assert.Equal(t, 45*time.Second, cfg.ResolveTimeout)
	assert.Equal(t, 128000, cfg.OpusBitrate)
	assert.False(t, cfg.SpotifyEnabled())
	assert.DirExists(t, cfg.DataDir)
	assert.Equal(t, filepath.Join(dir, "data", "db.sqlite"), cfg.DatabasePath())
}

func TestLoadConfigFromEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "DISCORD_TOKEN=from-file\nEMBED_COLOR=#ff0000\nIDLE_TIMEOUT=2m\nDATA_DIR=" + dir + "\n"
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o600))

	// godotenv never overrides variables that are already set
	for _, k := range []string{"DISCORD_TOKEN", "EMBED_COLOR", "IDLE_TIMEOUT", "DATA_DIR"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}

	cfg, err := LoadConfig(envFile)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.DiscordToken)
	assert.Equal(t, Color(0xff0000), cfg.EmbedColor)
	assert.Equal(t, 2*time.Minute, cfg.IdleTimeout)
}

func TestLoadConfigMissingEnvFileIsFine(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("DATA_DIR", t.TempDir())

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
}

func TestLoadConfigErrors(t *testing.T) {
	cases := map[string]map[string]string{
		"missing token":     {"DISCORD_TOKEN": ""},
		"bad color":         {"EMBED_COLOR": "purple"},
		"zero idle":         {"IDLE_TIMEOUT": "0s"},
		"half spotify":      {"SPOTIFY_CLIENT_ID": "id"},
		"bitrate too large": {"OPUS_BITRATE": "999999"},
		"missing cookies":   {"YTDL_COOKIES": "/nonexistent/cookies.txt"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("DISCORD_TOKEN", "token")
			t.Setenv("DATA_DIR", t.TempDir())
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig("")
			require.Error(t, err)
			var cerr ErrConfig
			assert.ErrorAs(t, err, &cerr)
		})
	}
}

func TestColorUnmarshal(t *testing.T) {
	for in, want := range map[string]Color{"0xC896FF": 0xc896ff, "#00ff00": 0x00ff00, "abcdef": 0xabcdef} {
		var c Color
		require.NoError(t, c.UnmarshalText([]byte(in)))
		assert.Equal(t, want, c, in)
	}
}

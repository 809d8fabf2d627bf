package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func newTestLogger(level slog.Level) (*slog.Logger, *bytes.Buffer) {
	color.NoColor = true
	var buf bytes.Buffer
	return slog.New(NewHandler(&buf, level)), &buf
}

func TestHandlerFormatsComponentAndAttrs(t *testing.T) {
	log, buf := newTestLogger(slog.LevelInfo)

	log.With("component", "session", "guildID", "42").
		Info("track started", "title", "Some Song", "err", errors.New("boom"))

	line := buf.String()
	assert.Contains(t, line, "INFO")
	assert.Contains(t, line, "[SESSION] track started")
	assert.Contains(t, line, "guildID=42")
	assert.Contains(t, line, `title="Some Song"`)
	assert.Contains(t, line, "err=boom")
	assert.NotContains(t, line, "component=")
	assert.True(t, strings.HasSuffix(line, "\n"))
}

func TestHandlerLevelFilter(t *testing.T) {
	log, buf := newTestLogger(slog.LevelInfo)
	log.Debug("hidden")
	assert.Empty(t, buf.String())

	log.Warn("shown")
	assert.Contains(t, buf.String(), "WARN")
}

func TestHandlerGroups(t *testing.T) {
	log, buf := newTestLogger(slog.LevelDebug)
	log.WithGroup("voice").Debug("packet", "seq", 7)
	assert.Contains(t, buf.String(), "voice.seq=7")
}

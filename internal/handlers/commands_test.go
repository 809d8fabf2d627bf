package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonroyaalmerol/kumavoice/internal/session"
	"github.com/sonroyaalmerol/kumavoice/internal/track"
	"github.com/sonroyaalmerol/kumavoice/internal/ui"
)

type apiCall struct {
	method string
	path   string
	body   map[string]any
}

// recordingTransport answers every REST call with an empty object and keeps
// the calls in order.
type recordingTransport struct {
	mu    sync.Mutex
	calls []apiCall
}

func (rt *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	call := apiCall{method: req.Method, path: req.URL.Path}
	if req.Body != nil {
		raw, _ := io.ReadAll(req.Body)
		_ = json.Unmarshal(raw, &call.body)
	}
	rt.mu.Lock()
	rt.calls = append(rt.calls, call)
	rt.mu.Unlock()

	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewBufferString("{}")),
		Request:    req,
	}, nil
}

func (rt *recordingTransport) snapshot() []apiCall {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return append([]apiCall(nil), rt.calls...)
}

// deferred reports whether the interaction was already acknowledged as deferred.
func (rt *recordingTransport) deferred() bool {
	for _, c := range rt.snapshot() {
		if strings.HasSuffix(c.path, "/callback") &&
			c.body["type"] == float64(discordgo.InteractionResponseDeferredChannelMessageWithSource) {
			return true
		}
	}
	return false
}

type stubConn struct {
	mu         sync.Mutex
	channelID  string
	playing    bool
	onStop     func()
	onComplete func(error)
}

func (c *stubConn) ChannelID() string { return c.channelID }
func (c *stubConn) IsConnected() bool { return true }

func (c *stubConn) IsPlaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

func (c *stubConn) Play(_ track.Request, onComplete func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playing = true
	c.onComplete = onComplete
}

func (c *stubConn) Stop() {
	if c.onStop != nil {
		c.onStop()
	}
	c.mu.Lock()
	c.playing = false
	cb := c.onComplete
	c.onComplete = nil
	c.mu.Unlock()
	if cb != nil {
		cb(nil)
	}
}

func (c *stubConn) MoveTo(context.Context, string) error { return nil }
func (c *stubConn) Disconnect(context.Context) error     { return nil }

type stubPresence struct{}

func (stubPresence) UserVoiceChannel(_, userID string) (string, bool) {
	return "vc1", userID == "alice"
}
func (stubPresence) HumanOccupants(string, string) int { return 1 }

type stubResolver struct{}

func (stubResolver) Resolve(_ context.Context, query string) (track.Request, error) {
	return track.Request{Title: query, StreamURL: "https://media.example/" + query}, nil
}

type commandHarness struct {
	h  *CommandHandler
	dg *discordgo.Session
	rt *recordingTransport
	m  *session.Manager
}

func newCommandHarness(t *testing.T, connect session.ConnectFunc) *commandHarness {
	t.Helper()
	dg, err := discordgo.New("Bot test")
	require.NoError(t, err)
	rt := &recordingTransport{}
	dg.Client = &http.Client{Transport: rt}

	m := session.NewManager(session.Options{
		Connect:  connect,
		Resolver: stubResolver{},
		Presence: stubPresence{},
	})
	t.Cleanup(func() { m.Shutdown(context.Background()) })

	return &commandHarness{
		h:  NewCommandHandler(nil, m, nil, nil, ui.Embeds{Color: 0xc896ff}, nil),
		dg: dg,
		rt: rt,
		m:  m,
	}
}

func command(name string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:        "1",
		AppID:     "app",
		Token:     "token",
		Type:      discordgo.InteractionApplicationCommand,
		GuildID:   "g",
		ChannelID: "text",
		Member:    &discordgo.Member{User: &discordgo.User{ID: "alice"}},
		Data:      discordgo.ApplicationCommandInteractionData{Name: name},
	}}
}

func editedTitle(t *testing.T, calls []apiCall) string {
	t.Helper()
	last := calls[len(calls)-1]
	require.Equal(t, http.MethodPatch, last.method)
	embeds, ok := last.body["embeds"].([]any)
	require.True(t, ok)
	require.Len(t, embeds, 1)
	return embeds[0].(map[string]any)["title"].(string)
}

func TestSummonAcknowledgesBeforeJoining(t *testing.T) {
	var ackedBeforeJoin bool
	var ch *commandHarness
	ch = newCommandHarness(t, func(context.Context, string, string) (session.Conn, error) {
		ackedBeforeJoin = ch.rt.deferred()
		time.Sleep(20 * time.Millisecond)
		return &stubConn{channelID: "vc1"}, nil
	})

	ch.h.HandleInteraction(ch.dg, command("summon"))

	assert.True(t, ackedBeforeJoin)
	calls := ch.rt.snapshot()
	require.Len(t, calls, 2)
	assert.Equal(t, float64(ephemeralFlag), calls[0].body["data"].(map[string]any)["flags"])
	assert.Equal(t, "🔊 Joined", editedTitle(t, calls))
}

func TestSummonErrorEditsDeferredReply(t *testing.T) {
	ch := newCommandHarness(t, func(context.Context, string, string) (session.Conn, error) {
		return &stubConn{channelID: "vc1"}, nil
	})
	i := command("summon")
	i.Member.User.ID = "bob"

	ch.h.HandleInteraction(ch.dg, i)

	calls := ch.rt.snapshot()
	require.Len(t, calls, 2)
	assert.True(t, ch.rt.deferred())
	assert.Equal(t, "❌ You are not in a voice channel", editedTitle(t, calls))
}

func TestSkipAcknowledgesBeforeStopping(t *testing.T) {
	conn := &stubConn{channelID: "vc1"}
	ch := newCommandHarness(t, func(context.Context, string, string) (session.Conn, error) {
		return conn, nil
	})
	ctx := context.Background()
	_, _, err := ch.m.Summon(ctx, "g", "alice", "text")
	require.NoError(t, err)
	_, err = ch.m.Play(ctx, "g", "song", "alice", "text")
	require.NoError(t, err)

	var ackedBeforeStop bool
	conn.onStop = func() { ackedBeforeStop = ch.rt.deferred() }

	ch.h.HandleInteraction(ch.dg, command("skip"))

	assert.True(t, ackedBeforeStop)
	assert.Equal(t, "⏭️ Track skipped", editedTitle(t, ch.rt.snapshot()))
}

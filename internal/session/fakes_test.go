package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sonroyaalmerol/kumavoice/internal/track"
)

type fakeConn struct {
	mu          sync.Mutex
	channelID   string
	connected   bool
	playing     *track.Request
	onComplete  func(error)
	played      []string
	stops       int
	disconnects int
}

func (c *fakeConn) ChannelID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channelID
}

func (c *fakeConn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeConn) IsPlaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing != nil
}

func (c *fakeConn) Play(t track.Request, onComplete func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playing = &t
	c.onComplete = onComplete
	c.played = append(c.played, t.Title)
}

func (c *fakeConn) Stop() {
	c.mu.Lock()
	c.stops++
	cb := c.onComplete
	c.playing = nil
	c.onComplete = nil
	c.mu.Unlock()
	if cb != nil {
		cb(nil)
	}
}

func (c *fakeConn) MoveTo(_ context.Context, channelID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channelID = channelID
	return nil
}

func (c *fakeConn) Disconnect(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.disconnects++
	return nil
}

// finish ends the current track as the decoder would.
func (c *fakeConn) finish(err error) {
	c.mu.Lock()
	cb := c.onComplete
	c.playing = nil
	c.onComplete = nil
	c.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

func (c *fakeConn) current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playing == nil {
		return ""
	}
	return c.playing.Title
}

func (c *fakeConn) playedTitles() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.played...)
}

type fakePresence struct {
	mu     sync.Mutex
	users  map[string]string
	humans map[string]int
}

func newFakePresence() *fakePresence {
	return &fakePresence{users: map[string]string{}, humans: map[string]int{}}
}

func (p *fakePresence) UserVoiceChannel(_, userID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.users[userID]
	return ch, ok
}

func (p *fakePresence) HumanOccupants(_, channelID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.humans[channelID]
}

func (p *fakePresence) put(userID, channelID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if old, ok := p.users[userID]; ok {
		p.humans[old]--
	}
	if channelID == "" {
		delete(p.users, userID)
		return
	}
	p.users[userID] = channelID
	p.humans[channelID]++
}

type fakeResolver struct {
	calls atomic.Int32
	gate  chan struct{}
}

func (r *fakeResolver) Resolve(ctx context.Context, query string) (track.Request, error) {
	r.calls.Add(1)
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return track.Request{}, ctx.Err()
		}
	}
	if query == "" || query == "nothing" {
		return track.Request{}, ErrNotFound
	}
	return track.Request{
		Title:      query,
		WebpageURL: "https://video.example/" + query,
		StreamURL:  "https://media.example/" + query,
		Duration:   3 * time.Minute,
	}, nil
}

type fakeNotifier struct {
	mu         sync.Mutex
	nowPlaying []string
	leftIdle   []string
}

func (n *fakeNotifier) NowPlaying(channelID string, t track.Request) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nowPlaying = append(n.nowPlaying, t.Title)
}

func (n *fakeNotifier) LeftIdle(channelID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.leftIdle = append(n.leftIdle, channelID)
}

func (n *fakeNotifier) idleNotices() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.leftIdle)
}

type harness struct {
	m        *Manager
	presence *fakePresence
	resolver *fakeResolver
	notifier *fakeNotifier

	mu       sync.Mutex
	conns    []*fakeConn
	connects atomic.Int32
	failJoin bool
}

func newHarness(t *testing.T, grace time.Duration) *harness {
	t.Helper()
	h := &harness{
		presence: newFakePresence(),
		resolver: &fakeResolver{},
		notifier: &fakeNotifier{},
	}
	h.m = NewManager(Options{
		Connect:     h.connect,
		Resolver:    h.resolver,
		Presence:    h.presence,
		Notifier:    h.notifier,
		GracePeriod: grace,
	})
	t.Cleanup(func() { h.m.Shutdown(context.Background()) })
	return h
}

func (h *harness) connect(_ context.Context, _, channelID string) (Conn, error) {
	h.connects.Add(1)
	// widen the window for concurrent summons
	time.Sleep(5 * time.Millisecond)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failJoin {
		return nil, errors.New("gateway timeout")
	}
	c := &fakeConn{channelID: channelID, connected: true}
	h.conns = append(h.conns, c)
	return c, nil
}

func (h *harness) conn() *fakeConn {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.conns) == 0 {
		return nil
	}
	return h.conns[len(h.conns)-1]
}

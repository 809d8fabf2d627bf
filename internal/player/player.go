package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/sonroyaalmerol/kumavoice/internal/stream"
	"github.com/sonroyaalmerol/kumavoice/internal/track"
)

const (
	bufferPackets   = 250 // ~5s of 20 ms frames
	sendTimeout     = 200 * time.Millisecond
	maxDroppedSends = 25
	stopWait        = 2 * time.Second
)

var ErrVoiceStalled = errors.New("voice connection stopped accepting audio")

// Connector joins voice channels through the gateway.
type Connector struct {
	dg      *discordgo.Session
	bitrate int
	log     *slog.Logger
}

func NewConnector(dg *discordgo.Session, bitrate int, log *slog.Logger) *Connector {
	if log == nil {
		log = slog.Default()
	}
	return &Connector{dg: dg, bitrate: bitrate, log: log.With("component", "player")}
}

func (c *Connector) Connect(ctx context.Context, guildID, channelID string) (*Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vc, err := c.dg.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return nil, err
	}
	// Kill() closes these; make sure they exist
	if vc.OpusSend == nil {
		vc.OpusSend = make(chan []byte, 2)
	}
	return &Conn{
		guildID: guildID,
		vc:      vc,
		bitrate: c.bitrate,
		log:     c.log.With("guildID", guildID),
	}, nil
}

// Conn is one guild's voice connection and the track currently streaming into it.
type Conn struct {
	guildID string
	vc      *discordgo.VoiceConnection
	bitrate int
	log     *slog.Logger

	mu  sync.Mutex
	cur *playback
}

type playback struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (c *Conn) ChannelID() string {
	c.vc.RLock()
	defer c.vc.RUnlock()
	return c.vc.ChannelID
}

func (c *Conn) IsConnected() bool {
	c.vc.RLock()
	defer c.vc.RUnlock()
	return c.vc.Ready
}

func (c *Conn) IsPlaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur != nil
}

func (c *Conn) MoveTo(ctx context.Context, channelID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.vc.ChangeChannel(channelID, false, true)
}

// Play streams t in the background and calls onComplete once it ends.
func (c *Conn) Play(t track.Request, onComplete func(error)) {
	c.mu.Lock()
	c.stopLocked()
	ctx, cancel := context.WithCancel(context.Background())
	pb := &playback{cancel: cancel, done: make(chan struct{})}
	c.cur = pb
	c.mu.Unlock()

	go c.run(ctx, pb, t, onComplete)
}

func (c *Conn) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Conn) stopLocked() {
	if c.cur == nil {
		return
	}
	pb := c.cur
	c.cur = nil
	pb.cancel()

	// wait for the sender to exit without holding the lock
	c.mu.Unlock()
	select {
	case <-pb.done:
	case <-time.After(stopWait):
		c.log.Warn("playback did not stop in time")
	}
	c.mu.Lock()
}

func (c *Conn) Disconnect(ctx context.Context) error {
	c.Stop()
	return c.safeDisconnect(ctx)
}

// safeDisconnect guards against panics inside the gateway library on
// half-closed connections.
func (c *Conn) safeDisconnect(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("voice disconnect panic recovered", "panic", r)
			err = fmt.Errorf("voice disconnect panic: %v", r)
		}
	}()

	_ = c.vc.Speaking(false)

	done := make(chan error, 1)
	go func() { done <- c.vc.Disconnect() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Conn) run(ctx context.Context, pb *playback, t track.Request, onComplete func(error)) {
	start := time.Now()
	err := c.stream(ctx, t)

	c.mu.Lock()
	if c.cur == pb {
		c.cur = nil
	}
	c.mu.Unlock()
	pb.cancel()
	close(pb.done)

	if errors.Is(err, context.Canceled) {
		err = nil
	}
	c.log.Debug("playback ended", "title", t.Title, "played", time.Since(start).Round(time.Second), "err", err)
	onComplete(err)
}

// stream runs the transcoder as producer and feeds the voice connection as consumer.
func (c *Conn) stream(ctx context.Context, t track.Request) error {
	tc, err := stream.Open(ctx, t.StreamURL, t.Headers, c.bitrate)
	if err != nil {
		return err
	}
	defer tc.Close()

	buf := newOpusBuffer(bufferPackets)
	stopClose := context.AfterFunc(ctx, buf.Close)
	defer stopClose()

	produced := make(chan error, 1)
	go func() {
		err := tc.Run(ctx, buf.Push)
		buf.MarkEOS()
		produced <- err
	}()

	sendErr := c.consume(ctx, buf)
	buf.Close()
	prodErr := <-produced

	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case sendErr != nil:
		return sendErr
	case prodErr != nil && !errors.Is(prodErr, errBufferClosed):
		return prodErr
	}
	return nil
}

func (c *Conn) consume(ctx context.Context, buf *opusBuffer) error {
	_ = c.vc.Speaking(true)
	defer func() { _ = c.vc.Speaking(false) }()

	dropped := 0
	for {
		pkt, ok := buf.Pop()
		if !ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case c.vc.OpusSend <- pkt:
			dropped = 0
		case <-time.After(sendTimeout):
			dropped++
			c.log.Debug("dropped packet", "consecutive", dropped, "buffered", buf.BufferedCount())
			if dropped >= maxDroppedSends {
				return ErrVoiceStalled
			}
		}
	}
}

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sonroyaalmerol/kumavoice/internal/track"
)

type SummonResult int

const (
	SummonJoined SummonResult = iota
	SummonAlreadyHere
	SummonMoved
)

func (r SummonResult) String() string {
	switch r {
	case SummonAlreadyHere:
		return "already-here"
	case SummonMoved:
		return "moved"
	default:
		return "joined"
	}
}

// ErrNotFound is what resolvers return when a query matches nothing.
var ErrNotFound = errors.New("not found")

type Options struct {
	Connect     ConnectFunc
	Resolver    Resolver
	Presence    Presence
	Notifier    Notifier
	GracePeriod time.Duration
	Logger      *slog.Logger
}

// Manager is the command-facing entry point. It owns the registry and hands
// each command to the guild's session.
type Manager struct {
	registry *Registry
	connect  ConnectFunc
	resolver Resolver
	presence Presence
	notifier Notifier
	grace    time.Duration
	log      *slog.Logger
}

func NewManager(opts Options) *Manager {
	m := &Manager{
		registry: NewRegistry(),
		connect:  opts.Connect,
		resolver: opts.Resolver,
		presence: opts.Presence,
		notifier: opts.Notifier,
		grace:    opts.GracePeriod,
		log:      opts.Logger,
	}
	if m.notifier == nil {
		m.notifier = nopNotifier{}
	}
	if m.grace <= 0 {
		m.grace = DefaultGracePeriod
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	m.log = m.log.With("component", "session")
	return m
}

func (m *Manager) Registry() *Registry { return m.registry }

// Summon brings the bot into the caller's voice channel.
func (m *Manager) Summon(ctx context.Context, guildID, userID, textChannelID string) (SummonResult, string, error) {
	channelID, ok := m.presence.UserVoiceChannel(guildID, userID)
	if !ok || channelID == "" {
		return 0, "", ErrNotInVoiceChannel
	}

	// a session closed between lookup and use is replaced on the next pass
	for attempt := 0; attempt < 3; attempt++ {
		sess, created, err := m.registry.GetOrCreate(guildID, func() (*Session, error) {
			conn, err := m.connect(ctx, guildID, channelID)
			if err != nil {
				return nil, fmt.Errorf("join voice channel %s: %w", channelID, err)
			}
			return newSession(guildID, conn, m), nil
		})
		if err != nil {
			return 0, "", err
		}
		if created {
			sess.setStatusChannel(textChannelID)
			m.log.Info("joined voice channel", "guildID", guildID, "channelID", channelID)
			return SummonJoined, channelID, nil
		}

		res, err := sess.summonTo(ctx, channelID, textChannelID)
		if errors.Is(err, errSessionClosed) {
			continue
		}
		if err != nil {
			return 0, "", fmt.Errorf("move to voice channel %s: %w", channelID, err)
		}
		return res, channelID, nil
	}
	return 0, "", fmt.Errorf("summon in guild %s: %w", guildID, errSessionClosed)
}

// Enqueue resolves query and appends it to the queue without starting playback.
// It returns the 1-based queue position.
func (m *Manager) Enqueue(ctx context.Context, guildID, query, userID, textChannelID string) (track.Request, int, error) {
	if _, err := m.liveSession(guildID); err != nil {
		return track.Request{}, 0, err
	}

	t, err := m.resolve(ctx, query, userID)
	if err != nil {
		return track.Request{}, 0, err
	}

	// the session may have gone away while we were resolving
	sess, err := m.liveSession(guildID)
	if err != nil {
		return track.Request{}, 0, err
	}
	pos, err := sess.enqueue(t, textChannelID)
	if err != nil {
		return track.Request{}, 0, ErrNoVoiceSession
	}
	return t, pos, nil
}

// Play resolves query and starts it immediately, preempting the current track.
func (m *Manager) Play(ctx context.Context, guildID, query, userID, textChannelID string) (track.Request, error) {
	if _, err := m.liveSession(guildID); err != nil {
		return track.Request{}, err
	}

	t, err := m.resolve(ctx, query, userID)
	if err != nil {
		return track.Request{}, err
	}

	sess, err := m.liveSession(guildID)
	if err != nil {
		return track.Request{}, err
	}
	if err := sess.play(t, textChannelID); err != nil {
		return track.Request{}, ErrNoVoiceSession
	}
	return t, nil
}

// Skip stops the current track and advances the queue. It returns the skipped track.
func (m *Manager) Skip(_ context.Context, guildID string) (track.Request, error) {
	sess, ok := m.registry.Get(guildID)
	if !ok {
		return track.Request{}, ErrNothingPlaying
	}
	t, err := sess.skip()
	if errors.Is(err, errSessionClosed) {
		return track.Request{}, ErrNothingPlaying
	}
	return t, err
}

// Leave tears the guild's session down.
func (m *Manager) Leave(ctx context.Context, guildID string) (string, error) {
	sess, ok := m.registry.Get(guildID)
	if !ok {
		return "", ErrNotConnected
	}
	channelID := sess.Snapshot().ChannelID
	if err := sess.leave(ctx); err != nil {
		return "", ErrNotConnected
	}
	return channelID, nil
}

func (m *Manager) NowPlaying(guildID string) (Snapshot, error) {
	sess, ok := m.registry.Get(guildID)
	if !ok {
		return Snapshot{}, ErrNotConnected
	}
	snap := sess.Snapshot()
	if snap.Current == nil {
		return snap, ErrNothingPlaying
	}
	return snap, nil
}

// OnVoicePresenceChange routes a voice state change to the guild's session.
func (m *Manager) OnVoicePresenceChange(guildID, userID string, isBot bool, beforeChannelID, afterChannelID string) {
	if isBot {
		return
	}
	sess, ok := m.registry.Get(guildID)
	if !ok {
		return
	}
	m.log.Debug("voice presence change",
		"guildID", guildID, "userID", userID, "before", beforeChannelID, "after", afterChannelID)
	sess.onPresenceChange(beforeChannelID, afterChannelID)
}

// Shutdown leaves every guild.
func (m *Manager) Shutdown(ctx context.Context) {
	for _, sess := range m.registry.All() {
		_ = sess.leave(ctx)
	}
}

func (m *Manager) liveSession(guildID string) (*Session, error) {
	sess, ok := m.registry.Get(guildID)
	if !ok {
		return nil, ErrNoVoiceSession
	}
	sess.mu.Lock()
	usable := sess.usableLocked()
	sess.mu.Unlock()
	if !usable {
		return nil, ErrNoVoiceSession
	}
	return sess, nil
}

func (m *Manager) resolve(ctx context.Context, query, userID string) (track.Request, error) {
	t, err := m.resolver.Resolve(ctx, query)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			m.log.Warn("resolve failed", "query", query, "err", err)
		}
		return track.Request{}, fmt.Errorf("%w: %v", ErrNoSearchResults, err)
	}
	if err := t.Validate(); err != nil {
		m.log.Warn("resolver returned unplayable track", "query", query, "err", err)
		return track.Request{}, fmt.Errorf("%w: %v", ErrNoSearchResults, err)
	}
	return t.WithRequester(userID), nil
}

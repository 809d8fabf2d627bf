package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sonroyaalmerol/kumavoice/internal/track"
)

type Status int

const (
	StatusIdle Status = iota
	StatusPlaying
)

func (s Status) String() string {
	switch s {
	case StatusPlaying:
		return "playing"
	default:
		return "idle"
	}
}

// Snapshot is a read-only view of a session for display.
type Snapshot struct {
	GuildID   string
	ChannelID string
	Status    Status
	Current   *track.Request
	Queued    []track.Request
	// IdlePending is set while an idle disconnect is scheduled.
	IdlePending bool
}

// Session is the playback state of one guild. Every transition runs under mu.
type Session struct {
	guildID  string
	grace    time.Duration
	presence Presence
	notifier Notifier
	registry *Registry
	log      *slog.Logger

	mu            sync.Mutex
	conn          Conn
	status        Status
	queue         Queue
	current       *track.Request
	playID        uuid.UUID
	statusChannel string
	watchdog      *watchdog
	closed        bool
}

func newSession(guildID string, conn Conn, m *Manager) *Session {
	return &Session{
		guildID:  guildID,
		grace:    m.grace,
		presence: m.presence,
		notifier: m.notifier,
		registry: m.registry,
		log:      m.log.With("guildID", guildID),
		conn:     conn,
		status:   StatusIdle,
	}
}

func (s *Session) GuildID() string { return s.guildID }

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		GuildID:     s.guildID,
		Status:      s.status,
		Queued:      s.queue.Items(),
		IdlePending: s.watchdog != nil,
	}
	if s.conn != nil {
		snap.ChannelID = s.conn.ChannelID()
	}
	if s.current != nil {
		cur := *s.current
		snap.Current = &cur
	}
	return snap
}

// usableLocked reports whether commands may still act on the session.
func (s *Session) usableLocked() bool {
	return !s.closed && s.conn != nil && s.conn.IsConnected()
}

func (s *Session) setStatusChannel(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if channelID != "" {
		s.statusChannel = channelID
	}
}

func (s *Session) summonTo(ctx context.Context, channelID, textChannelID string) (SummonResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, errSessionClosed
	}
	if !s.conn.IsConnected() {
		// connection dropped underneath us; caller builds a fresh session
		s.log.Warn("voice connection lost, recreating session")
		s.teardownLocked(ctx)
		return 0, errSessionClosed
	}
	if textChannelID != "" {
		s.statusChannel = textChannelID
	}
	if s.conn.ChannelID() == channelID {
		return SummonAlreadyHere, nil
	}
	if err := s.conn.MoveTo(ctx, channelID); err != nil {
		return 0, err
	}
	s.cancelWatchdogLocked()
	s.log.Info("moved voice channel", "channelID", channelID)
	return SummonMoved, nil
}

func (s *Session) enqueue(t track.Request, textChannelID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.usableLocked() {
		return 0, errSessionClosed
	}
	if textChannelID != "" {
		s.statusChannel = textChannelID
	}
	pos := s.queue.Enqueue(t)
	s.log.Debug("track queued", "title", t.Title, "position", pos)
	return pos, nil
}

func (s *Session) play(t track.Request, textChannelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.usableLocked() {
		return errSessionClosed
	}
	if textChannelID != "" {
		s.statusChannel = textChannelID
	}
	s.startLocked(t)
	return nil
}

func (s *Session) skip() (track.Request, error) {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return track.Request{}, errSessionClosed
	}
	if s.status != StatusPlaying || s.current == nil {
		s.mu.Unlock()
		return track.Request{}, ErrNothingPlaying
	}

	skipped := *s.current
	s.stopLocked()
	next := s.advanceLocked()
	ch := s.statusChannel
	s.mu.Unlock()

	s.log.Info("track skipped", "title", skipped.Title)
	if next != nil {
		s.notifier.NowPlaying(ch, *next)
	}
	return skipped, nil
}

func (s *Session) leave(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errSessionClosed
	}
	s.teardownLocked(ctx)
	return nil
}

// onPlaybackComplete runs on its own goroutine for every finished track.
// Callbacks that do not belong to the active playback are dropped.
func (s *Session) onPlaybackComplete(id uuid.UUID, err error) {
	s.mu.Lock()

	if s.closed || id != s.playID {
		s.mu.Unlock()
		return
	}
	if err != nil {
		title := ""
		if s.current != nil {
			title = s.current.Title
		}
		fault := &PlayerFault{GuildID: s.guildID, Title: title, Err: err}
		s.log.Error("playback failed", "err", fault)
	}

	next := s.advanceLocked()
	ch := s.statusChannel
	s.mu.Unlock()

	if next != nil {
		s.notifier.NowPlaying(ch, *next)
	}
}

// startLocked preempts whatever is playing and starts t.
func (s *Session) startLocked(t track.Request) {
	if s.conn.IsPlaying() {
		s.stopLocked()
	}

	id := uuid.New()
	s.playID = id
	cur := t
	s.current = &cur
	s.status = StatusPlaying

	s.log.Info("starting track", "title", t.Title, "requestedBy", t.RequestedBy)
	s.conn.Play(t, func(err error) {
		go s.onPlaybackComplete(id, err)
	})
}

// stopLocked invalidates the active playback before stopping the player so
// its completion callback becomes a no-op.
func (s *Session) stopLocked() {
	s.playID = uuid.Nil
	s.conn.Stop()
}

// advanceLocked starts the next queued track or goes idle.
func (s *Session) advanceLocked() *track.Request {
	next, ok := s.queue.Dequeue()
	if !ok {
		s.status = StatusIdle
		s.current = nil
		s.playID = uuid.Nil
		return nil
	}
	s.startLocked(next)
	return &next
}

// teardownLocked stops playback, disconnects, clears the queue, cancels the
// watchdog and drops the registry entry.
func (s *Session) teardownLocked(ctx context.Context) {
	s.closed = true

	if s.conn.IsPlaying() || s.status == StatusPlaying {
		s.stopLocked()
	}
	if err := s.conn.Disconnect(ctx); err != nil {
		s.log.Warn("voice disconnect failed", "err", err)
	}
	s.queue.Clear()
	s.cancelWatchdogLocked()
	s.status = StatusIdle
	s.current = nil
	s.playID = uuid.Nil
	s.registry.Remove(s.guildID, s)

	s.log.Info("session closed")
}

func (s *Session) onPresenceChange(beforeChannel, afterChannel string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.conn == nil {
		return
	}
	ch := s.conn.ChannelID()
	if ch == "" || beforeChannel == afterChannel {
		return
	}

	switch {
	case afterChannel == ch:
		if s.watchdog != nil {
			s.log.Debug("listener rejoined, cancelling idle disconnect")
		}
		s.cancelWatchdogLocked()
	case beforeChannel == ch:
		if s.presence.HumanOccupants(s.guildID, ch) == 0 {
			s.armWatchdogLocked()
		}
	}
}

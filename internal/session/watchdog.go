package session

import (
	"context"
	"time"
)

// DefaultGracePeriod is how long an empty channel is tolerated before leaving.
const DefaultGracePeriod = 30 * time.Second

// watchdog is one pending idle disconnect. The session holds at most one;
// a fired timer whose watchdog is no longer current does nothing.
type watchdog struct {
	timer     *time.Timer
	channelID string
	armedAt   time.Time
}

func (s *Session) armWatchdogLocked() {
	s.cancelWatchdogLocked()

	w := &watchdog{
		channelID: s.conn.ChannelID(),
		armedAt:   time.Now(),
	}
	// fireWatchdog needs mu, so it cannot observe w before it is installed
	w.timer = time.AfterFunc(s.grace, func() { s.fireWatchdog(w) })
	s.watchdog = w

	s.log.Info("channel empty, scheduling idle disconnect",
		"channelID", w.channelID, "grace", s.grace)
}

func (s *Session) cancelWatchdogLocked() {
	if s.watchdog == nil {
		return
	}
	s.watchdog.timer.Stop()
	s.watchdog = nil
}

func (s *Session) fireWatchdog(w *watchdog) {
	s.mu.Lock()

	if s.closed || s.watchdog != w {
		s.mu.Unlock()
		return
	}
	s.watchdog = nil

	if n := s.presence.HumanOccupants(s.guildID, s.conn.ChannelID()); n > 0 {
		s.mu.Unlock()
		s.log.Debug("idle disconnect aborted, channel no longer empty", "humans", n)
		return
	}

	ch := s.statusChannel
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.teardownLocked(ctx)
	s.mu.Unlock()

	s.log.Info("left voice channel due to inactivity",
		"channelID", w.channelID, "idleFor", time.Since(w.armedAt).Round(time.Second))
	s.notifier.LeftIdle(ch)
}

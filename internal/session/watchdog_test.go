package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testGrace = 40 * time.Millisecond

func leaveChannel(h *harness, user string) {
	h.presence.put(user, "")
	h.m.OnVoicePresenceChange(guild, user, false, voice, "")
}

func joinChannel(h *harness, user string) {
	h.presence.put(user, voice)
	h.m.OnVoicePresenceChange(guild, user, false, "", voice)
}

func TestWatchdogCancelledByRejoin(t *testing.T) {
	h := summoned(t, testGrace)
	sess, _ := h.m.Registry().Get(guild)

	leaveChannel(h, "alice")
	assert.True(t, sess.Snapshot().IdlePending)

	joinChannel(h, "alice")
	assert.False(t, sess.Snapshot().IdlePending)

	time.Sleep(3 * testGrace)
	assert.Equal(t, 1, h.m.Registry().Len())
	assert.True(t, h.conn().IsConnected())
	assert.Zero(t, h.notifier.idleNotices())
}

func TestWatchdogDisconnectsEmptyChannel(t *testing.T) {
	h := summoned(t, testGrace)
	ctx := context.Background()
	_, _, err := h.m.Enqueue(ctx, guild, "A", "alice", text)
	require.NoError(t, err)
	_, err = h.m.Play(ctx, guild, "C", "alice", text)
	require.NoError(t, err)

	leaveChannel(h, "alice")

	assert.Eventually(t, func() bool { return h.m.Registry().Len() == 0 }, time.Second, 5*time.Millisecond)
	assert.False(t, h.conn().IsConnected())
	assert.False(t, h.conn().IsPlaying())
	assert.Eventually(t, func() bool { return h.notifier.idleNotices() == 1 }, time.Second, 5*time.Millisecond)

	h.notifier.mu.Lock()
	assert.Equal(t, []string{text}, h.notifier.leftIdle)
	h.notifier.mu.Unlock()
}

func TestWatchdogRechecksOccupancyOnFire(t *testing.T) {
	h := summoned(t, testGrace)

	leaveChannel(h, "alice")
	// someone slips in without the presence event reaching the session
	h.presence.put("carol", voice)

	time.Sleep(3 * testGrace)
	assert.Equal(t, 1, h.m.Registry().Len())
	assert.True(t, h.conn().IsConnected())
	assert.Zero(t, h.notifier.idleNotices())
}

func TestWatchdogRearmReplacesPrevious(t *testing.T) {
	h := summoned(t, testGrace)
	h.presence.put("bob", voice)
	sess, _ := h.m.Registry().Get(guild)

	leaveChannel(h, "alice")
	assert.False(t, sess.Snapshot().IdlePending, "bob is still listening")

	leaveChannel(h, "bob")
	require.True(t, sess.Snapshot().IdlePending)
	sess.mu.Lock()
	first := sess.watchdog
	sess.armWatchdogLocked()
	second := sess.watchdog
	sess.mu.Unlock()
	assert.NotSame(t, first, second)

	assert.Eventually(t, func() bool { return h.m.Registry().Len() == 0 }, time.Second, 5*time.Millisecond)
	time.Sleep(2 * testGrace)
	assert.Equal(t, 1, h.notifier.idleNotices())
}

func TestWatchdogCancelledByLeave(t *testing.T) {
	h := summoned(t, testGrace)

	leaveChannel(h, "alice")
	_, err := h.m.Leave(context.Background(), guild)
	require.NoError(t, err)

	time.Sleep(3 * testGrace)
	assert.Zero(t, h.notifier.idleNotices())
	assert.Equal(t, 1, h.conn().disconnects)
}

func TestPresenceIgnoresBotsAndOtherChannels(t *testing.T) {
	h := summoned(t, testGrace)
	sess, _ := h.m.Registry().Get(guild)

	h.presence.put("alice", "")
	h.m.OnVoicePresenceChange(guild, "alice", true, voice, "")
	assert.False(t, sess.Snapshot().IdlePending)

	h.m.OnVoicePresenceChange(guild, "alice", false, "voice9", "")
	assert.False(t, sess.Snapshot().IdlePending)

	h.m.OnVoicePresenceChange("other-guild", "alice", false, voice, "")
	assert.False(t, sess.Snapshot().IdlePending)
}

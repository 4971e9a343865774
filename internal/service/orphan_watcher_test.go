package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrphanWatcherEndsAbandonedSession(t *testing.T) {
	bc := newRecordingBroadcaster()
	w := NewOrphanWatcher(10*time.Millisecond, nil)
	w.SetBroadcaster(bc)
	defer w.Stop()

	w.SessionRoomAbandoned("S1")
	assert.Equal(t, 1, w.Pending())

	require.Eventually(t, func() bool { return len(bc.ofType(EventPingEnded)) == 1 }, time.Second, 5*time.Millisecond)
	ended := bc.ofType(EventPingEnded)[0]
	assert.Equal(t, []string{ObserverRoom}, ended.Rooms)
	assert.Equal(t, "S1", ended.Payload)
	assert.Zero(t, w.Pending())
}

func TestOrphanWatcherRejoinCancels(t *testing.T) {
	bc := newRecordingBroadcaster()
	w := NewOrphanWatcher(20*time.Millisecond, nil)
	w.SetBroadcaster(bc)
	defer w.Stop()

	w.SessionRoomAbandoned("S1")
	w.SessionRoomJoined("S1")
	assert.Zero(t, w.Pending())

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, bc.ofType(EventPingEnded))
}

func TestOrphanWatcherSkipsOccupiedRoom(t *testing.T) {
	bc := newRecordingBroadcaster()
	bc.setSize(SessionRoom("S1"), 1)
	w := NewOrphanWatcher(5*time.Millisecond, nil)
	w.SetBroadcaster(bc)
	defer w.Stop()

	w.SessionRoomAbandoned("S1")

	require.Eventually(t, func() bool { return w.Pending() == 0 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, bc.ofType(EventPingEnded))
}

func TestOrphanWatcherRestartKeepsOneTimer(t *testing.T) {
	bc := newRecordingBroadcaster()
	w := NewOrphanWatcher(10*time.Millisecond, nil)
	w.SetBroadcaster(bc)
	defer w.Stop()

	w.SessionRoomAbandoned("S1")
	w.SessionRoomAbandoned("S1")
	assert.Equal(t, 1, w.Pending())

	require.Eventually(t, func() bool { return len(bc.ofType(EventPingEnded)) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, bc.ofType(EventPingEnded), 1)
}

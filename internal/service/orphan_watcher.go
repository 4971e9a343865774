package service

import (
	"sync"
	"time"

	"crimepatrol/internal/logger"

	"go.uber.org/zap"
)

// OrphanWatcher ends sessions whose room was emptied by disconnects. When the last member
// drops, a grace timer starts; if nobody has rejoined when it fires, observers receive
// emergency-ping-ended. Sessions are never resolved here.
type OrphanWatcher struct {
	grace       time.Duration
	broadcaster Broadcaster
	logger      *zap.Logger

	mu     sync.Mutex
	timers map[string]*graceTimer
}

type graceTimer struct {
	timer *time.Timer
}

// NewOrphanWatcher creates a watcher with the given grace period
func NewOrphanWatcher(grace time.Duration, l *zap.Logger) *OrphanWatcher {
	return &OrphanWatcher{
		grace:  grace,
		logger: logger.OrNop(l),
		timers: make(map[string]*graceTimer),
	}
}

// SetBroadcaster sets the broadcaster for WebSocket events
func (w *OrphanWatcher) SetBroadcaster(b Broadcaster) {
	w.broadcaster = b
}

// SessionRoomAbandoned starts (or restarts) the grace timer for sessionID
func (w *OrphanWatcher) SessionRoomAbandoned(sessionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if g, ok := w.timers[sessionID]; ok {
		g.timer.Stop()
	}
	g := &graceTimer{}
	g.timer = time.AfterFunc(w.grace, func() { w.expire(sessionID, g) })
	w.timers[sessionID] = g
	w.logger.Debug("session room abandoned", logger.SessionID(sessionID), zap.Duration("grace", w.grace))
}

// SessionRoomJoined cancels a pending grace timer
func (w *OrphanWatcher) SessionRoomJoined(sessionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if g, ok := w.timers[sessionID]; ok {
		g.timer.Stop()
		delete(w.timers, sessionID)
		w.logger.Debug("session room rejoined", logger.SessionID(sessionID))
	}
}

// Pending reports how many sessions are inside their grace period
func (w *OrphanWatcher) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.timers)
}

// Stop cancels every pending timer
func (w *OrphanWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, g := range w.timers {
		g.timer.Stop()
		delete(w.timers, id)
	}
}

func (w *OrphanWatcher) expire(sessionID string, g *graceTimer) {
	w.mu.Lock()
	if w.timers[sessionID] != g {
		// superseded by a newer abandon or cancelled by a rejoin
		w.mu.Unlock()
		return
	}
	delete(w.timers, sessionID)
	w.mu.Unlock()

	if w.broadcaster == nil {
		return
	}
	if w.broadcaster.RoomSize(SessionRoom(sessionID)) > 0 {
		return
	}
	w.broadcaster.EmitToRooms([]string{ObserverRoom}, "", EventPingEnded, sessionID)
	w.logger.Info("session orphaned", logger.SessionID(sessionID))
}

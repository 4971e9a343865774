package service

import (
	"context"
	"errors"
	"time"

	"crimepatrol/internal/cache"
	"crimepatrol/internal/logger"
	"crimepatrol/internal/model"
	"crimepatrol/internal/repository"

	"go.uber.org/zap"
)

// StaleMonitor announces sessions that stopped pinging. Each silent session is reported
// once; a fresh ping puts it back under watch.
type StaleMonitor struct {
	liveCache   cache.LiveSessionCache
	sessions    SessionLookup
	broadcaster Broadcaster
	staleAfter  time.Duration
	interval    time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// DefaultStaleScanInterval is used when the configured interval is not positive
const DefaultStaleScanInterval = 10 * time.Second

// SessionLookup reads the stored state of one session
type SessionLookup interface {
	GetByID(ctx context.Context, id string) (*model.EmergencySession, error)
}

// NewStaleMonitor creates a monitor over liveCache. When sessions is set, every
// candidate is checked against the store and resolved sessions are dropped silently.
func NewStaleMonitor(liveCache cache.LiveSessionCache, sessions SessionLookup, b Broadcaster, staleAfter, interval time.Duration, l *zap.Logger) *StaleMonitor {
	if interval <= 0 {
		interval = DefaultStaleScanInterval
	}
	return &StaleMonitor{
		liveCache:   liveCache,
		sessions:    sessions,
		broadcaster: b,
		staleAfter:  staleAfter,
		interval:    interval,
		logger:      logger.OrNop(l),
		now:         time.Now,
	}
}

// Run sweeps on every tick until ctx is cancelled
func (m *StaleMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("stale monitor started",
		zap.Duration("stale_after", m.staleAfter),
		zap.Duration("interval", m.interval))
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("stale monitor stopped")
			return
		case <-ticker.C:
			if _, err := m.Sweep(ctx); err != nil {
				m.logger.Warn("stale sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep reports and forgets every session older than the stale window
func (m *StaleMonitor) Sweep(ctx context.Context) (int, error) {
	entries, err := m.liveCache.Stale(ctx, m.now().Add(-m.staleAfter))
	if err != nil {
		return 0, err
	}

	reported := 0
	for _, e := range entries {
		ended, err := m.ended(ctx, e.SessionID)
		if err != nil {
			// left in the set for the next sweep
			m.logger.Warn("stale status check failed", logger.SessionID(e.SessionID), zap.Error(err))
			continue
		}
		if ended {
			if err := m.liveCache.Remove(ctx, e.SessionID); err != nil {
				m.logger.Warn("stale remove failed", logger.SessionID(e.SessionID), zap.Error(err))
			}
			m.logger.Debug("dropped ended session from live set", logger.SessionID(e.SessionID))
			continue
		}

		// Removing first keeps a concurrent sweep from reporting the same session
		if err := m.liveCache.Remove(ctx, e.SessionID); err != nil {
			m.logger.Warn("stale remove failed", logger.SessionID(e.SessionID), zap.Error(err))
			continue
		}
		m.broadcaster.EmitToRooms([]string{ObserverRoom, OperatorRoom}, "", EventPingStale, model.StaleNotice{
			SessionID: e.SessionID,
			LastPing:  e.LastPing,
		})
		m.logger.Info("session went stale", logger.SessionID(e.SessionID), zap.Time("last_ping", e.LastPing))
		reported++
	}
	return reported, nil
}

// ended reports whether the stored session is resolved or gone
func (m *StaleMonitor) ended(ctx context.Context, id string) (bool, error) {
	if m.sessions == nil {
		return false, nil
	}
	session, err := m.sessions.GetByID(ctx, id)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return true, nil
	case err != nil:
		return false, err
	}
	return session.Status == model.SessionResolved, nil
}

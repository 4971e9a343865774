package service

import (
	"context"
	"errors"
	"time"

	"crimepatrol/internal/cache"
	"crimepatrol/internal/geo"
	"crimepatrol/internal/logger"
	"crimepatrol/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultListLimit    = 50
	MaxListLimit        = 200
	DefaultNearbyRadius = 10.0
	MaxNearbyRadius     = 500.0
)

// StatusAll disables the status filter on List
const StatusAll model.SessionStatus = "all"

// SessionStore is the subset of the session repository the service depends on.
// Both store profiles satisfy it.
type SessionStore interface {
	Create(ctx context.Context, session *model.EmergencySession) error
	GetByID(ctx context.Context, id string) (*model.EmergencySession, error)
	UpdateByID(ctx context.Context, id string, patch model.SessionPatch) (*model.EmergencySession, error)
	Query(ctx context.Context, q model.SessionQuery) ([]*model.EmergencySession, error)
}

// EmergencyService owns the session lifecycle and the location update path
type EmergencyService struct {
	live        SessionStore
	durable     SessionStore
	liveCache   cache.LiveSessionCache
	broadcaster Broadcaster
	logger      *zap.Logger

	now   func() time.Time
	newID func() string
}

// NewEmergencyService creates the service. live serves the ping path and reads,
// durable serves operator transitions. liveCache may be nil.
func NewEmergencyService(live, durable SessionStore, liveCache cache.LiveSessionCache, l *zap.Logger) *EmergencyService {
	return &EmergencyService{
		live:      live,
		durable:   durable,
		liveCache: liveCache,
		logger:    logger.OrNop(l),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     func() string { return uuid.New().String() },
	}
}

// SetBroadcaster sets the broadcaster for WebSocket events
func (s *EmergencyService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// Create opens a new pending session and announces it to observers and operators
func (s *EmergencyService) Create(ctx context.Context, req model.CreateSessionRequest, originConnID string) (*model.EmergencySession, error) {
	lat, lng, err := coordinates(req.Latitude, req.Longitude)
	if err != nil {
		return nil, err
	}
	ts, err := s.parseTimestamp(req.Timestamp)
	if err != nil {
		return nil, err
	}

	session := &model.EmergencySession{
		ID:        s.newID(),
		Latitude:  lat,
		Longitude: lng,
		Timestamp: ts,
		LastPing:  ts,
		UserID:    req.UserID,
		Status:    model.SessionPending,
	}
	if err := s.live.Create(ctx, session); err != nil {
		s.logger.Error("create session failed", logger.SessionID(session.ID), zap.Error(err))
		return nil, &StoreError{Op: "create session", Err: err}
	}

	s.touch(ctx, session)
	s.emit([]string{ObserverRoom, OperatorRoom}, originConnID, EventPingCreated, session)
	s.logger.Info("session created", logger.SessionID(session.ID), zap.String("user_id", session.UserID))
	return session, nil
}

// UpdateLocation persists one continuous ping and fans the merged snapshot out.
// Nothing is broadcast unless the write succeeded.
func (s *EmergencyService) UpdateLocation(ctx context.Context, upd model.LocationUpdate, originConnID string) (*model.EmergencySession, error) {
	if upd.SessionID == "" {
		return nil, missing("sessionId")
	}
	lat, lng, err := coordinates(upd.Latitude, upd.Longitude)
	if err != nil {
		return nil, err
	}
	ts, err := s.parseTimestamp(upd.Timestamp)
	if err != nil {
		return nil, err
	}

	session, err := s.live.UpdateByID(ctx, upd.SessionID, model.SessionPatch{
		LastLatitude:  &lat,
		LastLongitude: &lng,
		LastPing:      &ts,
	})
	if err != nil {
		return nil, &StoreError{Op: "update location", Err: err}
	}

	s.touch(ctx, session)
	s.emit(updatedAudience(session.ID), originConnID, EventPingUpdated, session)
	return session, nil
}

// HandleLocationUpdate runs UpdateLocation for a live connection and acks the sender.
// Errors go back to the sender only.
func (s *EmergencyService) HandleLocationUpdate(ctx context.Context, r Replier, upd model.LocationUpdate) {
	session, err := s.UpdateLocation(ctx, upd, r.ConnID())
	if err != nil {
		s.logger.Warn("location update rejected",
			logger.ConnID(r.ConnID()),
			logger.SessionID(upd.SessionID),
			zap.String("code", ErrorCode(err)),
			zap.Error(err))
		r.Reply(EventError, ErrorAckFor(err, upd.SessionID))
		return
	}

	r.Reply(EventLocationUpdated, model.LocationAck{
		SessionID: session.ID,
		Timestamp: session.LastPing.UTC().Format(time.RFC3339Nano),
		Success:   true,
	})
}

// Respond records operatorID as the responder and moves the session to active
func (s *EmergencyService) Respond(ctx context.Context, id, operatorID string) (*model.EmergencySession, error) {
	if operatorID == "" {
		return nil, missing("operatorId")
	}
	now := s.now()
	status := model.SessionActive

	session, err := s.durable.UpdateByID(ctx, id, model.SessionPatch{
		Status:      &status,
		RespondedBy: &operatorID,
		RespondedAt: &now,
	})
	if err != nil {
		return nil, &StoreError{Op: "respond", Err: err}
	}

	s.emit([]string{SessionRoom(id), ObserverRoom, OperatorRoom}, "", EventPingResponded, session)
	s.logger.Info("session responded", logger.SessionID(id), zap.String("operator_id", operatorID))
	return session, nil
}

// Resolve terminates the session. A second call fails with ErrSessionResolved and
// leaves the stored document untouched.
func (s *EmergencyService) Resolve(ctx context.Context, id, operatorID string) (*model.EmergencySession, error) {
	now := s.now()
	status := model.SessionResolved
	patch := model.SessionPatch{Status: &status, ResolvedAt: &now}
	if operatorID != "" {
		patch.ResolvedBy = &operatorID
	}

	session, err := s.durable.UpdateByID(ctx, id, patch)
	if err != nil {
		return nil, &StoreError{Op: "resolve", Err: err}
	}

	if s.liveCache != nil {
		if err := s.liveCache.Remove(ctx, id); err != nil {
			s.logger.Warn("live cache remove failed", logger.SessionID(id), zap.Error(err))
		}
	}
	s.emit(updatedAudience(id), "", EventPingUpdated, session)
	s.logger.Info("session resolved", logger.SessionID(id), zap.String("operator_id", operatorID))
	return session, nil
}

// UpdateStatus is the operator entry point: active responds, resolved resolves
func (s *EmergencyService) UpdateStatus(ctx context.Context, id string, status model.SessionStatus, operatorID string) (*model.EmergencySession, error) {
	switch status {
	case model.SessionActive:
		return s.Respond(ctx, id, operatorID)
	case model.SessionResolved:
		return s.Resolve(ctx, id, operatorID)
	}
	return nil, &ValidationError{Field: "status", Reason: "must be active or resolved"}
}

// Get returns one session
func (s *EmergencyService) Get(ctx context.Context, id string) (*model.EmergencySession, error) {
	session, err := s.live.GetByID(ctx, id)
	if err != nil {
		return nil, &StoreError{Op: "get session", Err: err}
	}
	return session, nil
}

// List returns recent sessions, newest first. An empty status means active.
func (s *EmergencyService) List(ctx context.Context, q model.SessionQuery) ([]*model.EmergencySession, error) {
	switch {
	case q.Status == "":
		q.Status = model.SessionActive
	case q.Status == StatusAll:
		q.Status = ""
	case !q.Status.Valid():
		return nil, &ValidationError{Field: "status", Reason: "unknown status"}
	}
	q.Limit = clampLimit(q.Limit)

	sessions, err := s.live.Query(ctx, q)
	if err != nil {
		return nil, &StoreError{Op: "list sessions", Err: err}
	}
	return sessions, nil
}

// Nearby returns active sessions whose reported origin lies in the box around the point
func (s *EmergencyService) Nearby(ctx context.Context, req model.NearbyRequest) ([]*model.EmergencySession, error) {
	lat, lng, err := coordinates(req.Latitude, req.Longitude)
	if err != nil {
		return nil, err
	}
	radius := req.RadiusKm
	switch {
	case radius == 0:
		radius = DefaultNearbyRadius
	case radius < 0 || radius > MaxNearbyRadius:
		return nil, &ValidationError{Field: "radiusKm", Reason: "out of range"}
	}

	box := geo.BoundingBoxAround(lat, lng, radius)
	sessions, err := s.live.Query(ctx, model.SessionQuery{
		Status: model.SessionActive,
		Box:    &box,
		Limit:  MaxListLimit,
	})
	if err != nil {
		return nil, &StoreError{Op: "nearby sessions", Err: err}
	}
	return sessions, nil
}

// ErrorAckFor builds the sender-only error payload for err
func ErrorAckFor(err error, sessionID string) model.ErrorAck {
	msg := err.Error()
	var se *StoreError
	if errors.As(err, &se) && ErrorCode(err) == CodeStoreUnavailable {
		msg = se.Op + ": store unavailable"
	}
	return model.ErrorAck{Code: ErrorCode(err), Message: msg, SessionID: sessionID}
}

func (s *EmergencyService) parseTimestamp(raw string) (time.Time, error) {
	if raw == "" {
		return s.now(), nil
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, &ValidationError{Field: "timestamp", Reason: "must be RFC 3339"}
	}
	return ts.UTC(), nil
}

func (s *EmergencyService) touch(ctx context.Context, session *model.EmergencySession) {
	if s.liveCache == nil {
		return
	}
	if err := s.liveCache.Touch(ctx, session.ID, session.LastPing); err != nil {
		s.logger.Warn("live cache touch failed", logger.SessionID(session.ID), zap.Error(err))
	}
}

func (s *EmergencyService) emit(rooms []string, exceptConnID, msgType string, payload interface{}) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.EmitToRooms(rooms, exceptConnID, msgType, payload)
}

func updatedAudience(sessionID string) []string {
	return []string{SessionRoom(sessionID), ObserverRoom, OperatorRoom}
}

func coordinates(lat, lng *float64) (float64, float64, error) {
	if lat == nil {
		return 0, 0, missing("latitude")
	}
	if lng == nil {
		return 0, 0, missing("longitude")
	}
	if !geo.ValidCoordinates(*lat, *lng) {
		return 0, 0, &ValidationError{Field: "coordinates", Reason: "latitude must be within [-90, 90] and longitude within [-180, 180]"}
	}
	return *lat, *lng, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	}
	return limit
}

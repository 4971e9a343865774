package model

import "time"

// LocationUpdate is the inbound continuous-ping payload. Pointers distinguish a missing
// coordinate from a legitimate zero.
type LocationUpdate struct {
	SessionID string   `json:"sessionId"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Timestamp string   `json:"timestamp"`
	UserID    string   `json:"userId,omitempty"`
}

// CreateSessionRequest opens a new emergency session
type CreateSessionRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Timestamp string   `json:"timestamp"`
	UserID    string   `json:"userId,omitempty"`
}

// LocationAck confirms a persisted ping to its sender
type LocationAck struct {
	SessionID string `json:"sessionId"`
	Timestamp string `json:"timestamp"`
	Success   bool   `json:"success"`
}

// ErrorAck reports a failed event to its sender only
type ErrorAck struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
}

// NearbyRequest asks for active sessions around a point
type NearbyRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	RadiusKm  float64  `json:"radiusKm"`
}

// StaleNotice tells observers a session has stopped pinging
type StaleNotice struct {
	SessionID string    `json:"sessionId"`
	LastPing  time.Time `json:"lastPing"`
}

package model

import "time"

// SessionStatus is the lifecycle state of an emergency session
type SessionStatus string

const (
	SessionPending  SessionStatus = "pending"
	SessionActive   SessionStatus = "active"
	SessionResolved SessionStatus = "resolved"
)

// Valid reports whether s is a known status
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionPending, SessionActive, SessionResolved:
		return true
	}
	return false
}

// EmergencySession is one emergency-ping episode, stored as a single document keyed by ID
type EmergencySession struct {
	ID            string        `json:"id" bson:"_id"`
	Latitude      float64       `json:"latitude" bson:"latitude"`
	Longitude     float64       `json:"longitude" bson:"longitude"`
	LastLatitude  *float64      `json:"lastLatitude,omitempty" bson:"lastLatitude,omitempty"`
	LastLongitude *float64      `json:"lastLongitude,omitempty" bson:"lastLongitude,omitempty"`
	Timestamp     time.Time     `json:"timestamp" bson:"timestamp"`
	LastPing      time.Time     `json:"lastPing" bson:"lastPing"`
	UserID        string        `json:"userId,omitempty" bson:"userId,omitempty"`
	Status        SessionStatus `json:"status" bson:"status"`
	RespondedBy   string        `json:"respondedBy,omitempty" bson:"respondedBy,omitempty"`
	RespondedAt   *time.Time    `json:"respondedAt,omitempty" bson:"respondedAt,omitempty"`
	ResolvedBy    string        `json:"resolvedBy,omitempty" bson:"resolvedBy,omitempty"`
	ResolvedAt    *time.Time    `json:"resolvedAt,omitempty" bson:"resolvedAt,omitempty"`
}

// SessionPatch is a partial update. Nil fields are left untouched.
type SessionPatch struct {
	LastLatitude  *float64
	LastLongitude *float64
	LastPing      *time.Time
	Status        *SessionStatus
	RespondedBy   *string
	RespondedAt   *time.Time
	ResolvedBy    *string
	ResolvedAt    *time.Time
}

// SessionQuery filters a listing of sessions. Results are ordered by timestamp, newest first.
type SessionQuery struct {
	Status SessionStatus
	Since  *time.Time
	Box    *BoundingBox
	Limit  int
}

// BoundingBox is an inclusive latitude/longitude rectangle
type BoundingBox struct {
	MinLat float64 `json:"minLat"`
	MaxLat float64 `json:"maxLat"`
	MinLng float64 `json:"minLng"`
	MaxLng float64 `json:"maxLng"`
}

// Contains reports whether the point lies inside the box
func (b BoundingBox) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

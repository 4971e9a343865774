package service

// Server to client event names
const (
	EventSessionCreated  = "emergency-session-created"
	EventLocationUpdated = "emergency-location-updated"
	EventError           = "emergency-error"
	EventPingCreated     = "emergency-ping-created"
	EventPingUpdated     = "emergency-ping-updated"
	EventPingResponded   = "emergency-ping-responded"
	EventPingEnded       = "emergency-ping-ended"
	EventPingStale       = "emergency-ping-stale"
	EventPingsByLocation = "emergency-pings-by-location"
)

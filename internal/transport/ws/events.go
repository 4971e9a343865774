package ws

// Client to server event names
const (
	EventJoinSession     = "join-emergency-session"
	EventLeaveSession    = "leave-emergency-session"
	EventLocationUpdate  = "emergency-location-update"
	EventCreateSession   = "emergency-ping"
	EventMapJoin         = "map-join"
	EventMapLeave        = "map-leave"
	EventJoinServices    = "join-emergency-services"
	EventLeaveServices   = "leave-emergency-services"
	EventPingsByLocation = "get-emergency-pings-by-location"
)

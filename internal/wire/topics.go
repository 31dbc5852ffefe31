package wire

// Fixed topic catalog (spec §5). The broker does not support wildcard
// subscriptions, so every publisher and subscriber in the system names
// one of these exactly.
const (
	TopicIncident             = "incident"
	TopicIncidentResolved     = "incident_resolved"
	TopicDroneLocations       = "drone_locations"
	TopicCameraUpdate         = "camera_update"
	TopicAttendingIncident    = "attending_incident"
	TopicSingleDroneDisconnect = "single_drone_disconnect"
)

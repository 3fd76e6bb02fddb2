package model

// Catalog resolves a sensor identifier to its metric profile. Unknown sensor
// types resolve to a usable default profile rather than failing.
type Catalog interface {
	ProfileFor(sensorID string) SensorProfile
}

// Transport is the narrow pub/sub contract the selection manager drives.
// Implementations must be safe to call without holding engine locks; calls
// are fire-and-forget from the engine's point of view.
type Transport interface {
	Subscribe(topic string) error
	Unsubscribe(topic string) error
}

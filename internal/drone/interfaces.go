package drone

import (
	"github.com/gonzalop/cityeye/internal/geo"
	"github.com/gonzalop/cityeye/internal/wire"
)

// Publisher is the narrow publish surface a Drone needs, decoupling this
// package from agentnet.Client the same way camera.Publisher does.
type Publisher interface {
	Publish(topic string, payload wire.Payload, qos uint8, retain bool)
}

// Resolver arbitrates which of several drones converging on the same
// two-drone consensus actually publishes incident_resolved: ResolveOnce
// grants true to exactly the first caller for a given location, false to
// every later one, so siblings still return to Waiting without every one
// of them re-announcing resolution (spec §8 scenario 5: "exactly one
// drone publishes incident_resolved").
type Resolver interface {
	ResolveOnce(loc geo.Location) bool
}

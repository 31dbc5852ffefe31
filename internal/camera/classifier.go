package camera

import (
	"context"

	"github.com/gonzalop/cityeye/internal/wire"
)

// Classifier decides whether an image dropped into a camera's directory
// depicts an incident. internal/classifier implements this against the
// Google Vision label-detection endpoint (spec §6); tests use a stub.
type Classifier interface {
	Classify(ctx context.Context, imagePath string) (bool, error)
}

// Publisher is the narrow slice of agentnet.Client the coordinator needs:
// fire-and-forget publishes of fleet deltas and new incidents. Kept as an
// interface so coordinator tests don't need a live broker connection.
type Publisher interface {
	Publish(topic string, payload wire.Payload, qos uint8, retain bool)
}

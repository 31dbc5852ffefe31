package camera

import "log/slog"

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// Default thresholds per spec's Open Question: both are set equal, which
// makes the chain reaction equivalent to a single sweep from the incident
// location. Kept configurable rather than hard-coded.
const (
	DefaultAreaOfReach        = 0.0025
	DefaultProximityThreshold = 0.0025
	DefaultPoolSize           = 10
)

// Config configures a Coordinator.
type Config struct {
	// Root is the filesystem directory under which each camera gets its
	// own "<root>/<id>" subdirectory.
	Root string

	AreaOfReach        float64
	ProximityThreshold float64

	// PoolSize is the number of workers in the image-classification
	// thread pool.
	PoolSize int

	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.AreaOfReach == 0 {
		c.AreaOfReach = DefaultAreaOfReach
	}
	if c.ProximityThreshold == 0 {
		c.ProximityThreshold = DefaultProximityThreshold
	}
	if c.PoolSize == 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(discard{}, nil))
	}
	return c
}

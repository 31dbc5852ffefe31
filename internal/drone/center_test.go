package drone

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonzalop/cityeye/internal/geo"
)

func TestAddDroneAllocatesLowestFreeID(t *testing.T) {
	c := NewCenter(CenterConfig{ID: 1, Location: geo.New(0, 0)}, Config{MotionTickRate: 10 * time.Millisecond}, &recordingPublisher{})
	defer c.DisconnectAll()

	d0 := c.AddDrone()
	d1 := c.AddDrone()
	assert.Equal(t, uint32(0), d0.ID())
	assert.Equal(t, uint32(1), d1.ID())

	require.NoError(t, c.DisconnectDrone(0))

	d2 := c.AddDrone()
	assert.Equal(t, uint32(0), d2.ID(), "expected reused id 0")
}

func TestDisconnectUnknownDroneFails(t *testing.T) {
	c := NewCenter(CenterConfig{ID: 1, Location: geo.New(0, 0)}, Config{}, &recordingPublisher{})
	err := c.DisconnectDrone(99)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownDrone)
}

func TestDisconnectAllRemovesEveryDrone(t *testing.T) {
	c := NewCenter(CenterConfig{ID: 1, Location: geo.New(0, 0)}, Config{MotionTickRate: 10 * time.Millisecond}, &recordingPublisher{})
	c.AddDrone()
	c.AddDrone()
	c.DisconnectAll()
	assert.Empty(t, c.Drones())
}

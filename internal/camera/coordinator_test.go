package camera

import (
	"context"
	"sync"
	"testing"

	"github.com/gonzalop/cityeye/internal/geo"
	"github.com/gonzalop/cityeye/internal/wire"
)

type recordingPublisher struct {
	mu       sync.Mutex
	payloads []wire.Payload
}

func (p *recordingPublisher) Publish(topic string, payload wire.Payload, qos uint8, retain bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads = append(p.payloads, payload)
}

func (p *recordingPublisher) last() wire.CamerasUpdate {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.payloads[len(p.payloads)-1].(wire.CamerasUpdate)
}

type stubClassifier struct {
	verdict bool
}

func (s stubClassifier) Classify(ctx context.Context, imagePath string) (bool, error) {
	return s.verdict, nil
}

func newTestCoordinator(t *testing.T, areaOfReach, proximity float64) (*Coordinator, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	cfg := Config{
		Root:               t.TempDir(),
		AreaOfReach:        areaOfReach,
		ProximityThreshold: proximity,
		PoolSize:           2,
	}
	co := NewCoordinator(cfg, pub, stubClassifier{})
	t.Cleanup(co.Close)
	return co, pub
}

func TestActivateWithinAreaOfReach(t *testing.T) {
	co, pub := newTestCoordinator(t, 0.0025, 0.0025)

	c1, err := co.AddCamera(geo.New(10e-4, 0))
	if err != nil {
		t.Fatalf("AddCamera: %v", err)
	}
	c2, err := co.AddCamera(geo.New(11e-4, 0))
	if err != nil {
		t.Fatalf("AddCamera: %v", err)
	}

	co.Activate(geo.New(0, 0))

	for _, cam := range co.Cameras() {
		if cam.ID == c1.ID || cam.ID == c2.ID {
			if cam.SleepMode {
				t.Fatalf("camera %d expected to be active", cam.ID)
			}
		}
	}

	update := pub.last()
	if len(update.Cameras) != 2 {
		t.Fatalf("expected 2 cameras in delta, got %d", len(update.Cameras))
	}
}

func TestDistantCameraRemainsAsleep(t *testing.T) {
	co, _ := newTestCoordinator(t, 0.0025, 0.0025)

	co.AddCamera(geo.New(5, 20))
	co.AddCamera(geo.New(10, 20))

	co.Activate(geo.New(0, 0))

	for _, cam := range co.Cameras() {
		if !cam.SleepMode {
			t.Fatalf("camera %d expected to remain asleep", cam.ID)
		}
	}
}

func TestActivateThenDeactivateReturnsToSleep(t *testing.T) {
	co, _ := newTestCoordinator(t, 0.0025, 0.0025)

	loc := geo.New(1, 2)
	co.AddCamera(loc)

	co.Activate(loc)
	for _, cam := range co.Cameras() {
		if cam.SleepMode {
			t.Fatalf("expected camera to be active after Activate")
		}
	}

	co.Deactivate(loc)
	for _, cam := range co.Cameras() {
		if !cam.SleepMode {
			t.Fatalf("expected camera to be asleep after Deactivate")
		}
	}
}

func TestRemoveCameraDeletesDirectory(t *testing.T) {
	co, _ := newTestCoordinator(t, 0.0025, 0.0025)

	cam, err := co.AddCamera(geo.New(1, 1))
	if err != nil {
		t.Fatalf("AddCamera: %v", err)
	}
	if err := co.RemoveCamera(cam.ID); err != nil {
		t.Fatalf("RemoveCamera: %v", err)
	}
	if err := co.RemoveCamera(cam.ID); err != ErrUnknownCamera {
		t.Fatalf("expected ErrUnknownCamera, got %v", err)
	}
}

func TestBootstrapRestoresKnownCameras(t *testing.T) {
	pub := &recordingPublisher{}
	root := t.TempDir()
	cfg := Config{Root: root, PoolSize: 1}
	co := NewCoordinator(cfg, pub, stubClassifier{})
	defer co.Close()

	known := []Camera{
		{ID: 7, Location: geo.New(1, 1), SleepMode: true},
	}
	if err := co.Bootstrap(known); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if len(co.Cameras()) != 1 {
		t.Fatalf("expected 1 restored camera, got %d", len(co.Cameras()))
	}
}

// Package camera implements the spatial camera-fleet coordinator of spec
// §4.2: a set of cameras that flip between sleep and active mode in a
// chain reaction keyed off incident/resolution events, and that turn
// classified images into new incidents.
package camera

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/gonzalop/cityeye/internal/fswatch"
	"github.com/gonzalop/cityeye/internal/geo"
	"github.com/gonzalop/cityeye/internal/wire"
)

// Coordinator owns the in-memory camera set and republishes a
// CamerasUpdate delta whenever the chain reaction flips any camera's
// sleep_mode.
type Coordinator struct {
	cfg        Config
	publisher  Publisher
	classifier Classifier
	pool       *ThreadPool
	log        *slog.Logger

	mu       sync.Mutex
	cameras  map[uint32]Camera
	lastMode map[uint32]bool // sleep_mode as of the last published snapshot
}

// NewCoordinator builds a Coordinator and starts its classification
// thread pool. Call Close when done to stop the pool.
func NewCoordinator(cfg Config, publisher Publisher, classifier Classifier) *Coordinator {
	cfg = cfg.withDefaults()
	return &Coordinator{
		cfg:        cfg,
		publisher:  publisher,
		classifier: classifier,
		pool:       NewThreadPool(cfg.PoolSize),
		log:        cfg.Logger,
		cameras:    make(map[uint32]Camera),
		lastMode:   make(map[uint32]bool),
	}
}

// Close drains the classification pool. It does not touch any camera
// directories.
func (co *Coordinator) Close() {
	co.pool.Close()
}

// Bootstrap reconstructs the in-memory camera set from cameras loaded out
// of persistence, ensuring each one's backing directory exists, and warns
// about any stray "<root>/<id>" directory left over from a camera that no
// longer exists (grounded on rustic_city_eye's camera_system startup
// scan, which rebuilt its fleet from whatever subdirectories were already
// on disk).
func (co *Coordinator) Bootstrap(known []Camera) error {
	co.mu.Lock()
	defer co.mu.Unlock()

	seen := make(map[uint32]bool, len(known))
	for _, cam := range known {
		if cam.Directory == "" {
			cam.Directory = filepath.Join(co.cfg.Root, strconv.FormatUint(uint64(cam.ID), 10))
		}
		if err := createDirectory(cam.Directory); err != nil {
			return &DirectoryError{CameraID: cam.ID, Path: cam.Directory, Err: err}
		}
		co.cameras[cam.ID] = cam
		co.lastMode[cam.ID] = cam.SleepMode
		seen[cam.ID] = true
	}

	entries, err := os.ReadDir(co.cfg.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id, err := strconv.ParseUint(entry.Name(), 10, 32)
		if err != nil {
			continue
		}
		if !seen[uint32(id)] {
			co.log.Warn("camera: orphaned directory with no matching camera", slog.Uint64("id", id))
		}
	}
	return nil
}

// AddCamera registers a new camera at location with a random unique id
// and creates its backing directory.
func (co *Coordinator) AddCamera(location geo.Location) (Camera, error) {
	co.mu.Lock()
	defer co.mu.Unlock()

	var id uint32
	for {
		id = rand.Uint32()
		if _, exists := co.cameras[id]; !exists {
			break
		}
	}

	cam := newCamera(id, location, co.cfg.Root)
	if err := createDirectory(cam.Directory); err != nil {
		return Camera{}, &DirectoryError{CameraID: id, Path: cam.Directory, Err: err}
	}
	co.cameras[id] = cam
	co.lastMode[id] = cam.SleepMode
	return cam, nil
}

// RemoveCamera deletes a camera and its backing directory.
func (co *Coordinator) RemoveCamera(id uint32) error {
	co.mu.Lock()
	defer co.mu.Unlock()

	cam, ok := co.cameras[id]
	if !ok {
		return ErrUnknownCamera
	}
	if err := removeDirectory(cam.Directory); err != nil {
		return &DirectoryError{CameraID: id, Path: cam.Directory, Err: err}
	}
	delete(co.cameras, id)
	delete(co.lastMode, id)
	return nil
}

// Cameras returns a snapshot copy of the current camera set.
func (co *Coordinator) Cameras() []Camera {
	co.mu.Lock()
	defer co.mu.Unlock()
	out := make([]Camera, 0, len(co.cameras))
	for _, cam := range co.cameras {
		out = append(out, cam)
	}
	return out
}

// Activate runs the chain-reaction activation described in spec §4.2 and
// publishes a CamerasUpdate delta if anything flipped.
func (co *Coordinator) Activate(location geo.Location) {
	co.mu.Lock()
	co.chainReaction(location, false)
	co.publishDeltaLocked()
	co.mu.Unlock()
}

// Deactivate runs the symmetric chain-reaction deactivation.
func (co *Coordinator) Deactivate(location geo.Location) {
	co.mu.Lock()
	co.chainReaction(location, true)
	co.publishDeltaLocked()
	co.mu.Unlock()
}

// chainReaction flips every camera reachable from location into
// target sleep_mode, spreading through PROXIMITY_THRESHOLD once the
// initial AREA_OF_REACH sweep has run. Only cameras that actually change
// state become new sources of propagation, which is what makes the
// recursion terminate. Caller must hold co.mu.
func (co *Coordinator) chainReaction(location geo.Location, target bool) {
	frontier := []geo.Location{location}
	radius := co.cfg.AreaOfReach
	for len(frontier) > 0 {
		loc := frontier[0]
		frontier = frontier[1:]

		var flipped []geo.Location
		for id, cam := range co.cameras {
			if cam.SleepMode == target {
				continue
			}
			if !geo.Within(cam.Location, loc, radius) {
				continue
			}
			cam.SleepMode = target
			co.cameras[id] = cam
			flipped = append(flipped, cam.Location)
		}
		frontier = append(frontier, flipped...)
		radius = co.cfg.ProximityThreshold
	}
}

// publishDeltaLocked publishes a CamerasUpdate containing only the
// cameras whose sleep_mode differs from the last published snapshot.
// Caller must hold co.mu.
func (co *Coordinator) publishDeltaLocked() {
	var delta []wire.CameraSnapshot
	for id, cam := range co.cameras {
		if co.lastMode[id] == cam.SleepMode {
			continue
		}
		co.lastMode[id] = cam.SleepMode
		delta = append(delta, wire.CameraSnapshot{ID: cam.ID, Location: cam.Location, SleepMode: cam.SleepMode})
	}
	if len(delta) == 0 {
		return
	}
	co.publisher.Publish(wire.TopicCameraUpdate, wire.CamerasUpdate{Cameras: delta}, wire.QoS1, false)
}

// HandleIncident is the incident-topic handler: it activates the chain
// reaction at the incident's location.
func (co *Coordinator) HandleIncident(payload wire.IncidentLocation) {
	co.Activate(payload.Location)
}

// HandleIncidentResolved is the incident_resolved-topic handler: it
// deactivates the chain reaction at the resolved incident's location.
func (co *Coordinator) HandleIncidentResolved(payload wire.IncidentLocation) {
	co.Deactivate(payload.Location)
}

// HandleFSEvent routes a filesystem-watcher event for a new file to the
// classification pool when its extension looks like an image, per spec
// §4.2. cameraLocation is resolved by the caller from the event's parent
// directory.
func (co *Coordinator) HandleFSEvent(ev fswatch.Event, cameraLocation geo.Location) {
	if ev.Kind != fswatch.NewFile {
		return
	}
	if !isImagePath(ev.Path) {
		return
	}
	co.pool.Submit(func() {
		co.classifyAndReport(ev.Path, cameraLocation)
	})
}

func (co *Coordinator) classifyAndReport(imagePath string, location geo.Location) {
	ctx := context.Background()
	isIncident, err := co.classifier.Classify(ctx, imagePath)
	if err != nil {
		co.log.Error("camera: classification failed", slog.String("path", imagePath), slog.Any("error", err))
		return
	}
	if !isIncident {
		return
	}
	co.publisher.Publish(wire.TopicIncident, wire.IncidentLocation{Location: location}, wire.QoS1, false)
}

func isImagePath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png":
		return true
	default:
		return false
	}
}

// Command camera-system runs the camera fleet coordinator described in
// spec §4.6: it watches each camera's snapshot directory, classifies new
// images, and reacts to incident/incident_resolved broadcasts by chain-
// activating or deactivating the fleet.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/gonzalop/cityeye/internal/agentnet"
	"github.com/gonzalop/cityeye/internal/camera"
	"github.com/gonzalop/cityeye/internal/classifier"
	"github.com/gonzalop/cityeye/internal/fswatch"
	"github.com/gonzalop/cityeye/internal/geo"
	"github.com/gonzalop/cityeye/internal/persistence"
	"github.com/gonzalop/cityeye/internal/wire"
)

// clientPublisher adapts *agentnet.Client to camera.Publisher's
// fire-and-forget signature: the coordinator does not wait on acks.
type clientPublisher struct {
	client *agentnet.Client
}

func (p clientPublisher) Publish(topic string, payload wire.Payload, qos uint8, retain bool) {
	p.client.Publish(topic, payload, qos, retain)
}

func main() {
	_ = godotenv.Load()

	server := flag.String("server", "127.0.0.1:5000", "broker host:port")
	root := flag.String("root", "./camera_data", "root directory for per-camera snapshot folders")
	persistPath := flag.String("persistence", "./persistence.json", "persistence.json path")
	keywordsPath := flag.String("keywords", "./incident_keywords.txt", "newline-delimited incident keyword file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	keywords, err := classifier.LoadKeywords(*keywordsPath)
	if err != nil {
		logger.Error("loading incident keywords", slog.Any("error", err))
		os.Exit(1)
	}
	vision, err := classifier.NewFromEnv(keywords)
	if err != nil {
		logger.Error("camera coordinator startup: classifier unavailable", slog.Any("error", err))
		os.Exit(1)
	}

	store, err := persistence.NewStore(*persistPath)
	if err != nil {
		logger.Error("opening persistence store", slog.Any("error", err))
		os.Exit(1)
	}
	state, err := store.Load()
	if err != nil && err != persistence.ErrNotFound {
		logger.Error("loading persisted state", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client, _, err := agentnet.Dial(ctx, agentnet.Config{
		Server:   *server,
		ClientID: "camera_system",
		Logger:   logger,
	})
	if err != nil {
		logger.Error("connecting to broker", slog.Any("error", err))
		os.Exit(1)
	}
	defer client.Disconnect(context.Background())

	pub := clientPublisher{client: client}
	co := camera.NewCoordinator(camera.Config{Root: *root, Logger: logger}, pub, vision)
	defer co.Close()

	known := make([]camera.Camera, 0, len(state.Cameras))
	for _, rec := range state.Cameras {
		known = append(known, camera.Camera{
			ID:        rec.ID,
			Location:  geo.New(rec.Lat, rec.Lon),
			SleepMode: rec.SleepMode,
		})
	}
	if err := co.Bootstrap(known); err != nil {
		logger.Error("bootstrapping cameras", slog.Any("error", err))
		os.Exit(1)
	}

	if err := client.Subscribe(wire.TopicIncident, wire.QoS1).Wait(ctx); err != nil {
		logger.Error("subscribing to incident", slog.Any("error", err))
		os.Exit(1)
	}
	if err := client.Subscribe(wire.TopicIncidentResolved, wire.QoS1).Wait(ctx); err != nil {
		logger.Error("subscribing to incident_resolved", slog.Any("error", err))
		os.Exit(1)
	}

	watcher, err := fswatch.New(*root, time.Second, logger)
	if err != nil {
		logger.Error("starting filesystem watcher", slog.Any("error", err))
		os.Exit(1)
	}
	defer watcher.Close()

	go runMessageLoop(ctx, client, co)
	go runWatchLoop(watcher, co)

	<-ctx.Done()
	persistCameras(store, co, state)
}

func runMessageLoop(ctx context.Context, client *agentnet.Client, co *camera.Coordinator) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-client.Inbound:
			if !ok {
				return
			}
			switch msg.Topic {
			case wire.TopicIncident:
				if il, ok := msg.Payload.(wire.IncidentLocation); ok {
					co.HandleIncident(il)
				}
			case wire.TopicIncidentResolved:
				if lp, ok := msg.Payload.(wire.LocationPayload); ok {
					co.HandleIncidentResolved(wire.IncidentLocation{Location: lp.Location})
				}
			}
		}
	}
}

func runWatchLoop(watcher *fswatch.Watcher, co *camera.Coordinator) {
	for ev := range watcher.Events() {
		id, ok := cameraIDFromPath(ev.Path)
		if !ok {
			continue
		}
		for _, cam := range co.Cameras() {
			if cam.ID == id {
				co.HandleFSEvent(ev, cam.Location)
				break
			}
		}
	}
}

// cameraIDFromPath reads a camera id from the name of a watched path's
// parent directory, which is <id> for a file at "<root>/<id>/<file>".
func cameraIDFromPath(path string) (uint32, bool) {
	dir := filepath.Dir(path)
	component := filepath.Base(dir)
	id, err := strconv.ParseUint(strings.TrimSpace(component), 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(id), true
}

func persistCameras(store *persistence.Store, co *camera.Coordinator, state persistence.State) {
	records := make([]persistence.CameraRecord, 0, len(co.Cameras()))
	for _, cam := range co.Cameras() {
		records = append(records, persistence.CameraRecord{
			ID:        cam.ID,
			Lat:       cam.Location.Lat,
			Lon:       cam.Location.Lon,
			SleepMode: cam.SleepMode,
		})
	}
	state.Cameras = records
	if err := store.Save(state); err != nil {
		slog.Default().Error("saving persisted camera state", slog.Any("error", err))
	}
}

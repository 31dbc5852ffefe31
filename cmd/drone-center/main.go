// Command drone-center runs one DroneCenter supervisor described in spec
// §4.7: it owns a fleet of simulated drones, fans out incident/
// attending_incident/incident_resolved broadcasts to them, and services
// single_drone_disconnect requests from the monitoring app.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gonzalop/cityeye/internal/agentnet"
	"github.com/gonzalop/cityeye/internal/drone"
	"github.com/gonzalop/cityeye/internal/geo"
	"github.com/gonzalop/cityeye/internal/persistence"
	"github.com/gonzalop/cityeye/internal/wire"
)

type clientPublisher struct {
	client *agentnet.Client
}

func (p clientPublisher) Publish(topic string, payload wire.Payload, qos uint8, retain bool) {
	p.client.Publish(topic, payload, qos, retain)
}

func main() {
	server := flag.String("server", "127.0.0.1:5000", "broker host:port")
	centerID := flag.Uint("id", 0, "drone center id")
	lat := flag.Float64("lat", 0, "center latitude")
	lon := flag.Float64("lon", 0, "center longitude")
	configPath := flag.String("config", "./drone_config.json", "drone_config.json path")
	persistPath := flag.String("persistence", "./persistence.json", "persistence.json path")
	fleetSize := flag.Int("fleet", 2, "number of drones to launch when no persisted fleet exists")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	droneCfg, err := drone.LoadConfigFile(*configPath)
	if err != nil {
		logger.Warn("using default drone config", slog.Any("error", err))
		droneCfg = drone.Config{}
	}
	droneCfg.Logger = logger

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
		ClientID: "drone_center",
		Logger:   logger,
	})
	if err != nil {
		logger.Error("connecting to broker", slog.Any("error", err))
		os.Exit(1)
	}
	defer client.Disconnect(context.Background())

	centerCfg := drone.CenterConfig{
		ID:         uint32(*centerID),
		Location:   geo.New(*lat, *lon),
		ConfigPath: *configPath,
		Address:    *server,
	}
	if rec, ok := findCenterRecord(state.DroneCenters, uint32(*centerID)); ok {
		centerCfg.Location = geo.New(rec.Lat, rec.Lon)
		centerCfg.ConfigPath = rec.ConfigPath
		centerCfg.Address = rec.Address
	}

	pub := clientPublisher{client: client}
	center := drone.NewCenter(centerCfg, droneCfg, pub)
	defer center.DisconnectAll()

	restored := 0
	for _, rec := range state.Drones {
		if _, err := center.AddExistingDrone(rec.ID, geo.New(rec.Lat, rec.Lon)); err != nil {
			logger.Warn("restoring drone", slog.Any("error", err))
			continue
		}
		restored++
	}
	for i := restored; i < *fleetSize; i++ {
		center.AddDrone()
	}

	for _, rec := range state.Incidents {
		center.RestoreIncident(geo.New(rec.Lat, rec.Lon))
	}

	for _, topic := range []string{wire.TopicIncident, wire.TopicAttendingIncident, wire.TopicIncidentResolved, wire.TopicSingleDroneDisconnect} {
		if err := client.Subscribe(topic, wire.QoS1).Wait(ctx); err != nil {
			logger.Error("subscribing", slog.String("topic", topic), slog.Any("error", err))
			os.Exit(1)
		}
	}

	go runMessageLoop(ctx, client, center)

	<-ctx.Done()
	persistFleet(store, center, centerCfg, state)
}

func runMessageLoop(ctx context.Context, client *agentnet.Client, center *drone.Center) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-client.Inbound:
			if !ok {
				return
			}
			switch msg.Topic {
			case wire.TopicIncident, wire.TopicAttendingIncident, wire.TopicIncidentResolved:
				center.Dispatch(msg.Payload)
			case wire.TopicSingleDroneDisconnect:
				if sd, ok := msg.Payload.(wire.SingleDroneDisconnect); ok {
					center.HandleSingleDroneDisconnect(sd)
				}
			}
		}
	}
}

func findCenterRecord(records []persistence.DroneCenterRecord, id uint32) (persistence.DroneCenterRecord, bool) {
	for _, rec := range records {
		if rec.ID == id {
			return rec, true
		}
	}
	return persistence.DroneCenterRecord{}, false
}

func persistFleet(store *persistence.Store, center *drone.Center, cfg drone.CenterConfig, state persistence.State) {
	drones := make([]persistence.DroneRecord, 0)
	for _, d := range center.Drones() {
		current, _, _, _ := d.Snapshot()
		drones = append(drones, persistence.DroneRecord{ID: d.ID(), Lat: current.Lat, Lon: current.Lon})
	}
	state.Drones = drones

	others := make([]persistence.DroneCenterRecord, 0, len(state.DroneCenters))
	for _, rec := range state.DroneCenters {
		if rec.ID != cfg.ID {
			others = append(others, rec)
		}
	}
	state.DroneCenters = append(others, persistence.DroneCenterRecord{
		ID:         cfg.ID,
		Lat:        cfg.Location.Lat,
		Lon:        cfg.Location.Lon,
		ConfigPath: cfg.ConfigPath,
		Address:    cfg.Address,
	})

	incidents := make([]persistence.IncidentRecord, 0)
	for _, loc := range center.OpenIncidents() {
		incidents = append(incidents, persistence.IncidentRecord{Lat: loc.Lat, Lon: loc.Lon})
	}
	state.Incidents = incidents

	if err := store.Save(state); err != nil {
		slog.Default().Error("saving persisted drone state", slog.Any("error", err))
	}
}

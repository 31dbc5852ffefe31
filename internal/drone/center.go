package drone

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gonzalop/cityeye/internal/geo"
	"github.com/gonzalop/cityeye/internal/wire"
)

// CenterConfig describes one drone center's identity and persisted
// location, mirroring a persistence.DroneCenterRecord.
type CenterConfig struct {
	ID         uint32
	Location   geo.Location
	ConfigPath string
	Address    string
}

// Center is the "DroneCenter supervisor" of spec §4.7: it owns a map of
// drones by id exclusively, allocates the lowest free id on AddDrone, and
// fans out broker traffic to every drone it owns.
type Center struct {
	cfg       CenterConfig
	droneCfg  Config
	publisher Publisher
	log       *slog.Logger

	mu     sync.Mutex
	drones map[uint32]*Drone

	resolveMu sync.Mutex
	resolved  map[geo.Location]bool

	incidentMu sync.Mutex
	incidents  map[geo.Location]bool
}

// NewCenter constructs a Center with no drones yet started.
func NewCenter(cfg CenterConfig, droneCfg Config, publisher Publisher) *Center {
	droneCfg = droneCfg.withDefaults()
	return &Center{
		cfg:       cfg,
		droneCfg:  droneCfg,
		publisher: publisher,
		log:       droneCfg.Logger.With(slog.Uint64("center_id", uint64(cfg.ID))),
		drones:    make(map[uint32]*Drone),
		resolved:  make(map[geo.Location]bool),
		incidents: make(map[geo.Location]bool),
	}
}

// ResolveOnce implements Resolver: it grants the first caller for a given
// location, denying every subsequent one until the location sees a fresh
// incident.
func (c *Center) ResolveOnce(loc geo.Location) bool {
	c.resolveMu.Lock()
	defer c.resolveMu.Unlock()
	if c.resolved[loc] {
		return false
	}
	c.resolved[loc] = true
	return true
}

// AddDrone allocates the lowest free id starting at 0, creates the drone
// parked at the center's location, and starts its three tasks.
func (c *Center) AddDrone() *Drone {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.lowestFreeIDLocked()
	d := NewDrone(id, c.cfg.Location, c.droneCfg, c.publisher, c)
	c.drones[id] = d
	d.Start()
	c.log.Info("drone added", slog.Uint64("drone_id", uint64(id)))
	return d
}

// AddExistingDrone restores a drone at a previously-persisted position
// under a previously-assigned id (restart recovery, spec §6). It fails if
// the id is already taken.
func (c *Center) AddExistingDrone(id uint32, at geo.Location) (*Drone, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.drones[id]; exists {
		return nil, fmt.Errorf("drone: id %d already in use", id)
	}
	d := NewDrone(id, c.cfg.Location, c.droneCfg, c.publisher, c)
	d.current = at
	d.target = at
	c.drones[id] = d
	d.Start()
	return d, nil
}

func (c *Center) lowestFreeIDLocked() uint32 {
	var id uint32
	for {
		if _, taken := c.drones[id]; !taken {
			return id
		}
		id++
	}
}

// DisconnectDrone stops and removes a single drone, per spec §4.7
// "disconnect_drone(id) sends the signal only to that drone".
func (c *Center) DisconnectDrone(id uint32) error {
	c.mu.Lock()
	d, ok := c.drones[id]
	if ok {
		delete(c.drones, id)
	}
	c.mu.Unlock()

	if !ok {
		return ErrUnknownDrone
	}
	d.Stop()
	c.log.Info("drone disconnected", slog.Uint64("drone_id", uint64(id)))
	return nil
}

// DisconnectAll stops and removes every drone the center owns.
func (c *Center) DisconnectAll() {
	c.mu.Lock()
	all := make([]*Drone, 0, len(c.drones))
	for id, d := range c.drones {
		all = append(all, d)
		delete(c.drones, id)
	}
	c.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(len(all))
	for _, d := range all {
		d := d
		go func() {
			defer wg.Done()
			d.Stop()
		}()
	}
	wg.Wait()
	c.log.Info("all drones disconnected")
}

// Drones returns a snapshot slice of the drones currently owned.
func (c *Center) Drones() []*Drone {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Drone, 0, len(c.drones))
	for _, d := range c.drones {
		out = append(out, d)
	}
	return out
}

// Dispatch delivers an inbound publication to every drone the center owns
// — the fan-out a real broker subscription would otherwise provide
// per-connection — and resets the resolution arbiter whenever a fresh
// incident is announced at a location, so a later incident at the same
// spot can be resolved again. It also tracks the set of open incidents for
// restart recovery (spec §6): a location is open from the moment an
// incident is announced until its incident_resolved arrives.
func (c *Center) Dispatch(payload wire.Payload) {
	switch p := payload.(type) {
	case wire.IncidentLocation:
		c.resolveMu.Lock()
		delete(c.resolved, p.Location)
		c.resolveMu.Unlock()

		c.incidentMu.Lock()
		c.incidents[p.Location] = true
		c.incidentMu.Unlock()
	case wire.LocationPayload:
		c.incidentMu.Lock()
		delete(c.incidents, p.Location)
		c.incidentMu.Unlock()
	}
	for _, d := range c.Drones() {
		d.Deliver(payload)
	}
}

// OpenIncidents returns the locations currently announced but not yet
// resolved, for persisting into persistence.json's incidents list.
func (c *Center) OpenIncidents() []geo.Location {
	c.incidentMu.Lock()
	defer c.incidentMu.Unlock()
	out := make([]geo.Location, 0, len(c.incidents))
	for loc := range c.incidents {
		out = append(out, loc)
	}
	return out
}

// RestoreIncident re-announces a previously-persisted open incident to the
// fleet on startup (restart recovery, spec §6), exactly as if a fresh
// incident had just been dispatched at that location.
func (c *Center) RestoreIncident(loc geo.Location) {
	c.Dispatch(wire.IncidentLocation{Location: loc})
}

// HandleSingleDroneDisconnect services the single_drone_disconnect topic
// (spec §5): the monitoring app asks one specific drone to leave the
// fleet.
func (c *Center) HandleSingleDroneDisconnect(payload wire.SingleDroneDisconnect) {
	if err := c.DisconnectDrone(payload.DroneID); err != nil {
		c.log.Warn("disconnect requested for unknown drone", slog.Uint64("drone_id", uint64(payload.DroneID)))
	}
}

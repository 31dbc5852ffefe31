package drone

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gonzalop/cityeye/internal/geo"
	"github.com/gonzalop/cityeye/internal/wire"
)

// attendance tracks how many "attending_incident" broadcasts a drone has
// observed for an incident it has itself responded to.
type attendance struct {
	count int
}

// Drone is one simulated unit: a shared mutable record (spec §4.7) driven
// by three cooperating tasks — battery, motion, and messaging — each its
// own goroutine, guarded by a single mutex that is never held across a
// suspension point.
type Drone struct {
	id            uint32
	centerLoc     geo.Location
	cfg           Config
	publisher     Publisher
	resolver      Resolver
	log           *slog.Logger

	mu        sync.Mutex
	current   geo.Location
	target    geo.Location
	state     State
	battery   int
	attending map[geo.Location]*attendance

	lastDischarge time.Time
	lastCharge    time.Time

	incoming chan wire.Payload
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewDrone constructs a Drone parked at its center location with a full
// battery, not yet started. resolver may be nil, in which case the drone
// always publishes its own resolution (only safe for single-drone tests).
func NewDrone(id uint32, centerLoc geo.Location, cfg Config, publisher Publisher, resolver Resolver) *Drone {
	cfg = cfg.withDefaults()
	now := time.Now()
	return &Drone{
		id:            id,
		centerLoc:     centerLoc,
		cfg:           cfg,
		publisher:     publisher,
		resolver:      resolver,
		log:           cfg.Logger.With(slog.Uint64("drone_id", uint64(id))),
		current:       centerLoc,
		target:        centerLoc,
		state:         StateWaiting,
		battery:       cfg.ResumeBatteryLevel,
		attending:     make(map[geo.Location]*attendance),
		lastDischarge: now,
		lastCharge:    now,
		incoming:      make(chan wire.Payload, 16),
		stop:          make(chan struct{}),
	}
}

// ID returns the drone's id.
func (d *Drone) ID() uint32 { return d.id }

// Start launches the battery, motion, and messaging tasks.
func (d *Drone) Start() {
	d.wg.Add(3)
	go d.batteryTask()
	go d.motionTask()
	go d.messageTask()
}

// Stop signals all three tasks to terminate and waits for them to exit.
func (d *Drone) Stop() {
	select {
	case <-d.stop:
		return
	default:
		close(d.stop)
	}
	d.wg.Wait()
}

// Deliver feeds an inbound publication to the drone's message task. It
// blocks while the incoming buffer is full; if the drone has already
// stopped, the message is dropped.
func (d *Drone) Deliver(payload wire.Payload) {
	select {
	case d.incoming <- payload:
	case <-d.stop:
	}
}

// Snapshot returns a consistent copy of the drone's externally-visible
// state, used for persistence and the drone_locations publication.
func (d *Drone) Snapshot() (current, target geo.Location, state State, battery int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current, d.target, d.state, d.battery
}

func (d *Drone) publishLocation(current, target geo.Location) {
	d.publisher.Publish(wire.TopicDroneLocations, wire.DroneLocation{
		ID:      d.id,
		Current: current,
		Target:  target,
	}, wire.QoS0, false)
}

// batteryTask implements the discharge/charge ticking of spec §4.7: every
// tick in Waiting, once discharge_rate_ms has elapsed, decrement battery by
// one, transitioning to LowBattery at the threshold; symmetric increment
// while Charging.
func (d *Drone) batteryTask() {
	defer d.wg.Done()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-d.stop:
			return
		case now := <-ticker.C:
			d.tickBattery(now)
		}
	}
}

func (d *Drone) tickBattery(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case StateWaiting:
		if now.Sub(d.lastDischarge) >= time.Duration(d.cfg.DischargeRateMillis)*time.Millisecond {
			d.lastDischarge = now
			d.battery--
			if d.battery <= LowBatteryThreshold {
				d.log.Info("battery low, returning to center", slog.Int("battery", d.battery))
				d.state = StateLowBattery
				d.target = d.centerLoc
				go d.publishLocation(d.current, d.centerLoc)
			}
		}
	case StateCharging:
		if now.Sub(d.lastCharge) >= time.Duration(d.cfg.ChargeRateMillis)*time.Millisecond {
			d.lastCharge = now
			d.battery++
			if d.battery >= d.cfg.ResumeBatteryLevel {
				d.battery = d.cfg.ResumeBatteryLevel
				d.state = StateWaiting
				d.log.Info("battery resumed, returning to patrol")
			}
		}
	}
}

// motionTask runs at ~2 Hz, stepping current toward target and, in
// Waiting, picking new patrol targets once the previous one is reached.
func (d *Drone) motionTask() {
	defer d.wg.Done()
	ticker := time.NewTicker(d.cfg.MotionTickRate)
	defer ticker.Stop()

	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			d.tickMotion()
		}
	}
}

func (d *Drone) tickMotion() {
	d.mu.Lock()
	current := d.current
	target := d.target
	state := d.state
	d.mu.Unlock()

	if roughlyEqual(current, target) {
		d.onArrival(state, target)
		return
	}

	next, arrived := step(current, target)
	d.mu.Lock()
	d.current = next
	d.mu.Unlock()

	if arrived {
		d.onArrival(state, target)
	}
}

// onArrival fires the state-specific arrival behavior once current has
// snapped to target.
func (d *Drone) onArrival(state State, target geo.Location) {
	switch state {
	case StateWaiting:
		newTarget := d.patrolTarget()
		d.mu.Lock()
		d.target = newTarget
		d.mu.Unlock()
		d.publishLocation(target, newTarget)
	case StateAttending:
		d.publisher.Publish(wire.TopicAttendingIncident, wire.AttendingIncident{Location: target}, wire.QoS1, false)
	case StateLowBattery:
		d.mu.Lock()
		d.state = StateCharging
		d.lastCharge = time.Now()
		d.mu.Unlock()
		d.log.Info("arrived at center, charging")
	}
}

// patrolTarget picks a new point on the operation-radius circle, per the
// angle formula in spec §4.7.
func (d *Drone) patrolTarget() geo.Location {
	angle := math.Mod(float64(time.Now().UnixMilli())*0.6/1000, 2*math.Pi)
	return geo.New(
		d.centerLoc.Lat+d.cfg.OperationRadius*math.Cos(angle),
		d.centerLoc.Lon+d.cfg.OperationRadius*math.Sin(angle),
	)
}

// step advances current toward target by DroneSpeed, snapping to target
// once within speed*0.6 (spec §4.7).
func step(current, target geo.Location) (next geo.Location, arrived bool) {
	dLat := target.Lat - current.Lat
	dLon := target.Lon - current.Lon
	dist := math.Sqrt(dLat*dLat + dLon*dLon)
	if dist < DroneSpeed*0.6 {
		return target, true
	}
	return geo.New(
		current.Lat+(dLat/dist)*DroneSpeed,
		current.Lon+(dLon/dist)*DroneSpeed,
	), false
}

// roughlyEqual compares two locations rounded to two decimals, matching
// the Waiting-state "current ≈ target" check in spec §4.7.
func roughlyEqual(a, b geo.Location) bool {
	round := func(f float64) float64 { return math.Round(f*100) / 100 }
	return round(a.Lat) == round(b.Lat) && round(a.Lon) == round(b.Lon)
}

// messageTask subscribes (logically — delivery comes via Deliver) to
// incident, attending_incident, and incident_resolved, driving the
// Waiting↔Attending transitions and the two-drone consensus described in
// spec §4.7 and the "more than two attendees" resolution recorded in
// DESIGN.md.
func (d *Drone) messageTask() {
	defer d.wg.Done()
	for {
		select {
		case <-d.stop:
			return
		case payload := <-d.incoming:
			d.handleMessage(payload)
		}
	}
}

func (d *Drone) handleMessage(payload wire.Payload) {
	switch p := payload.(type) {
	case wire.IncidentLocation:
		d.handleIncident(p.Location)
	case wire.AttendingIncident:
		d.handleAttendingIncident(p.Location)
	case wire.LocationPayload:
		d.handleIncidentResolved(p.Location)
	}
}

func (d *Drone) handleIncident(loc geo.Location) {
	d.mu.Lock()
	if d.state != StateWaiting {
		d.mu.Unlock()
		return
	}
	d.state = StateAttending
	d.target = loc
	d.attending[loc] = &attendance{count: 0}
	current := d.current
	d.mu.Unlock()

	d.log.Info("attending incident", slog.Float64("lat", loc.Lat), slog.Float64("lon", loc.Lon))
	d.publishLocation(current, loc)
}

func (d *Drone) handleAttendingIncident(loc geo.Location) {
	d.mu.Lock()
	rec, ok := d.attending[loc]
	if !ok {
		d.mu.Unlock()
		return
	}
	rec.count++
	reached := rec.count >= 2
	d.mu.Unlock()

	if reached {
		go d.resolveIncident(loc)
	}
}

// resolveIncident simulates the 10-second on-scene handling window before
// announcing resolution, run off the message loop so other topics keep
// being processed while it sleeps.
func (d *Drone) resolveIncident(loc geo.Location) {
	select {
	case <-time.After(d.cfg.ResolveDelay):
	case <-d.stop:
		return
	}

	if d.resolver == nil || d.resolver.ResolveOnce(loc) {
		d.publisher.Publish(wire.TopicIncidentResolved, wire.LocationPayload{Location: loc}, wire.QoS1, false)
	}

	d.mu.Lock()
	delete(d.attending, loc)
	if d.state == StateAttending && d.target.Equal(loc) {
		d.state = StateWaiting
	}
	d.mu.Unlock()
}

func (d *Drone) handleIncidentResolved(loc geo.Location) {
	d.mu.Lock()
	_, wasAttending := d.attending[loc]
	delete(d.attending, loc)
	if wasAttending && d.state == StateAttending && d.target.Equal(loc) {
		d.state = StateWaiting
	}
	d.mu.Unlock()
}

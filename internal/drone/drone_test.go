package drone

import (
	"sync"
	"testing"
	"time"

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

func (p *recordingPublisher) count(match func(wire.Payload) bool) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, pl := range p.payloads {
		if match(pl) {
			n++
		}
	}
	return n
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestIncidentMovesDroneToAttending(t *testing.T) {
	pub := &recordingPublisher{}
	cfg := Config{MotionTickRate: 10 * time.Millisecond}
	d := NewDrone(0, geo.New(0, 0), cfg, pub, nil)
	d.Start()
	defer d.Stop()

	d.Deliver(wire.IncidentLocation{Location: geo.New(5, 5)})

	waitFor(t, time.Second, func() bool {
		_, _, state, _ := d.Snapshot()
		return state == StateAttending
	})

	_, target, _, _ := d.Snapshot()
	if target != geo.New(5, 5) {
		t.Fatalf("expected target to be incident location, got %+v", target)
	}
}

func TestWaitingDroneIgnoresSecondIncidentWhileAttending(t *testing.T) {
	pub := &recordingPublisher{}
	cfg := Config{MotionTickRate: 10 * time.Millisecond}
	d := NewDrone(0, geo.New(0, 0), cfg, pub, nil)
	d.Start()
	defer d.Stop()

	d.Deliver(wire.IncidentLocation{Location: geo.New(5, 5)})
	waitFor(t, time.Second, func() bool {
		_, _, state, _ := d.Snapshot()
		return state == StateAttending
	})

	d.Deliver(wire.IncidentLocation{Location: geo.New(9, 9)})
	time.Sleep(50 * time.Millisecond)

	_, target, _, _ := d.Snapshot()
	if target != geo.New(5, 5) {
		t.Fatalf("expected drone to keep attending first incident, target=%+v", target)
	}
}

func TestConsensusOfTwoResolvesIncident(t *testing.T) {
	pub := &recordingPublisher{}
	cfg := Config{MotionTickRate: 10 * time.Millisecond, ResolveDelay: 20 * time.Millisecond}
	d := NewDrone(0, geo.New(0, 0), cfg, pub, nil)
	d.Start()
	defer d.Stop()

	loc := geo.New(3, 3)
	d.Deliver(wire.IncidentLocation{Location: loc})
	waitFor(t, time.Second, func() bool {
		_, _, state, _ := d.Snapshot()
		return state == StateAttending
	})

	d.Deliver(wire.AttendingIncident{Location: loc})
	d.Deliver(wire.AttendingIncident{Location: loc})

	waitFor(t, time.Second, func() bool {
		return pub.count(func(p wire.Payload) bool {
			lp, ok := p.(wire.LocationPayload)
			return ok && lp.Location == loc
		}) == 1
	})

	waitFor(t, time.Second, func() bool {
		_, _, state, _ := d.Snapshot()
		return state == StateWaiting
	})
}

func TestTwoDronesConsensusOnlyOneResolves(t *testing.T) {
	pub := &recordingPublisher{}
	center := NewCenter(CenterConfig{ID: 1, Location: geo.New(0, 0)}, Config{
		MotionTickRate: 10 * time.Millisecond,
		ResolveDelay:   20 * time.Millisecond,
	}, pub)
	defer center.DisconnectAll()

	d0 := center.AddDrone()
	d1 := center.AddDrone()

	loc := geo.New(1, 1)
	center.Dispatch(wire.IncidentLocation{Location: loc})

	waitFor(t, time.Second, func() bool {
		_, _, s0, _ := d0.Snapshot()
		_, _, s1, _ := d1.Snapshot()
		return s0 == StateAttending && s1 == StateAttending
	})

	center.Dispatch(wire.AttendingIncident{Location: loc})
	center.Dispatch(wire.AttendingIncident{Location: loc})

	waitFor(t, time.Second, func() bool {
		_, _, s0, _ := d0.Snapshot()
		_, _, s1, _ := d1.Snapshot()
		return s0 == StateWaiting && s1 == StateWaiting
	})

	resolvedCount := pub.count(func(p wire.Payload) bool {
		lp, ok := p.(wire.LocationPayload)
		return ok && lp.Location == loc
	})
	if resolvedCount != 1 {
		t.Fatalf("expected exactly one incident_resolved publication, got %d", resolvedCount)
	}
}

func TestPatrolTargetStaysOnOperationRadius(t *testing.T) {
	center := geo.New(1, 1)
	d := NewDrone(0, center, Config{OperationRadius: 0.01}, &recordingPublisher{}, nil)
	target := d.patrolTarget()
	dist := geo.Distance(center, target)
	if dist < 0.0099 || dist > 0.0101 {
		t.Fatalf("expected patrol target ~0.01 from center, got %f", dist)
	}
}

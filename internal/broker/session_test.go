package broker

import (
	"testing"
	"time"

	"github.com/gonzalop/cityeye/internal/wire"
)

func TestSessionCleanStartWipesExisting(t *testing.T) {
	s := NewSessionStore()
	sess, present := s.Connect("c1", true)
	sess.Subscriptions["t"] = 1
	s.Disconnect("c1", time.Hour)

	_, present = s.Connect("c1", true)
	if present {
		t.Fatal("clean start should not report session_present")
	}
	if len(s.Get("c1").Subscriptions) != 0 {
		t.Fatal("clean start should wipe prior subscriptions")
	}
}

func TestSessionResumeReportsPresent(t *testing.T) {
	s := NewSessionStore()
	sess, _ := s.Connect("c1", false)
	sess.Subscriptions["t"] = 1
	s.Disconnect("c1", time.Hour)

	resumed, present := s.Connect("c1", false)
	if !present {
		t.Fatal("expected session_present=true on resume")
	}
	if _, ok := resumed.Subscriptions["t"]; !ok {
		t.Fatal("expected prior subscription to survive resume")
	}
}

func TestDisconnectWithZeroExpiryRemovesSession(t *testing.T) {
	s := NewSessionStore()
	s.Connect("c1", true)
	s.Disconnect("c1", 0)
	if s.Get("c1") != nil {
		t.Fatal("expected session removed after zero-expiry disconnect")
	}
}

func TestQueueOverflowDropsOldest(t *testing.T) {
	s := NewSessionStore()
	sess, _ := s.Connect("c1", true)
	sess.MaxQueueLen = 2
	s.Disconnect("c1", time.Hour)

	s.Enqueue("c1", wire.Publish{Topic: "a"})
	s.Enqueue("c1", wire.Publish{Topic: "b"})
	s.Enqueue("c1", wire.Publish{Topic: "c"})

	queued := s.Drain("c1")
	if len(queued) != 2 {
		t.Fatalf("len(queued) = %d, want 2", len(queued))
	}
	if queued[0].Topic != "b" || queued[1].Topic != "c" {
		t.Fatalf("unexpected queue contents: %#v", queued)
	}
}

func TestReapExpiredRemovesOnlyElapsedSessions(t *testing.T) {
	s := NewSessionStore()
	s.Connect("fresh", true)
	s.Disconnect("fresh", time.Hour)

	s.Connect("stale", true)
	s.Disconnect("stale", time.Nanosecond)

	time.Sleep(time.Millisecond)
	s.ReapExpired(time.Now())

	if s.Get("fresh") == nil {
		t.Fatal("fresh session should survive reap")
	}
	if s.Get("stale") != nil {
		t.Fatal("stale session should be reaped")
	}
}

package broker

import (
	"testing"

	"github.com/gonzalop/cityeye/internal/wire"
)

func TestSubscribeTwiceLeavesOneSubscription(t *testing.T) {
	r := NewTopicRegistry()
	r.Subscribe("incident", "c1", 1)
	r.Subscribe("incident", "c1", 1)

	subs := r.Publish("incident")
	if len(subs) != 1 {
		t.Fatalf("len(subs) = %d, want 1", len(subs))
	}
}

func TestRetainedDeliveredOnSubscribe(t *testing.T) {
	r := NewTopicRegistry()
	msg := wire.Publish{Topic: "incident", Retain: true, Payload: []byte{wire.TagLocationPayload}}
	r.SetRetained("incident", &msg)

	retained := r.Subscribe("incident", "c1", 1)
	if retained == nil {
		t.Fatal("expected retained message on subscribe")
	}
}

func TestEmptyRetainedClearsSlot(t *testing.T) {
	r := NewTopicRegistry()
	msg := wire.Publish{Topic: "incident", Retain: true, Payload: []byte{wire.TagLocationPayload}}
	r.SetRetained("incident", &msg)
	r.SetRetained("incident", &wire.Publish{Topic: "incident", Payload: nil})

	if r.TakeRetained("incident") != nil {
		t.Fatal("expected retained slot cleared by empty payload")
	}
}

func TestUnknownTopicPublishHasNoSubscribers(t *testing.T) {
	r := NewTopicRegistry()
	if subs := r.Publish("nothing_here"); len(subs) != 0 {
		t.Fatalf("len(subs) = %d, want 0", len(subs))
	}
}

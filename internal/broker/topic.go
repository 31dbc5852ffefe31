// Package broker implements the concurrent MQTT 5-flavored pub/sub server:
// topic registry, per-client session store, and the connection-handling
// core described in spec §4.2-§4.4.
package broker

import (
	"sync"

	"github.com/gonzalop/cityeye/internal/wire"
)

type subscriber struct {
	clientID string
	qos      uint8
}

type topic struct {
	subscribers []subscriber
	retained    *wire.Publish
}

// TopicRegistry maps topic names to their ordered subscriber list and a
// single optional retained message. All operations acquire the registry's
// single reader/writer lock for the minimum span needed.
type TopicRegistry struct {
	mu     sync.RWMutex
	topics map[string]*topic
}

// NewTopicRegistry returns an empty registry.
func NewTopicRegistry() *TopicRegistry {
	return &TopicRegistry{topics: make(map[string]*topic)}
}

// Subscribe adds clientID to topicName's subscriber list at the given QoS,
// replacing any existing subscription for the same client. If the topic
// holds a retained message it is returned for immediate delivery to the new
// subscriber.
func (r *TopicRegistry) Subscribe(topicName, clientID string, qos uint8) (retained *wire.Publish) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.topics[topicName]
	if !ok {
		t = &topic{}
		r.topics[topicName] = t
	}
	for i, s := range t.subscribers {
		if s.clientID == clientID {
			t.subscribers[i].qos = qos
			return t.retained
		}
	}
	t.subscribers = append(t.subscribers, subscriber{clientID: clientID, qos: qos})
	return t.retained
}

// Unsubscribe removes clientID from topicName's subscriber list. It is a
// no-op if the topic or subscription does not exist.
func (r *TopicRegistry) Unsubscribe(topicName, clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.topics[topicName]
	if !ok {
		return
	}
	for i, s := range t.subscribers {
		if s.clientID == clientID {
			t.subscribers = append(t.subscribers[:i], t.subscribers[i+1:]...)
			return
		}
	}
}

// UnsubscribeAll removes clientID from every topic it is subscribed to,
// used when a session is destroyed.
func (r *TopicRegistry) UnsubscribeAll(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.topics {
		for i, s := range t.subscribers {
			if s.clientID == clientID {
				t.subscribers = append(t.subscribers[:i], t.subscribers[i+1:]...)
				break
			}
		}
	}
}

// Publish returns a snapshot of topicName's current subscribers. An unknown
// topic returns no subscribers; the caller (broker core) is responsible for
// turning that into a NoMatchingSubscribers Puback.
func (r *TopicRegistry) Publish(topicName string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.topics[topicName]
	if !ok {
		return nil
	}
	out := make([]string, len(t.subscribers))
	for i, s := range t.subscribers {
		out[i] = s.clientID
	}
	return out
}

// SetRetained replaces topicName's retained message. A Publish with an
// empty payload clears the slot.
func (r *TopicRegistry) SetRetained(topicName string, msg *wire.Publish) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.topics[topicName]
	if !ok {
		t = &topic{}
		r.topics[topicName] = t
	}
	if msg == nil || len(msg.Payload) == 0 {
		t.retained = nil
		return
	}
	t.retained = msg
}

// TakeRetained returns topicName's retained message, or nil if none is set.
func (r *TopicRegistry) TakeRetained(topicName string) *wire.Publish {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.topics[topicName]
	if !ok {
		return nil
	}
	return t.retained
}

// EnsureTopic pre-registers a topic name with no subscribers; NewBroker
// uses it to seed the catalog from Config.Topics.
func (r *TopicRegistry) EnsureTopic(topicName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.topics[topicName]; !ok {
		r.topics[topicName] = &topic{}
	}
}

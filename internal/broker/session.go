package broker

import (
	"sync"
	"time"

	"github.com/gonzalop/cityeye/internal/wire"
)

// DefaultMaxQueueLen bounds an offline session's queue; overflow drops the
// oldest queued message.
const DefaultMaxQueueLen = 1000

// Session is the per-client-id persistent record described in spec §3. It
// survives disconnects until its expiry interval elapses.
type Session struct {
	ClientID      string
	Authenticated bool
	Connected     bool
	Subscriptions map[string]uint8 // topic -> qos
	Queue         []wire.Publish   // FIFO awaiting delivery while disconnected
	PendingAcks   map[uint16]wire.Publish

	ExpiryInterval time.Duration
	expiresAt      time.Time // valid only while Connected == false
	MaxQueueLen    int

	WillTopic   string
	WillPayload []byte
	HasWill     bool
}

func newSession(clientID string) *Session {
	return &Session{
		ClientID:      clientID,
		Subscriptions: make(map[string]uint8),
		PendingAcks:   make(map[uint16]wire.Publish),
		MaxQueueLen:   DefaultMaxQueueLen,
	}
}

// enqueue appends msg to the session's offline queue, dropping the oldest
// entry if the queue is already at MaxQueueLen.
func (s *Session) enqueue(msg wire.Publish) {
	max := s.MaxQueueLen
	if max <= 0 {
		max = DefaultMaxQueueLen
	}
	if len(s.Queue) >= max {
		s.Queue = s.Queue[1:]
	}
	s.Queue = append(s.Queue, msg)
}

// drain returns and clears the session's queued messages, in order.
func (s *Session) drain() []wire.Publish {
	q := s.Queue
	s.Queue = nil
	return q
}

// SessionStore is keyed by client_id and guarded by a single mutex shared
// with the topic registry's lock ordering (session_store < topic_registry,
// per spec §5).
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionStore returns an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*Session)}
}

// Connect resolves the session for clientID per spec §4.3: if cleanStart is
// true any existing session is wiped; otherwise the prior session (if any)
// is resumed and sessionPresent reports whether one existed.
func (s *SessionStore) Connect(clientID string, cleanStart bool) (sess *Session, sessionPresent bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.sessions[clientID]
	if cleanStart || !ok {
		sess = newSession(clientID)
		s.sessions[clientID] = sess
		return sess, false
	}
	existing.Connected = true
	existing.Authenticated = true
	return existing, true
}

// Disconnect marks clientID's session offline. If expiryInterval is zero the
// session is removed entirely; otherwise it is retained to accept queued
// messages until the interval elapses.
func (s *SessionStore) Disconnect(clientID string, expiryInterval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[clientID]
	if !ok {
		return
	}
	if expiryInterval <= 0 {
		delete(s.sessions, clientID)
		return
	}
	sess.Connected = false
	sess.ExpiryInterval = expiryInterval
	sess.expiresAt = time.Now().Add(expiryInterval)
}

// Get returns clientID's session, or nil if none exists.
func (s *SessionStore) Get(clientID string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[clientID]
}

// Subscribe records topicName in clientID's session subscription set.
func (s *SessionStore) Subscribe(clientID, topicName string, qos uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[clientID]; ok {
		sess.Subscriptions[topicName] = qos
	}
}

// Unsubscribe removes topicName from clientID's session subscription set.
func (s *SessionStore) Unsubscribe(clientID, topicName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[clientID]; ok {
		delete(sess.Subscriptions, topicName)
	}
}

// Enqueue appends msg to clientID's offline queue. It is a no-op if the
// client has no session (never connected, or session expired and reaped).
func (s *SessionStore) Enqueue(clientID string, msg wire.Publish) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[clientID]; ok {
		sess.enqueue(msg)
	}
}

// Drain returns and clears clientID's queued messages, in FIFO order, for
// delivery immediately after reconnect and before any new traffic.
func (s *SessionStore) Drain(clientID string) []wire.Publish {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[clientID]
	if !ok {
		return nil
	}
	return sess.drain()
}

// RecordPendingAck remembers msg as awaiting a Puback under packetID.
func (s *SessionStore) RecordPendingAck(clientID string, packetID uint16, msg wire.Publish) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[clientID]; ok {
		sess.PendingAcks[packetID] = msg
	}
}

// ReapExpired removes every disconnected session whose expiry interval has
// elapsed. Broker.Serve calls it once a second while the broker runs.
func (s *SessionStore) ReapExpired(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		if !sess.Connected && !sess.expiresAt.IsZero() && now.After(sess.expiresAt) {
			delete(s.sessions, id)
		}
	}
}

// IsConnected reports whether clientID currently has a live connection.
func (s *SessionStore) IsConnected(clientID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[clientID]
	return ok && sess.Connected
}

package broker

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gonzalop/cityeye/internal/wire"
)

// connState is the per-connection lifecycle described in spec §4.4 and §4.8.
type connState int

const (
	stateAwaitingConnect connState = iota
	stateConnected
	stateClosed
)

// connHandler owns one accepted TCP connection end to end: it reads frames,
// mutates the broker's shared topic registry and session store, and writes
// replies under its own writer lock so that publish order to this
// connection is preserved.
type connHandler struct {
	broker *Broker
	conn   net.Conn
	reader *bufio.Reader

	writeMu sync.Mutex
	state   atomic.Int32 // connState

	clientID  string
	keepAlive time.Duration

	lastActivity atomic.Int64 // unix nanos

	draining atomic.Bool
	closeOnce sync.Once

	sessionExpiry time.Duration
	willTopic     string
	willPayload   []byte
	hasWill       bool
}

func newConnHandler(b *Broker, conn net.Conn) *connHandler {
	h := &connHandler{
		broker: b,
		conn:   conn,
		reader: newBufReader(conn),
	}
	h.state.Store(int32(stateAwaitingConnect))
	h.lastActivity.Store(time.Now().UnixNano())
	return h
}

func (h *connHandler) run() {
	defer h.closeConn()

	first, err := wire.ReadPacket(h.reader)
	if err != nil {
		return
	}
	connect, ok := first.(wire.Connect)
	if !ok {
		h.broker.log.Warn("first packet was not CONNECT, closing", slog.String("remote", h.conn.RemoteAddr().String()), slog.Any("error", &ProtocolError{PacketType: first.Type()}))
		return
	}
	if !h.handleConnect(connect) {
		return
	}

	keepaliveStop := make(chan struct{})
	go h.watchKeepAlive(keepaliveStop)
	defer close(keepaliveStop)

	for {
		pkt, err := wire.ReadPacket(h.reader)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				h.broker.log.Debug("connection read error", slog.String("client_id", h.clientID), slog.Any("error", err))
			}
			if h.draining.Load() {
				return
			}
			h.handleUnexpectedClose()
			return
		}
		h.lastActivity.Store(time.Now().UnixNano())

		if connState(h.state.Load()) != stateConnected {
			return
		}

		switch p := pkt.(type) {
		case wire.Publish:
			h.handlePublish(p)
		case wire.Subscribe:
			h.handleSubscribe(p)
		case wire.Unsubscribe:
			h.handleUnsubscribe(p)
		case wire.Pingreq:
			h.send(wire.Pingresp{})
		case wire.Disconnect:
			h.handleDisconnect(p)
			return
		case wire.Auth:
			// Re-authentication exchanges are accepted and acknowledged but
			// this broker never challenges a connected client mid-session.
			h.send(wire.Auth{ReasonCode: wire.ReasonSuccess})
		default:
			h.broker.log.Warn("unexpected packet for connected state", slog.String("client_id", h.clientID), slog.Any("error", &ProtocolError{ClientID: h.clientID, PacketType: pkt.Type()}))
			h.state.Store(int32(stateClosed))
			return
		}
	}
}

func (h *connHandler) handleConnect(c wire.Connect) bool {
	if h.broker.creds == nil || !h.broker.creds.Authenticate(c.ClientID, c.Password) {
		h.send(wire.Connack{ReasonCode: wire.ReasonNotAuthorized})
		h.broker.log.Info("connect rejected", slog.String("client_id", c.ClientID), slog.Any("error", &AuthError{ClientID: c.ClientID}))
		return false
	}

	h.clientID = c.ClientID
	h.keepAlive = time.Duration(c.KeepAlive) * time.Second
	h.sessionExpiry = time.Duration(c.Properties.SessionExpiryInterval) * time.Second
	h.hasWill = c.LastWillFlag
	h.willTopic = c.WillTopic
	h.willPayload = c.WillPayload

	sess, sessionPresent := h.broker.sessions.Connect(c.ClientID, c.CleanStart)
	sess.Authenticated = true
	sess.Connected = true
	sess.HasWill = c.LastWillFlag
	sess.WillTopic = c.WillTopic
	sess.WillPayload = c.WillPayload

	if evicted := h.broker.register(h); evicted != nil {
		evicted.forceClose()
	}

	h.state.Store(int32(stateConnected))
	h.send(wire.Connack{SessionPresent: sessionPresent, ReasonCode: wire.ReasonSuccess})

	for _, msg := range h.broker.sessions.Drain(c.ClientID) {
		h.send(msg)
	}
	return true
}

func (h *connHandler) handlePublish(p wire.Publish) {
	if p.Retain {
		h.broker.topics.SetRetained(p.Topic, &p)
	}

	subscriberIDs := h.broker.deliver(p.Topic, p)

	if p.QoS == wire.QoS1 {
		reason := wire.ReasonSuccess
		if len(subscriberIDs) == 0 {
			reason = wire.ReasonNoMatchingSubscribers
		}
		h.send(wire.Puback{PacketID: p.PacketID, ReasonCode: reason})
	}
}

// deliver snapshots topicName's subscribers and forwards msg to each:
// connected subscribers receive it immediately on their own writer lock,
// disconnected subscribers have it appended to their session queue.
func (b *Broker) deliver(topicName string, msg wire.Publish) []string {
	subscribers := b.topics.Publish(topicName)
	for _, clientID := range subscribers {
		if h := b.connFor(clientID); h != nil {
			h.send(msg)
			continue
		}
		b.sessions.Enqueue(clientID, msg)
	}
	return subscribers
}

func (h *connHandler) handleSubscribe(s wire.Subscribe) {
	retained := h.broker.topics.Subscribe(s.Topic, h.clientID, s.QoS)
	h.broker.sessions.Subscribe(h.clientID, s.Topic, s.QoS)
	h.send(wire.Suback{PacketID: s.PacketID, ReasonCode: wire.ReasonGrantedQoS1})
	if retained != nil {
		h.send(*retained)
	}
}

func (h *connHandler) handleUnsubscribe(u wire.Unsubscribe) {
	h.broker.topics.Unsubscribe(u.Topic, h.clientID)
	h.broker.sessions.Unsubscribe(h.clientID, u.Topic)
	h.send(wire.Unsuback{PacketID: u.PacketID, ReasonCode: wire.ReasonSuccess})
}

func (h *connHandler) handleDisconnect(d wire.Disconnect) {
	h.state.Store(int32(stateClosed))
	// A client-initiated DISCONNECT is clean: no will is triggered,
	// regardless of reason code. Wills are published only by
	// handleUnexpectedClose.
	h.broker.sessions.Disconnect(h.clientID, h.sessionExpiry)
	if h.sessionExpiry <= 0 {
		h.broker.topics.UnsubscribeAll(h.clientID)
	}
}

// handleUnexpectedClose runs when the connection drops without a clean
// DISCONNECT: a read error, EOF, or keepalive timeout. It triggers the
// session's will message if one was registered.
func (h *connHandler) handleUnexpectedClose() {
	if connState(h.state.Load()) == stateClosed {
		return
	}
	h.state.Store(int32(stateClosed))
	if h.clientID == "" {
		return
	}
	if h.hasWill {
		willMsg := wire.Publish{
			Topic:   h.willTopic,
			QoS:     wire.QoS1,
			Payload: wire.EncodePayload(wire.WillPayload{Text: string(h.willPayload)}),
		}
		h.broker.deliver(willMsg.Topic, willMsg)
		h.broker.log.Info("published will message", slog.String("client_id", h.clientID), slog.String("topic", h.willTopic))
	}
	h.broker.sessions.Disconnect(h.clientID, h.sessionExpiry)
	if h.sessionExpiry <= 0 {
		h.broker.topics.UnsubscribeAll(h.clientID)
	}
}

// watchKeepAlive closes the connection if no client packet arrives within
// 1.5x the negotiated keep-alive interval, per spec §4.4.
func (h *connHandler) watchKeepAlive(stop <-chan struct{}) {
	if h.keepAlive <= 0 {
		return
	}
	timeout := time.Duration(float64(h.keepAlive) * 1.5)
	ticker := time.NewTicker(timeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			last := time.Unix(0, h.lastActivity.Load())
			if time.Since(last) > timeout {
				h.broker.log.Warn("keep alive timeout", slog.String("client_id", h.clientID))
				h.handleUnexpectedClose()
				h.conn.Close()
				return
			}
		}
	}
}

// send writes pkt under the connection's writer lock, preserving publish
// order to a single subscriber over a single connection.
func (h *connHandler) send(pkt wire.Packet) {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	if err := wire.WritePacket(h.conn, pkt); err != nil {
		h.broker.log.Debug("write failed", slog.String("client_id", h.clientID), slog.Any("error", err))
	}
}

// requestDrain marks the connection for shutdown and makes its pending read
// return at once. The worker finishes the packet it is handling, including
// that packet's Puback, then stops reading and closes the connection without
// publishing a will; no separate drain buffer is needed.
func (h *connHandler) requestDrain() {
	h.draining.Store(true)
	h.conn.SetReadDeadline(time.Now())
}

func (h *connHandler) forceClose() {
	h.conn.Close()
}

func (h *connHandler) closeConn() {
	h.closeOnce.Do(func() {
		h.broker.unregister(h)
		h.conn.Close()
	})
}

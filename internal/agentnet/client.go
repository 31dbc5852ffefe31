// Package agentnet is the client runtime shared by every agent (camera
// coordinator, drone, monitoring console) that talks to the broker. It is
// the counterpart to internal/broker's per-connection handler, described in
// spec §4.5: one TCP connection, an outbound loop that allocates packet ids
// and tracks pending acks, an inbound loop that dispatches by packet kind,
// and a keepalive task.
package agentnet

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gonzalop/cityeye/internal/wire"
)

// Message is a Publish delivered by the broker, handed to the agent on the
// Inbound channel.
type Message struct {
	Topic   string
	QoS     uint8
	Retain  bool
	Payload wire.Payload
}

// outboundKind enumerates the finite set of outbound requests the logic
// loop allocates packet ids for, replacing a polymorphic outbound queue
// with a tagged variant (per the Design Notes on trait-object configs).
type outboundKind int

const (
	kindPublish outboundKind = iota
	kindSubscribe
	kindUnsubscribe
)

// MessageConfig is an outbound request queued by the owning agent.
type MessageConfig struct {
	kind    outboundKind
	topic   string
	qos     uint8
	retain  bool
	payload wire.Payload
	token   *Token
}

type pendingAck struct {
	kind  outboundKind
	token *Token
}

// Client owns one duplex connection to the broker plus the send/receive
// queues, packet-id allocator, and pending-ack table described in spec
// §4.5.
type Client struct {
	cfg *Config

	connMu sync.Mutex
	conn   net.Conn
	reader *bufio.Reader

	writeMu sync.Mutex

	outbound chan MessageConfig
	Inbound  chan Message

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	sessionLock  sync.Mutex
	nextPacketID uint16
	pending      map[uint16]pendingAck

	lastOutboundActivity atomic64
	log                  *slog.Logger
}

// atomic64 is a tiny helper around an int64 unix-nanos timestamp, avoiding
// an extra import for a single field.
type atomic64 struct {
	mu sync.Mutex
	v  int64
}

func (a *atomic64) store(t time.Time) {
	a.mu.Lock()
	a.v = t.UnixNano()
	a.mu.Unlock()
}

func (a *atomic64) load() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return time.Unix(0, a.v)
}

// Dial connects to cfg.Server, sends Connect, and starts the outbound,
// inbound, and keepalive loops. It returns once Connack has been received.
func Dial(ctx context.Context, cfg Config) (*Client, bool, error) {
	full := cfg.withDefaults()
	dialer := net.Dialer{}
	dialCtx, cancel := context.WithTimeout(ctx, full.ConnectTimeout)
	defer cancel()
	conn, err := dialer.DialContext(dialCtx, "tcp", full.Server)
	if err != nil {
		return nil, false, fmt.Errorf("agentnet: dial %s: %w", full.Server, err)
	}

	c := &Client{
		cfg:      full,
		conn:     conn,
		reader:   bufio.NewReaderSize(conn, 4096),
		outbound: make(chan MessageConfig, 256),
		Inbound:  make(chan Message, 256),
		stop:     make(chan struct{}),
		pending:  make(map[uint16]pendingAck),
		log:      full.Logger,
	}
	c.lastOutboundActivity.store(time.Now())

	sessionPresent, err := c.handshake(conn, c.reader, full.CleanStart)
	if err != nil {
		conn.Close()
		return nil, false, err
	}

	c.wg.Add(3)
	go c.outboundLoop()
	go c.inboundLoop()
	go c.keepAliveLoop()

	return c, sessionPresent, nil
}

// handshake sends Connect over conn and awaits Connack on reader.
// cleanStart is threaded through separately from c.cfg.CleanStart so a
// reconnect can force false and resume the existing session regardless of
// how the client was originally dialed.
func (c *Client) handshake(conn net.Conn, reader *bufio.Reader, cleanStart bool) (bool, error) {
	connect := wire.Connect{
		ClientID:   c.cfg.ClientID,
		CleanStart: cleanStart,
		KeepAlive:  uint16(c.cfg.KeepAlive / time.Second),
		Username:   c.cfg.Username,
		Password:   c.cfg.Password,
		Properties: wire.ConnectProperties{
			SessionExpiryInterval: uint32(c.cfg.SessionExpiryInterval / time.Second),
		},
		LastWillFlag: c.cfg.HasWill,
		WillTopic:    c.cfg.WillTopic,
		WillPayload:  c.cfg.WillPayload,
	}
	if err := wire.WritePacket(conn, connect); err != nil {
		return false, fmt.Errorf("agentnet: writing connect: %w", err)
	}
	pkt, err := wire.ReadPacket(reader)
	if err != nil {
		return false, fmt.Errorf("agentnet: reading connack: %w", err)
	}
	connack, ok := pkt.(wire.Connack)
	if !ok {
		return false, fmt.Errorf("agentnet: expected connack, got %T", pkt)
	}
	if connack.ReasonCode != wire.ReasonSuccess {
		return false, fmt.Errorf("%w: %s", ErrNotAuthorized, connack.ReasonCode)
	}
	return connack.SessionPresent, nil
}

// getConn returns the current connection and reader. Guarded by connMu
// separately from writeMu so a reconnect can swap both while a write is not
// in flight, and so readers/writers always see a consistent pair.
func (c *Client) getConn() (net.Conn, *bufio.Reader) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn, c.reader
}

func (c *Client) setConn(conn net.Conn, reader *bufio.Reader) {
	c.connMu.Lock()
	c.conn = conn
	c.reader = reader
	c.connMu.Unlock()
}

// nextID allocates a nonzero packet id not currently present in pending.
// Caller must hold sessionLock.
func (c *Client) nextID() uint16 {
	for {
		c.nextPacketID++
		if c.nextPacketID == 0 {
			c.nextPacketID = 1
		}
		if _, busy := c.pending[c.nextPacketID]; !busy {
			return c.nextPacketID
		}
	}
}

// Publish queues an outbound Publish and returns a Token completed by the
// broker's Puback.
func (c *Client) Publish(topic string, payload wire.Payload, qos uint8, retain bool) *Token {
	tok := newToken()
	select {
	case c.outbound <- MessageConfig{kind: kindPublish, topic: topic, qos: qos, retain: retain, payload: payload, token: tok}:
	case <-c.stop:
		tok.complete(ErrClientDisconnected)
	}
	return tok
}

// Subscribe queues an outbound Subscribe and returns a Token completed by
// the broker's Suback.
func (c *Client) Subscribe(topic string, qos uint8) *Token {
	tok := newToken()
	select {
	case c.outbound <- MessageConfig{kind: kindSubscribe, topic: topic, qos: qos, token: tok}:
	case <-c.stop:
		tok.complete(ErrClientDisconnected)
	}
	return tok
}

// Unsubscribe queues an outbound Unsubscribe and returns a Token completed
// by the broker's Unsuback.
func (c *Client) Unsubscribe(topic string) *Token {
	tok := newToken()
	select {
	case c.outbound <- MessageConfig{kind: kindUnsubscribe, topic: topic, token: tok}:
	case <-c.stop:
		tok.complete(ErrClientDisconnected)
	}
	return tok
}

// outboundLoop allocates packet ids and writes frames in the order they
// were queued.
func (c *Client) outboundLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.stop:
			return
		case req := <-c.outbound:
			c.sendOutbound(req)
		}
	}
}

func (c *Client) sendOutbound(req MessageConfig) {
	c.sessionLock.Lock()
	id := c.nextID()
	c.pending[id] = pendingAck{kind: req.kind, token: req.token}
	c.sessionLock.Unlock()

	var pkt wire.Packet
	switch req.kind {
	case kindPublish:
		pkt = wire.Publish{PacketID: id, Topic: req.topic, QoS: req.qos, Retain: req.retain, Payload: wire.EncodePayload(req.payload)}
	case kindSubscribe:
		pkt = wire.Subscribe{PacketID: id, Topic: req.topic, QoS: req.qos}
	case kindUnsubscribe:
		pkt = wire.Unsubscribe{PacketID: id, Topic: req.topic}
	}

	conn, _ := c.getConn()
	c.writeMu.Lock()
	err := wire.WritePacket(conn, pkt)
	c.writeMu.Unlock()
	c.lastOutboundActivity.store(time.Now())

	if err != nil {
		c.log.Error("agentnet: write failed", slog.Any("error", err))
		c.sessionLock.Lock()
		delete(c.pending, id)
		c.sessionLock.Unlock()
		req.token.complete(err)
	}
}

// inboundLoop reads frames from the socket and dispatches them by kind. A
// read failure that isn't a caller-initiated Disconnect triggers the
// reconnect loop rather than tearing the client down immediately, per spec
// §4.5's "reconnection with session resumption" and spec §7's IOError being
// "retried at client level."
func (c *Client) inboundLoop() {
	defer c.wg.Done()
	for {
		_, reader := c.getConn()
		pkt, err := wire.ReadPacket(reader)
		if err != nil {
			select {
			case <-c.stop:
				return
			default:
			}
			if !errors.Is(err, io.EOF) {
				c.log.Debug("agentnet: read failed", slog.Any("error", err))
			}
			if c.cfg.DisableReconnect || !c.reconnect() {
				c.shutdown(ErrClientDisconnected)
				return
			}
			continue
		}
		switch p := pkt.(type) {
		case wire.Puback:
			c.completeAck(p.PacketID, kindPublish)
		case wire.Suback:
			c.completeAck(p.PacketID, kindSubscribe)
		case wire.Unsuback:
			c.completeAck(p.PacketID, kindUnsubscribe)
		case wire.Publish:
			c.deliver(p)
		case wire.Pingresp:
			// nothing to do: keepAliveLoop tracks only outbound gaps via
			// lastOutboundActivity, and no inbound idle timer exists.
		case wire.Disconnect:
			c.shutdown(nil)
			return
		default:
			c.log.Warn("agentnet: unexpected packet kind", slog.String("type", wire.PacketName(pkt.Type())))
		}
	}
}

func (c *Client) completeAck(id uint16, kind outboundKind) {
	c.sessionLock.Lock()
	op, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.sessionLock.Unlock()

	if !ok {
		c.log.Warn("agentnet: ack for unknown packet id", slog.Int("packet_id", int(id)), slog.Any("error", ErrUnexpectedAck))
		return
	}
	if op.kind != kind {
		c.log.Warn("agentnet: ack kind mismatch", slog.Int("packet_id", int(id)))
	}
	op.token.complete(nil)
}

func (c *Client) deliver(p wire.Publish) {
	payload, err := wire.DecodePayload(p.Payload)
	if err != nil {
		c.log.Error("agentnet: undecodable publish payload", slog.Any("error", err))
		return
	}
	msg := Message{Topic: p.Topic, QoS: p.QoS, Retain: p.Retain, Payload: payload}
	select {
	case c.Inbound <- msg:
	case <-c.stop:
	}
}

// keepAliveLoop emits Pingreq whenever no outbound traffic has flowed for
// keep_alive x 0.8 seconds, per spec §4.5.
func (c *Client) keepAliveLoop() {
	defer c.wg.Done()
	interval := time.Duration(float64(c.cfg.KeepAlive) * 0.8)
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if time.Since(c.lastOutboundActivity.load()) >= interval {
				conn, _ := c.getConn()
				c.writeMu.Lock()
				err := wire.WritePacket(conn, wire.Pingreq{})
				c.writeMu.Unlock()
				if err != nil {
					// inboundLoop owns reconnection; a dead conn here will
					// also surface as a read failure there shortly.
					continue
				}
				c.lastOutboundActivity.store(time.Now())
			}
		}
	}
}

// shutdown terminates all loops, discarding outstanding pending acks with
// err.
func (c *Client) shutdown(err error) {
	c.stopOnce.Do(func() {
		close(c.stop)
		c.sessionLock.Lock()
		for id, op := range c.pending {
			op.token.complete(err)
			delete(c.pending, id)
		}
		c.sessionLock.Unlock()
		conn, _ := c.getConn()
		conn.Close()
	})
}

// reconnect re-dials cfg.Server with an exponential backoff, resuming the
// existing session (CleanStart false, regardless of how the client was
// originally dialed) once a connection succeeds. It only returns false if
// c.stop closes while waiting, meaning the client is being torn down rather
// than reconnected.
func (c *Client) reconnect() bool {
	backoff := c.cfg.ReconnectBackoff
	for attempt := 1; ; attempt++ {
		select {
		case <-c.stop:
			return false
		case <-time.After(backoff):
		}

		dialer := net.Dialer{}
		dialCtx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
		conn, err := dialer.DialContext(dialCtx, "tcp", c.cfg.Server)
		cancel()
		if err != nil {
			c.log.Warn("agentnet: reconnect dial failed", slog.Int("attempt", attempt), slog.Any("error", err))
			backoff = nextBackoff(backoff, c.cfg.MaxReconnectBackoff)
			continue
		}

		reader := bufio.NewReaderSize(conn, 4096)
		sessionPresent, err := c.handshake(conn, reader, false)
		if err != nil {
			conn.Close()
			c.log.Warn("agentnet: reconnect handshake failed", slog.Int("attempt", attempt), slog.Any("error", err))
			backoff = nextBackoff(backoff, c.cfg.MaxReconnectBackoff)
			continue
		}

		old, _ := c.getConn()
		c.setConn(conn, reader)
		old.Close()
		c.lastOutboundActivity.store(time.Now())
		c.log.Info("agentnet: reconnected", slog.String("server", c.cfg.Server), slog.Bool("session_present", sessionPresent))
		return true
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

// Disconnect sends a clean Disconnect and terminates both loops after a
// bounded drain window, discarding outstanding pending_acks.
func (c *Client) Disconnect(ctx context.Context) error {
	conn, _ := c.getConn()
	c.writeMu.Lock()
	err := wire.WritePacket(conn, wire.Disconnect{ReasonCode: wire.ReasonNormalDisconnect})
	c.writeMu.Unlock()

	drained := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(drained)
	}()

	c.shutdown(ErrClientDisconnected)

	select {
	case <-drained:
	case <-time.After(2 * time.Second):
	case <-ctx.Done():
	}
	return err
}

package broker_test

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/gonzalop/cityeye/internal/broker"
	"github.com/gonzalop/cityeye/internal/geo"
	"github.com/gonzalop/cityeye/internal/wire"
)

func startTestBroker(t *testing.T) (addr string, b *broker.Broker) {
	t.Helper()
	creds := broker.NewCredentialStore(map[string]broker.CredentialEntry{
		"camera_system":  {Password: "secret"},
		"monitoring_app": {Password: "secret"},
		"client-c":       {Password: "secret"},
	})
	b = broker.NewBroker(broker.Config{Credentials: creds})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go b.Serve(ln)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		b.Shutdown(ctx)
	})
	return ln.Addr().String(), b
}

func dialAndConnect(t *testing.T, addr, clientID, password string, cleanStart bool) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	connect := wire.Connect{
		ClientID:   clientID,
		CleanStart: cleanStart,
		KeepAlive:  60,
		Password:   password,
		Properties: wire.ConnectProperties{SessionExpiryInterval: 3600},
	}
	if err := wire.WritePacket(conn, connect); err != nil {
		t.Fatalf("write connect: %v", err)
	}
	r := bufio.NewReader(conn)
	pkt, err := wire.ReadPacket(r)
	if err != nil {
		t.Fatalf("read connack: %v", err)
	}
	connack, ok := pkt.(wire.Connack)
	if !ok {
		t.Fatalf("expected Connack, got %T", pkt)
	}
	if connack.ReasonCode != wire.ReasonSuccess {
		t.Fatalf("connect rejected: %v", connack.ReasonCode)
	}
	return conn, r
}

func TestConnectSubscribePublish(t *testing.T) {
	addr, _ := startTestBroker(t)

	connA, readerA := dialAndConnect(t, addr, "camera_system", "secret", true)
	defer connA.Close()

	if err := wire.WritePacket(connA, wire.Subscribe{PacketID: 1, Topic: "incident", QoS: 1}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	pkt, err := wire.ReadPacket(readerA)
	if err != nil {
		t.Fatalf("read suback: %v", err)
	}
	suback, ok := pkt.(wire.Suback)
	if !ok || suback.ReasonCode != wire.ReasonGrantedQoS1 {
		t.Fatalf("unexpected suback: %#v", pkt)
	}

	connB, readerB := dialAndConnect(t, addr, "monitoring_app", "secret", true)
	defer connB.Close()

	payload := wire.EncodePayload(wire.IncidentLocation{Location: geo.New(1.0, 2.0)})
	pub := wire.Publish{PacketID: 1, Topic: "incident", QoS: 1, Payload: payload}
	if err := wire.WritePacket(connB, pub); err != nil {
		t.Fatalf("publish: %v", err)
	}
	ackPkt, err := wire.ReadPacket(readerB)
	if err != nil {
		t.Fatalf("read puback: %v", err)
	}
	puback, ok := ackPkt.(wire.Puback)
	if !ok || puback.ReasonCode != wire.ReasonSuccess {
		t.Fatalf("unexpected puback: %#v", ackPkt)
	}

	deliveredPkt, err := wire.ReadPacket(readerA)
	if err != nil {
		t.Fatalf("read delivery: %v", err)
	}
	delivered, ok := deliveredPkt.(wire.Publish)
	if !ok {
		t.Fatalf("expected Publish delivery, got %T", deliveredPkt)
	}
	loc, err := wire.DecodePayload(delivered.Payload)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	incident, ok := loc.(wire.IncidentLocation)
	if !ok || incident.Location != geo.New(1.0, 2.0) {
		t.Fatalf("unexpected delivered payload: %#v", loc)
	}
}

func TestUnknownTopicPublishStillAcks(t *testing.T) {
	addr, _ := startTestBroker(t)
	conn, reader := dialAndConnect(t, addr, "client-c", "secret", true)
	defer conn.Close()

	pub := wire.Publish{PacketID: 7, Topic: "nobody_listens", QoS: 1, Payload: []byte{wire.TagLocationPayload}}
	if err := wire.WritePacket(conn, pub); err != nil {
		t.Fatalf("publish: %v", err)
	}
	pkt, err := wire.ReadPacket(reader)
	if err != nil {
		t.Fatalf("read puback: %v", err)
	}
	puback, ok := pkt.(wire.Puback)
	if !ok {
		t.Fatalf("expected Puback, got %T", pkt)
	}
	if puback.ReasonCode != wire.ReasonNoMatchingSubscribers {
		t.Fatalf("reason = %v, want NoMatchingSubscribers", puback.ReasonCode)
	}
}

func TestSessionResume(t *testing.T) {
	addr, _ := startTestBroker(t)

	connC, readerC := dialAndConnect(t, addr, "client-c", "secret", false)
	if err := wire.WritePacket(connC, wire.Subscribe{PacketID: 1, Topic: "t", QoS: 1}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if _, err := wire.ReadPacket(readerC); err != nil {
		t.Fatalf("read suback: %v", err)
	}
	if err := wire.WritePacket(connC, wire.Disconnect{ReasonCode: wire.ReasonNormalDisconnect}); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	connC.Close()
	time.Sleep(50 * time.Millisecond)

	pubConn, pubReader := dialAndConnect(t, addr, "monitoring_app", "secret", true)
	defer pubConn.Close()
	pub := wire.Publish{PacketID: 1, Topic: "t", QoS: 1, Payload: []byte{wire.TagLocationPayload}}
	if err := wire.WritePacket(pubConn, pub); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, err := wire.ReadPacket(pubReader); err != nil {
		t.Fatalf("read puback: %v", err)
	}

	conn2, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn2.Close()
	connect := wire.Connect{ClientID: "client-c", CleanStart: false, KeepAlive: 60, Password: "secret",
		Properties: wire.ConnectProperties{SessionExpiryInterval: 3600}}
	if err := wire.WritePacket(conn2, connect); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	r2 := bufio.NewReader(conn2)
	ackPkt, err := wire.ReadPacket(r2)
	if err != nil {
		t.Fatalf("read connack: %v", err)
	}
	connack, ok := ackPkt.(wire.Connack)
	if !ok || !connack.SessionPresent {
		t.Fatalf("expected session_present=true, got %#v", ackPkt)
	}

	deliveredPkt, err := wire.ReadPacket(r2)
	if err != nil {
		t.Fatalf("read queued delivery: %v", err)
	}
	if _, ok := deliveredPkt.(wire.Publish); !ok {
		t.Fatalf("expected queued Publish, got %T", deliveredPkt)
	}
}

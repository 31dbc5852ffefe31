package wire

import (
	"bufio"
	"bytes"
	"reflect"
	"testing"

	"github.com/gonzalop/cityeye/internal/geo"
)

func roundTrip(t *testing.T, p Packet) Packet {
	t.Helper()
	var buf bytes.Buffer
	if err := WritePacket(&buf, p); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadPacket(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return got
}

func TestPacketRoundTrip(t *testing.T) {
	cases := []Packet{
		Connect{
			ClientID:   "camera_system",
			CleanStart: true,
			KeepAlive:  60,
			Properties: ConnectProperties{SessionExpiryInterval: 3600, ReceiveMaximum: 10},
			Username:   "u",
			Password:   "p",
		},
		Connect{
			ClientID:     "with-will",
			LastWillFlag: true,
			WillTopic:    "status",
			WillPayload:  []byte("offline"),
			KeepAlive:    30,
		},
		Connack{SessionPresent: true, ReasonCode: ReasonSuccess},
		Publish{PacketID: 5, Topic: "incident", QoS: 1, Payload: []byte{TagLocationPayload, 1, 2, 3}},
		Puback{PacketID: 5, ReasonCode: ReasonNoMatchingSubscribers},
		Subscribe{PacketID: 2, Topic: "incident", QoS: 1},
		Suback{PacketID: 2, ReasonCode: ReasonGrantedQoS1},
		Unsubscribe{PacketID: 3, Topic: "incident"},
		Unsuback{PacketID: 3, ReasonCode: ReasonSuccess},
		Pingreq{},
		Pingresp{},
		Disconnect{ReasonCode: ReasonNormalDisconnect},
		Auth{ReasonCode: ReasonSuccess, AuthenticationMethod: "scram", AuthenticationData: []byte{1, 2}},
	}

	for _, want := range cases {
		got := roundTrip(t, want)
		if !reflect.DeepEqual(got, want) {
			t.Errorf("round trip mismatch:\n got  %#v\n want %#v", got, want)
		}
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	loc := geo.New(1.0, 2.0)
	cases := []Payload{
		IncidentLocation{Location: loc},
		WillPayload{Text: "client disconnected unexpectedly"},
		LocationPayload{Location: loc},
		CamerasUpdate{Cameras: []CameraSnapshot{
			{ID: 1, Location: loc, SleepMode: false},
			{ID: 2, Location: geo.New(3, 4), SleepMode: true},
		}},
		DroneLocation{ID: 7, Current: loc, Target: geo.New(5, 6)},
		AttendingIncident{Location: loc},
		SingleDroneDisconnect{DroneID: 42},
	}

	for _, want := range cases {
		encoded := EncodePayload(want)
		got, err := DecodePayload(encoded)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("payload round trip mismatch:\n got  %#v\n want %#v", got, want)
		}
	}
}

func TestDecodeUnknownPayloadTagFails(t *testing.T) {
	_, err := DecodePayload([]byte{0xFF})
	if err == nil {
		t.Fatal("expected error for unknown payload tag")
	}
}

func TestDecodeTruncatedStringFails(t *testing.T) {
	_, _, err := readString([]byte{0x00, 0x05, 'a', 'b'})
	if err == nil {
		t.Fatal("expected error for truncated string")
	}
}

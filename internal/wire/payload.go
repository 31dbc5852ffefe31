package wire

import (
	"fmt"

	"github.com/gonzalop/cityeye/internal/geo"
)

// Payload variant tags. The leading byte of every Publish payload
// discriminates which of the finite set of application messages follows.
const (
	TagIncidentLocation     uint8 = 1
	TagWillPayload          uint8 = 2
	TagLocationPayload      uint8 = 3
	TagCamerasUpdate        uint8 = 4
	TagDroneLocation        uint8 = 5
	TagAttendingIncident    uint8 = 6
	TagSingleDroneDisconnect uint8 = 7
)

// Payload is the sealed set of application payloads a Publish frame can
// carry. Implementations are value types defined in this file only.
type Payload interface {
	payloadTag() uint8
	appendTo(dst []byte) []byte
}

// IncidentLocation announces a new incident detected at Location, published
// on the "incident" topic.
type IncidentLocation struct{ Location geo.Location }

// WillPayload is an opaque text payload delivered when the broker publishes
// a client's will message.
type WillPayload struct{ Text string }

// LocationPayload is a bare location, published on "incident_resolved".
type LocationPayload struct{ Location geo.Location }

// CameraSnapshot is one camera's externally-visible state as carried in a
// CamerasUpdate payload.
type CameraSnapshot struct {
	ID        uint32
	Location  geo.Location
	SleepMode bool
}

// CamerasUpdate carries the cameras whose sleep_mode changed since the last
// published snapshot, published on "camera_update".
type CamerasUpdate struct{ Cameras []CameraSnapshot }

// DroneLocation reports a drone's current and target position, published on
// "drone_locations" every time the target changes.
type DroneLocation struct {
	ID      uint32
	Current geo.Location
	Target  geo.Location
}

// AttendingIncident announces a drone has arrived at an incident location,
// published on "attending_incident".
type AttendingIncident struct{ Location geo.Location }

// SingleDroneDisconnect asks a specific drone to disconnect, published on
// "single_drone_disconnect".
type SingleDroneDisconnect struct{ DroneID uint32 }

func (IncidentLocation) payloadTag() uint8      { return TagIncidentLocation }
func (WillPayload) payloadTag() uint8           { return TagWillPayload }
func (LocationPayload) payloadTag() uint8       { return TagLocationPayload }
func (CamerasUpdate) payloadTag() uint8         { return TagCamerasUpdate }
func (DroneLocation) payloadTag() uint8         { return TagDroneLocation }
func (AttendingIncident) payloadTag() uint8     { return TagAttendingIncident }
func (SingleDroneDisconnect) payloadTag() uint8 { return TagSingleDroneDisconnect }

func appendLocation(dst []byte, l geo.Location) []byte {
	var buf [8]byte
	putFloat64(buf[:], l.Lat)
	dst = append(dst, buf[:]...)
	putFloat64(buf[:], l.Lon)
	return append(dst, buf[:]...)
}

func readLocation(buf []byte) (geo.Location, int, error) {
	if len(buf) < 16 {
		return geo.Location{}, 0, fmt.Errorf("%w: buffer too short for location", ErrCodec)
	}
	lat := getFloat64(buf[0:8])
	lon := getFloat64(buf[8:16])
	return geo.Location{Lat: lat, Lon: lon}, 16, nil
}

func (p IncidentLocation) appendTo(dst []byte) []byte { return appendLocation(dst, p.Location) }
func (p LocationPayload) appendTo(dst []byte) []byte  { return appendLocation(dst, p.Location) }
func (p AttendingIncident) appendTo(dst []byte) []byte { return appendLocation(dst, p.Location) }

func (p WillPayload) appendTo(dst []byte) []byte {
	return appendString(dst, p.Text)
}

func (p SingleDroneDisconnect) appendTo(dst []byte) []byte {
	return appendU32(dst, p.DroneID)
}

func (p DroneLocation) appendTo(dst []byte) []byte {
	dst = appendU32(dst, p.ID)
	dst = appendLocation(dst, p.Current)
	return appendLocation(dst, p.Target)
}

func (p CamerasUpdate) appendTo(dst []byte) []byte {
	dst = appendU16(dst, uint16(len(p.Cameras)))
	for _, c := range p.Cameras {
		dst = appendU32(dst, c.ID)
		dst = appendLocation(dst, c.Location)
		dst = appendU8(dst, boolByte(c.SleepMode))
	}
	return dst
}

// EncodePayload serializes a Payload to its tagged wire representation.
func EncodePayload(p Payload) []byte {
	dst := make([]byte, 0, 32)
	dst = append(dst, p.payloadTag())
	return p.appendTo(dst)
}

// DecodePayload reads a tagged payload from buf, which must contain exactly
// the payload bytes (no trailing data from the enclosing frame).
func DecodePayload(buf []byte) (Payload, error) {
	if len(buf) < 1 {
		return nil, fmt.Errorf("%w: empty payload", ErrCodec)
	}
	tag := buf[0]
	body := buf[1:]
	switch tag {
	case TagIncidentLocation:
		loc, _, err := readLocation(body)
		if err != nil {
			return nil, err
		}
		return IncidentLocation{Location: loc}, nil
	case TagWillPayload:
		s, _, err := readString(body)
		if err != nil {
			return nil, err
		}
		return WillPayload{Text: s}, nil
	case TagLocationPayload:
		loc, _, err := readLocation(body)
		if err != nil {
			return nil, err
		}
		return LocationPayload{Location: loc}, nil
	case TagCamerasUpdate:
		count, n, err := readU16(body)
		if err != nil {
			return nil, err
		}
		off := n
		cams := make([]CameraSnapshot, 0, count)
		for i := 0; i < int(count); i++ {
			id, m, err := readU32(body[off:])
			if err != nil {
				return nil, err
			}
			off += m
			loc, m, err := readLocation(body[off:])
			if err != nil {
				return nil, err
			}
			off += m
			sleep, m, err := readU8(body[off:])
			if err != nil {
				return nil, err
			}
			off += m
			cams = append(cams, CameraSnapshot{ID: id, Location: loc, SleepMode: sleep != 0})
		}
		return CamerasUpdate{Cameras: cams}, nil
	case TagDroneLocation:
		id, n, err := readU32(body)
		if err != nil {
			return nil, err
		}
		off := n
		cur, m, err := readLocation(body[off:])
		if err != nil {
			return nil, err
		}
		off += m
		tgt, _, err := readLocation(body[off:])
		if err != nil {
			return nil, err
		}
		return DroneLocation{ID: id, Current: cur, Target: tgt}, nil
	case TagAttendingIncident:
		loc, _, err := readLocation(body)
		if err != nil {
			return nil, err
		}
		return AttendingIncident{Location: loc}, nil
	case TagSingleDroneDisconnect:
		id, _, err := readU32(body)
		if err != nil {
			return nil, err
		}
		return SingleDroneDisconnect{DroneID: id}, nil
	default:
		return nil, fmt.Errorf("%w: unknown payload variant tag 0x%02X", ErrCodec, tag)
	}
}

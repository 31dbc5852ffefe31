package wire

import "io"

// Connack is the broker->client reply to Connect.
type Connack struct {
	SessionPresent bool
	ReasonCode     ReasonCode
	AssignedClientID string
}

func (Connack) Type() uint8 { return CONNACK }

func (c Connack) WriteTo(w io.Writer) (int64, error) {
	var body []byte
	body = append(body, boolByte(c.SessionPresent))
	body = append(body, byte(c.ReasonCode))
	var props []byte
	if c.AssignedClientID != "" {
		props = append(props, PropAssignedClientID)
		props = appendString(props, c.AssignedClientID)
	}
	body = appendVarInt(body, len(props))
	body = append(body, props...)
	header := FixedHeader{PacketType: CONNACK, Remaining: len(body)}
	n1, err := header.WriteTo(w)
	if err != nil {
		return n1, err
	}
	n2, err := w.Write(body)
	return n1 + int64(n2), err
}

func decodeConnack(buf []byte) (Packet, error) {
	sessionPresent, n, err := readU8(buf)
	if err != nil {
		return nil, err
	}
	off := n
	reason, n, err := readU8(buf[off:])
	if err != nil {
		return nil, err
	}
	off += n
	c := Connack{SessionPresent: sessionPresent != 0, ReasonCode: ReasonCode(reason)}

	length, n, err := decodeVarIntBuf(buf[off:])
	if err != nil {
		return nil, err
	}
	off += n
	end := off + length
	for off < end {
		id := buf[off]
		off++
		switch id {
		case PropAssignedClientID:
			v, m, err := readString(buf[off:])
			if err != nil {
				return nil, err
			}
			c.AssignedClientID = v
			off += m
		default:
			return nil, &CodecError{PacketType: CONNACK, Err: errUnknownProp(id)}
		}
	}
	return c, nil
}

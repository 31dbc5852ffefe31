package wire

import (
	"fmt"
	"io"
)

// Connect is the client->broker frame that opens a session.
type Connect struct {
	ClientID       string
	CleanStart     bool
	KeepAlive      uint16
	Properties     ConnectProperties
	LastWillFlag   bool
	WillProperties ConnectProperties // reuses UserProperties/WillDelay via WillDelayInterval below
	WillDelay      uint32
	WillTopic      string
	WillPayload    []byte
	Username       string
	Password       string
}

func (Connect) Type() uint8 { return CONNECT }

func (c Connect) WriteTo(w io.Writer) (int64, error) {
	var body []byte
	body = appendString(body, c.ClientID)
	var flags uint8
	if c.CleanStart {
		flags |= 0x02
	}
	if c.LastWillFlag {
		flags |= 0x04
	}
	if c.Username != "" {
		flags |= 0x80
	}
	if c.Password != "" {
		flags |= 0x40
	}
	body = append(body, flags)
	body = appendU16(body, c.KeepAlive)
	body = append(body, encodeConnectProperties(c.Properties)...)
	if c.LastWillFlag {
		willProps := []byte{0x01, PropWillDelayInterval}
		willProps = appendU32(willProps, c.WillDelay)
		willProps[0] = byte(len(willProps) - 1)
		body = append(body, willProps...)
		body = appendString(body, c.WillTopic)
		body = appendBinary(body, c.WillPayload)
	}
	if c.Username != "" {
		body = appendString(body, c.Username)
	}
	if c.Password != "" {
		body = appendString(body, c.Password)
	}
	header := FixedHeader{PacketType: CONNECT, Remaining: len(body)}
	n1, err := header.WriteTo(w)
	if err != nil {
		return n1, err
	}
	n2, err := w.Write(body)
	return n1 + int64(n2), err
}

func decodeConnect(buf []byte) (Packet, error) {
	var c Connect
	clientID, n, err := readString(buf)
	if err != nil {
		return nil, err
	}
	off := n
	c.ClientID = clientID
	flags, n, err := readU8(buf[off:])
	if err != nil {
		return nil, err
	}
	off += n
	c.CleanStart = flags&0x02 != 0
	c.LastWillFlag = flags&0x04 != 0
	hasUsername := flags&0x80 != 0
	hasPassword := flags&0x40 != 0

	keepAlive, n, err := readU16(buf[off:])
	if err != nil {
		return nil, err
	}
	off += n
	c.KeepAlive = keepAlive

	props, n, err := decodeConnectProperties(buf[off:])
	if err != nil {
		return nil, err
	}
	off += n
	c.Properties = props

	if c.LastWillFlag {
		length, n, err := decodeVarIntBuf(buf[off:])
		if err != nil {
			return nil, err
		}
		off += n
		willEnd := off + length
		for off < willEnd {
			id := buf[off]
			off++
			switch id {
			case PropWillDelayInterval:
				v, n, err := readU32(buf[off:])
				if err != nil {
					return nil, err
				}
				c.WillDelay = v
				off += n
			default:
				return nil, fmt.Errorf("%w: unknown will property id 0x%02X", ErrCodec, id)
			}
		}
		topic, n, err := readString(buf[off:])
		if err != nil {
			return nil, err
		}
		off += n
		c.WillTopic = topic
		payload, n, err := readBinary(buf[off:])
		if err != nil {
			return nil, err
		}
		off += n
		c.WillPayload = payload
	}

	if hasUsername {
		username, n, err := readString(buf[off:])
		if err != nil {
			return nil, err
		}
		off += n
		c.Username = username
	}
	if hasPassword {
		password, _, err := readString(buf[off:])
		if err != nil {
			return nil, err
		}
		c.Password = password
	}
	return c, nil
}

package wire

import "fmt"

// Property IDs. Each MQTT property is a single byte id followed by its
// typed value; the id alone determines how the value is decoded, which is
// what makes the format self-describing.
const (
	PropPayloadFormatIndicator uint8 = 0x01
	PropMessageExpiryInterval uint8 = 0x02
	PropContentType           uint8 = 0x03
	PropResponseTopic         uint8 = 0x08
	PropCorrelationData       uint8 = 0x09
	PropSubscriptionID        uint8 = 0x0B
	PropSessionExpiryInterval uint8 = 0x11
	PropAssignedClientID      uint8 = 0x12
	PropAuthMethod            uint8 = 0x15
	PropAuthData              uint8 = 0x16
	PropRequestProblemInfo    uint8 = 0x17
	PropWillDelayInterval     uint8 = 0x18
	PropRequestResponseInfo   uint8 = 0x19
	PropReceiveMaximum        uint8 = 0x21
	PropTopicAliasMaximum     uint8 = 0x22
	PropUserProperty          uint8 = 0x26
	PropMaximumPacketSize     uint8 = 0x27
)

// ConnectProperties holds the Connect frame's property set named in §6.
type ConnectProperties struct {
	SessionExpiryInterval     uint32
	ReceiveMaximum            uint16
	MaximumPacketSize         uint32
	TopicAliasMaximum         uint16
	RequestResponseInfo       bool
	RequestProblemInfo        bool
	UserProperties            [][2]string
	AuthenticationMethod      string
	AuthenticationData        []byte
}

func encodeConnectProperties(p ConnectProperties) []byte {
	var body []byte
	body = append(body, PropSessionExpiryInterval)
	body = appendU32(body, p.SessionExpiryInterval)
	body = append(body, PropReceiveMaximum)
	body = appendU16(body, p.ReceiveMaximum)
	if p.MaximumPacketSize != 0 {
		body = append(body, PropMaximumPacketSize)
		body = appendU32(body, p.MaximumPacketSize)
	}
	body = append(body, PropTopicAliasMaximum)
	body = appendU16(body, p.TopicAliasMaximum)
	body = append(body, PropRequestResponseInfo)
	body = appendU8(body, boolByte(p.RequestResponseInfo))
	body = append(body, PropRequestProblemInfo)
	body = appendU8(body, boolByte(p.RequestProblemInfo))
	if p.AuthenticationMethod != "" {
		body = append(body, PropAuthMethod)
		body = appendString(body, p.AuthenticationMethod)
		body = append(body, PropAuthData)
		body = appendBinary(body, p.AuthenticationData)
	}
	for _, up := range p.UserProperties {
		body = append(body, PropUserProperty)
		body = appendString(body, up[0])
		body = appendString(body, up[1])
	}
	out := appendVarInt(make([]byte, 0, len(body)+4), len(body))
	return append(out, body...)
}

func decodeConnectProperties(buf []byte) (ConnectProperties, int, error) {
	length, n, err := decodeVarIntBuf(buf)
	if err != nil {
		return ConnectProperties{}, 0, err
	}
	off := n
	end := off + length
	if end > len(buf) {
		return ConnectProperties{}, 0, fmt.Errorf("%w: property length exceeds remaining stream", ErrCodec)
	}
	var p ConnectProperties
	for off < end {
		id := buf[off]
		off++
		switch id {
		case PropSessionExpiryInterval:
			v, m, err := readU32(buf[off:])
			if err != nil {
				return p, 0, err
			}
			p.SessionExpiryInterval = v
			off += m
		case PropReceiveMaximum:
			v, m, err := readU16(buf[off:])
			if err != nil {
				return p, 0, err
			}
			p.ReceiveMaximum = v
			off += m
		case PropMaximumPacketSize:
			v, m, err := readU32(buf[off:])
			if err != nil {
				return p, 0, err
			}
			p.MaximumPacketSize = v
			off += m
		case PropTopicAliasMaximum:
			v, m, err := readU16(buf[off:])
			if err != nil {
				return p, 0, err
			}
			p.TopicAliasMaximum = v
			off += m
		case PropRequestResponseInfo:
			v, m, err := readU8(buf[off:])
			if err != nil {
				return p, 0, err
			}
			p.RequestResponseInfo = v != 0
			off += m
		case PropRequestProblemInfo:
			v, m, err := readU8(buf[off:])
			if err != nil {
				return p, 0, err
			}
			p.RequestProblemInfo = v != 0
			off += m
		case PropAuthMethod:
			v, m, err := readString(buf[off:])
			if err != nil {
				return p, 0, err
			}
			p.AuthenticationMethod = v
			off += m
		case PropAuthData:
			v, m, err := readBinary(buf[off:])
			if err != nil {
				return p, 0, err
			}
			p.AuthenticationData = v
			off += m
		case PropUserProperty:
			k, m, err := readString(buf[off:])
			if err != nil {
				return p, 0, err
			}
			off += m
			v, m, err := readString(buf[off:])
			if err != nil {
				return p, 0, err
			}
			off += m
			p.UserProperties = append(p.UserProperties, [2]string{k, v})
		default:
			return p, 0, fmt.Errorf("%w: unknown connect property id 0x%02X", ErrCodec, id)
		}
	}
	return p, off, nil
}

// PublishProperties holds the Publish frame's property set named in §6.
type PublishProperties struct {
	PayloadFormatIndicator uint8
	MessageExpiryInterval  uint32
	TopicAlias             uint16
	ResponseTopic          string
	CorrelationData        []byte
	UserProperties         [][2]string
	SubscriptionIdentifier int
	ContentType            string
}

func encodePublishProperties(p PublishProperties) []byte {
	var body []byte
	body = append(body, PropPayloadFormatIndicator)
	body = appendU8(body, p.PayloadFormatIndicator)
	if p.MessageExpiryInterval != 0 {
		body = append(body, PropMessageExpiryInterval)
		body = appendU32(body, p.MessageExpiryInterval)
	}
	if p.ResponseTopic != "" {
		body = append(body, PropResponseTopic)
		body = appendString(body, p.ResponseTopic)
	}
	if p.CorrelationData != nil {
		body = append(body, PropCorrelationData)
		body = appendBinary(body, p.CorrelationData)
	}
	if p.SubscriptionIdentifier != 0 {
		body = append(body, PropSubscriptionID)
		body = appendVarInt(body, p.SubscriptionIdentifier)
	}
	if p.ContentType != "" {
		body = append(body, PropContentType)
		body = appendString(body, p.ContentType)
	}
	for _, up := range p.UserProperties {
		body = append(body, PropUserProperty)
		body = appendString(body, up[0])
		body = appendString(body, up[1])
	}
	out := appendVarInt(make([]byte, 0, len(body)+4), len(body))
	return append(out, body...)
}

func decodePublishProperties(buf []byte) (PublishProperties, int, error) {
	length, n, err := decodeVarIntBuf(buf)
	if err != nil {
		return PublishProperties{}, 0, err
	}
	off := n
	end := off + length
	if end > len(buf) {
		return PublishProperties{}, 0, fmt.Errorf("%w: property length exceeds remaining stream", ErrCodec)
	}
	var p PublishProperties
	for off < end {
		id := buf[off]
		off++
		switch id {
		case PropPayloadFormatIndicator:
			v, m, err := readU8(buf[off:])
			if err != nil {
				return p, 0, err
			}
			p.PayloadFormatIndicator = v
			off += m
		case PropMessageExpiryInterval:
			v, m, err := readU32(buf[off:])
			if err != nil {
				return p, 0, err
			}
			p.MessageExpiryInterval = v
			off += m
		case PropResponseTopic:
			v, m, err := readString(buf[off:])
			if err != nil {
				return p, 0, err
			}
			p.ResponseTopic = v
			off += m
		case PropCorrelationData:
			v, m, err := readBinary(buf[off:])
			if err != nil {
				return p, 0, err
			}
			p.CorrelationData = v
			off += m
		case PropSubscriptionID:
			v, m, err := decodeVarIntBuf(buf[off:])
			if err != nil {
				return p, 0, err
			}
			p.SubscriptionIdentifier = v
			off += m
		case PropContentType:
			v, m, err := readString(buf[off:])
			if err != nil {
				return p, 0, err
			}
			p.ContentType = v
			off += m
		case PropUserProperty:
			k, m, err := readString(buf[off:])
			if err != nil {
				return p, 0, err
			}
			off += m
			v, m, err := readString(buf[off:])
			if err != nil {
				return p, 0, err
			}
			off += m
			p.UserProperties = append(p.UserProperties, [2]string{k, v})
		default:
			return p, 0, fmt.Errorf("%w: unknown publish property id 0x%02X", ErrCodec, id)
		}
	}
	return p, off, nil
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// decodeVarIntBuf is the buffer-oriented counterpart of decodeVarInt, used
// where we already hold the full remaining bytes in memory.
func decodeVarIntBuf(buf []byte) (int, int, error) {
	var value, multiplier int
	for i := 0; i < 4; i++ {
		if i >= len(buf) {
			return 0, 0, fmt.Errorf("%w: buffer too short for variable byte integer", ErrCodec)
		}
		b := buf[i]
		value += int(b&0x7F) * pow128(multiplier)
		multiplier++
		if b&0x80 == 0 {
			return value, i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: variable byte integer too long", ErrCodec)
}

func pow128(n int) int {
	v := 1
	for i := 0; i < n; i++ {
		v *= 128
	}
	return v
}

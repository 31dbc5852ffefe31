package wire

// ReasonCode is the single-byte outcome code carried in CONNACK, PUBACK,
// SUBACK, UNSUBACK and DISCONNECT packets. Codes 0x00-0x7F are success,
// 0x80-0xFF are failure.
type ReasonCode uint8

const (
	ReasonSuccess                ReasonCode = 0x00
	ReasonNormalDisconnect       ReasonCode = 0x00
	ReasonGrantedQoS1            ReasonCode = 0x01
	ReasonDisconnectWithWill     ReasonCode = 0x04
	ReasonNoMatchingSubscribers  ReasonCode = 0x10
	ReasonNoSubscriptionExisted  ReasonCode = 0x11
	ReasonUnspecifiedError       ReasonCode = 0x80
	ReasonMalformedPacket        ReasonCode = 0x81
	ReasonProtocolError          ReasonCode = 0x82
	ReasonNotAuthorized          ReasonCode = 0x87
	ReasonServerBusy             ReasonCode = 0x89
	ReasonServerShuttingDown     ReasonCode = 0x8B
	ReasonBadAuthMethod          ReasonCode = 0x8C
	ReasonKeepAliveTimeout       ReasonCode = 0x8D
	ReasonSessionTakenOver       ReasonCode = 0x8E
	ReasonTopicFilterInvalid     ReasonCode = 0x90
	ReasonTopicNameInvalid       ReasonCode = 0x91
	ReasonPacketIdentNotFound    ReasonCode = 0x92
	ReasonReceiveMaximumExceeded ReasonCode = 0x93
	ReasonQuotaExceeded          ReasonCode = 0x97
	ReasonAdministrativeAction   ReasonCode = 0x98
)

func (r ReasonCode) Success() bool { return uint8(r) < 0x80 }

var reasonNames = map[ReasonCode]string{
	ReasonSuccess:                "success",
	ReasonGrantedQoS1:            "granted qos 1",
	ReasonDisconnectWithWill:     "disconnect with will message",
	ReasonNoMatchingSubscribers:  "no matching subscribers",
	ReasonNoSubscriptionExisted:  "no subscription existed",
	ReasonUnspecifiedError:       "unspecified error",
	ReasonMalformedPacket:        "malformed packet",
	ReasonProtocolError:          "protocol error",
	ReasonNotAuthorized:          "not authorized",
	ReasonServerBusy:             "server busy",
	ReasonServerShuttingDown:     "server shutting down",
	ReasonBadAuthMethod:          "bad authentication method",
	ReasonKeepAliveTimeout:       "keep alive timeout",
	ReasonSessionTakenOver:       "session taken over",
	ReasonTopicFilterInvalid:     "topic filter invalid",
	ReasonTopicNameInvalid:       "topic name invalid",
	ReasonPacketIdentNotFound:    "packet identifier not found",
	ReasonReceiveMaximumExceeded: "receive maximum exceeded",
	ReasonQuotaExceeded:          "quota exceeded",
	ReasonAdministrativeAction:   "administrative action",
}

func (r ReasonCode) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return "unknown reason code"
}

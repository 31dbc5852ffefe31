package broker

import "errors"

// Sentinel errors surfaced by the broker core, per spec §7.
var (
	// ErrAuth is wrapped by the AuthError the connection handler logs when
	// a Connect's credentials do not match the static credential store; the
	// client receives a NotAuthorized Connack.
	ErrAuth = errors.New("broker: not authorized")

	// ErrProtocol is wrapped by the ProtocolError the connection handler
	// logs when a connection sends a packet that is not valid for its
	// current lifecycle state; the connection is then closed.
	ErrProtocol = errors.New("broker: unexpected packet for connection state")

	// ErrInvalidCommand is returned by the admin console for any input
	// other than "shutdown".
	ErrInvalidCommand = errors.New("invalid command")

	// ErrBind is returned when the broker cannot bind its listening port.
	ErrBind = errors.New("broker: bind failed")
)

// AuthError wraps ErrAuth with the offending client id.
type AuthError struct {
	ClientID string
}

func (e *AuthError) Error() string { return "broker: not authorized: " + e.ClientID }
func (e *AuthError) Unwrap() error { return ErrAuth }

// ProtocolError wraps ErrProtocol with the packet type that triggered it.
type ProtocolError struct {
	ClientID   string
	PacketType uint8
}

func (e *ProtocolError) Error() string {
	return "broker: protocol error from " + e.ClientID
}
func (e *ProtocolError) Unwrap() error { return ErrProtocol }

package agentnet

import "errors"

var (
	// ErrClientDisconnected is returned to any pending token when the
	// client is disconnected before its ack arrives.
	ErrClientDisconnected = errors.New("agentnet: client disconnected")

	// ErrUnexpectedAck is logged by the inbound loop when an ack references
	// a packet id not present in the pending-ack table; the ack is dropped.
	ErrUnexpectedAck = errors.New("agentnet: unexpected ack")

	// ErrNotAuthorized is returned when the broker rejects Connect.
	ErrNotAuthorized = errors.New("agentnet: not authorized")

	// ErrLock names inconsistent shared client state. No code path in this
	// package detects such a state or returns this error.
	ErrLock = errors.New("agentnet: shared client state inconsistent")
)

package drone

import "errors"

// ErrUnknownDrone is returned when an operation names a drone id the
// center does not currently own.
var ErrUnknownDrone = errors.New("drone: unknown drone id")

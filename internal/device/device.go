package device

import (
	"context"
	"errors"
	"fmt"
)

// NotFoundError represents an error when a BLE resource is not found
type NotFoundError struct {
	Resource string   // "device", "service", "characteristic"
	IDs      []string // One or more identifiers (e.g., [name] or [serviceUUID, charUUID])
}

func (e *NotFoundError) Error() string {
	if len(e.IDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.IDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.IDs[0])
	}
	// characteristic is looked up inside a service
	return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.IDs[len(e.IDs)-1], e.IDs[0])
}

// Is makes every NotFoundError match ErrNotFound
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}

	ErrNotFound     = errors.New("not found")
	ErrBluetoothOff = errors.New("bluetooth is turned off")
	ErrUnsupported  = errors.New("unsupported")
)

// Advertisement is the subset of advertising data the pipeline relies on
type Advertisement interface {
	LocalName() string
	Addr() string
	RSSI() int
}

// Scanner discovers advertising peripherals
type Scanner interface {
	Scan(ctx context.Context, allowDup bool, handler func(Advertisement)) error
}

// Central is a BLE adapter able to scan and dial peripherals
type Central interface {
	Scanner
	Dial(ctx context.Context, address string) (Peripheral, error)
}

// Peripheral is a live connection to a single BLE device.
//
// Subscribe handlers are invoked on the backend's notification goroutine and
// must return quickly; the payload slice is only valid for the duration of the call.
type Peripheral interface {
	Address() string
	Subscribe(serviceUUID, charUUID string, handler func(data []byte)) error
	Disconnected() <-chan struct{}
	Disconnect() error
}

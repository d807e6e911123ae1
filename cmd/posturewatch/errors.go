package main

import (
	"errors"
	"fmt"

	"github.com/srg/posturewatch/internal/device"
	"github.com/srg/posturewatch/internal/storage"
)

// Command-level errors
var (
	// ErrConnectionLost indicates the BLE connection dropped while recording.
	// There is no automatic reconnect; the operator restarts the recorder.
	ErrConnectionLost = errors.New("connection lost")
)

// FormatUserError renders err for the operator console.
func FormatUserError(err error) string {
	var notFound *device.NotFoundError
	switch {
	case errors.As(err, &notFound) && notFound.Resource == "device" && len(notFound.IDs) > 0:
		return fmt.Sprintf("device %q not found; make sure it is powered on and advertising", notFound.IDs[0])
	case errors.As(err, &notFound):
		return fmt.Sprintf("%s; is the firmware exposing the expected GATT profile?", notFound.Error())
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off or no adapter is available"
	case errors.Is(err, ErrConnectionLost):
		return "connection to the device was lost; restart the recorder to resume"
	case errors.Is(err, storage.ErrUnavailable):
		return fmt.Sprintf("remote storage unavailable (%v); check drive.credentials_file and drive.token_file", err)
	default:
		return err.Error()
	}
}

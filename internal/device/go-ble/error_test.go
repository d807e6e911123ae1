package goble

import (
	"context"
	"errors"
	"testing"

	"github.com/srg/posturewatch/internal/device"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expectIs error
	}{
		{
			name:     "darwin powered off state",
			err:      errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"),
			expectIs: device.ErrBluetoothOff,
		},
		{
			name:     "linux hci init failure",
			err:      errors.New("can't init hci: no devices available"),
			expectIs: device.ErrBluetoothOff,
		},
		{
			name:     "disconnected",
			err:      errors.New("peripheral disconnected"),
			expectIs: device.ErrNotConnected,
		},
		{
			name:     "already connected",
			err:      errors.New("device already connected"),
			expectIs: device.ErrAlreadyConnected,
		},
		{
			name:     "context canceled passes through",
			err:      context.Canceled,
			expectIs: context.Canceled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeError(tt.err)
			assert.ErrorIs(t, got, tt.expectIs, "error chain MUST contain expected sentinel error")
			assert.Contains(t, got.Error(), tt.err.Error(), "original message MUST be preserved")
		})
	}

	assert.NoError(t, NormalizeError(nil))
}

package device

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotFoundError(t *testing.T) {
	tests := []struct {
		name     string
		err      *NotFoundError
		expected string
	}{
		{"no ids", &NotFoundError{Resource: "device"}, "device not found"},
		{"device name", &NotFoundError{Resource: "device", IDs: []string{"NiclaSenseCSV"}}, `device "NiclaSenseCSV" not found`},
		{"characteristic in service", &NotFoundError{Resource: "characteristic", IDs: []string{"19b10000", "19b10002"}}, `characteristic "19b10002" not found in service "19b10000"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
			assert.ErrorIs(t, fmt.Errorf("wrapped: %w", tt.err), ErrNotFound, "NotFoundError MUST match ErrNotFound")
		})
	}
}

func TestConnectionErrorMatchesByState(t *testing.T) {
	err := fmt.Errorf("subscribe: %w", &ConnectionError{State: NotConnected, Msg: "link dropped"})

	assert.ErrorIs(t, err, ErrNotConnected)
	assert.False(t, errors.Is(err, ErrAlreadyConnected), "different state MUST NOT match")
	assert.Equal(t, "not_connected: link dropped", errors.Unwrap(err).Error())
	assert.Equal(t, "already_connected", ErrAlreadyConnected.Error())
}

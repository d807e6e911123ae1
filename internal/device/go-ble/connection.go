package goble

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/posturewatch/internal/device"
)

// subscription remembers how a characteristic was subscribed so that it can be undone
type subscription struct {
	char     *ble.Characteristic
	indicate bool
}

// Connection is a live go-ble client connection implementing device.Peripheral
type Connection struct {
	address string
	client  ble.Client
	profile *ble.Profile
	logger  *logrus.Logger

	mu            sync.Mutex
	subscriptions []subscription
	closed        bool
}

func newConnection(address string, client ble.Client, profile *ble.Profile, logger *logrus.Logger) *Connection {
	return &Connection{
		address: address,
		client:  client,
		profile: profile,
		logger:  logger,
	}
}

// Address returns the peripheral address
func (c *Connection) Address() string {
	return c.address
}

// Disconnected is closed by go-ble when the link drops
func (c *Connection) Disconnected() <-chan struct{} {
	return c.client.Disconnected()
}

// findCharacteristic looks a characteristic up in the discovered profile.
// Both UUIDs are normalized for a consistent lookup.
func (c *Connection) findCharacteristic(serviceUUID, charUUID string) (*ble.Characteristic, error) {
	svcID := device.NormalizeUUID(serviceUUID)
	charID := device.NormalizeUUID(charUUID)

	for _, svc := range c.profile.Services {
		if device.NormalizeUUID(svc.UUID.String()) != svcID {
			continue
		}
		for _, char := range svc.Characteristics {
			if device.NormalizeUUID(char.UUID.String()) == charID {
				return char, nil
			}
		}
		return nil, &device.NotFoundError{Resource: "characteristic", IDs: []string{serviceUUID, charUUID}}
	}
	return nil, &device.NotFoundError{Resource: "service", IDs: []string{serviceUUID}}
}

// Subscribe enables notifications (or indications, when that is all the
// characteristic supports) and forwards every payload to handler.
func (c *Connection) Subscribe(serviceUUID, charUUID string, handler func(data []byte)) error {
	if handler == nil {
		return fmt.Errorf("no handler specified for characteristic %s", charUUID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return device.ErrNotConnected
	}

	char, err := c.findCharacteristic(serviceUUID, charUUID)
	if err != nil {
		return err
	}

	var indicate bool
	switch {
	case char.Property&ble.CharNotify != 0:
	case char.Property&ble.CharIndicate != 0:
		indicate = true
	default:
		return fmt.Errorf("characteristic %s does not support notifications: %w", charUUID, device.ErrUnsupported)
	}

	if err := c.client.Subscribe(char, indicate, func(req []byte) { handler(req) }); err != nil {
		c.logger.WithFields(logrus.Fields{
			"serviceUUID": serviceUUID,
			"charUUID":    charUUID,
			"error":       err,
		}).Error("Failed to subscribe to characteristic notifications")
		return fmt.Errorf("subscribe %s: %w", charUUID, NormalizeError(err))
	}

	c.subscriptions = append(c.subscriptions, subscription{char: char, indicate: indicate})
	c.logger.WithFields(logrus.Fields{
		"serviceUUID": serviceUUID,
		"charUUID":    charUUID,
	}).Info("Successfully subscribed to characteristic notifications")
	return nil
}

// Disconnect unsubscribes everything and cancels the connection. Safe to call more than once.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.logger.Debug("Disconnect called but already disconnected")
		return nil
	}
	c.closed = true
	subs := c.subscriptions
	c.subscriptions = nil
	c.mu.Unlock()

	c.logger.WithField("address", c.address).Info("Disconnecting BLE device...")

	var unsubscribeErrors []string
	for _, sub := range subs {
		if err := NormalizeError(c.client.Unsubscribe(sub.char, sub.indicate)); err != nil {
			unsubscribeErrors = append(unsubscribeErrors, fmt.Sprintf("%s: %v", sub.char.UUID.String(), err))
		}
	}
	if len(unsubscribeErrors) > 0 {
		c.logger.WithField("errors", strings.Join(unsubscribeErrors, "; ")).Warn("Failed to unsubscribe from some characteristics during disconnect")
	}

	if err := c.client.CancelConnection(); err != nil {
		c.logger.WithField("error", err).Warn("BLE device disconnected with errors")
		return NormalizeError(err)
	}
	c.logger.Info("BLE device disconnected successfully")
	return nil
}

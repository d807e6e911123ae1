package goble

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/posturewatch/internal/device"
)

// Central wraps a ble.Device to implement the device.Central interface
type Central struct {
	dev    ble.Device
	logger *logrus.Logger
}

// NewCentral creates a device.Central on top of the platform BLE adapter.
func NewCentral(logger *logrus.Logger) (*Central, error) {
	if logger == nil {
		logger = logrus.New()
	}

	dev, err := DeviceFactory()
	if err != nil {
		logger.WithError(err).Error("Failed to create BLE device")
		return nil, fmt.Errorf("failed to create BLE device: %w", NormalizeError(err))
	}
	return &Central{dev: dev, logger: logger}, nil
}

// Scan wraps the raw ble.Device.Scan to convert ble.Advertisement to the device.Advertisement
func (c *Central) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	bleHandler := func(adv ble.Advertisement) {
		handler(NewBLEAdvertisement(adv))
	}
	if err := c.dev.Scan(ctx, allowDup, bleHandler); err != nil {
		return NormalizeError(err)
	}
	return nil
}

// Dial connects to the peripheral at address and discovers its GATT profile.
func (c *Central) Dial(ctx context.Context, address string) (device.Peripheral, error) {
	if strings.TrimSpace(address) == "" {
		return nil, fmt.Errorf("device address is empty")
	}

	c.logger.WithField("address", address).Debug("Dialing BLE device...")
	client, err := c.dev.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to dial BLE device")
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", address, NormalizeError(err))
	}

	c.logger.WithField("address", address).Debug("Discovering services and characteristics...")
	profile, err := client.DiscoverProfile(true)
	if err != nil {
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			c.logger.WithField("cancel_error", cancelErr).Warn("Failed to cancel connection during profile discovery failure")
		}
		return nil, fmt.Errorf("failed to discover profile: %w", NormalizeError(err))
	}

	c.logger.WithFields(logrus.Fields{
		"address":  address,
		"services": len(profile.Services),
	}).Info("BLE device connected successfully")

	return newConnection(address, client, profile, c.logger), nil
}

// Package telemetry discovers the posture sensor, subscribes to its sensor and
// alert characteristics, and routes every notification to the CSV sink or the
// alert relay.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/posturewatch/internal/device"
)

// Firmware defaults
const (
	DefaultDeviceName  = "NiclaSenseCSV"
	DefaultServiceUUID = "19B10000-E8F2-537E-4F6C-D104768A1214"
	DefaultSensorUUID  = "19B10001-E8F2-537E-4F6C-D104768A1214"
	DefaultAlertUUID   = "19B10002-E8F2-537E-4F6C-D104768A1214"

	DefaultScanTimeout    = 10 * time.Second
	DefaultConnectTimeout = 30 * time.Second
	DefaultDrainTimeout   = 5 * time.Second
)

// ChannelIDs names the GATT service and the two notification characteristics.
type ChannelIDs struct {
	Service string
	Sensor  string
	Alert   string
}

// DefaultChannelIDs returns the identifiers used by the wearable firmware.
func DefaultChannelIDs() ChannelIDs {
	return ChannelIDs{
		Service: DefaultServiceUUID,
		Sensor:  DefaultSensorUUID,
		Alert:   DefaultAlertUUID,
	}
}

// ClientOptions configures a Client
type ClientOptions struct {
	Channels       ChannelIDs
	ConnectTimeout time.Duration
	DrainTimeout   time.Duration
}

// Client drives one BLE central.
type Client struct {
	central device.Central
	opts    ClientOptions
	logger  *logrus.Logger
}

// NewClient creates a telemetry client on top of central.
func NewClient(central device.Central, opts ClientOptions, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.Channels == (ChannelIDs{}) {
		opts.Channels = DefaultChannelIDs()
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = DefaultDrainTimeout
	}
	return &Client{central: central, opts: opts, logger: logger}
}

// Discover scans until a peripheral advertising name is seen or timeout
// elapses. It does not retry.
func (c *Client) Discover(ctx context.Context, name string, timeout time.Duration) (device.Advertisement, error) {
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}

	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	foundCh := make(chan device.Advertisement, 1)
	c.logger.WithFields(logrus.Fields{
		"name":    name,
		"timeout": timeout,
	}).Info("Scanning for device...")

	err := c.central.Scan(scanCtx, false, func(adv device.Advertisement) {
		if adv.LocalName() != name {
			return
		}
		select {
		case foundCh <- adv:
			cancel()
		default:
		}
	})

	var found device.Advertisement
	select {
	case found = <-foundCh:
	default:
	}
	if found != nil {
		c.logger.WithFields(logrus.Fields{
			"name":    name,
			"address": found.Addr(),
			"rssi":    found.RSSI(),
		}).Info("Found device")
		return found, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	return nil, &device.NotFoundError{Resource: "device", IDs: []string{name}}
}

// ConnectAndSubscribe dials adv, subscribes the router to both channels and
// starts its workers. On failure nothing is left connected.
func (c *Client) ConnectAndSubscribe(ctx context.Context, adv device.Advertisement, router *Router) (*Session, error) {
	dialCtx, cancelDial := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	peripheral, err := c.central.Dial(dialCtx, adv.Addr())
	cancelDial()
	if err != nil {
		return nil, err
	}

	// workers outlive the connect context and are stopped by Session.Close
	workerCtx, cancelWorkers := context.WithCancel(context.WithoutCancel(ctx))
	router.Start(workerCtx)

	ids := c.opts.Channels
	subscriptions := []struct {
		char    string
		handler func([]byte)
	}{
		{ids.Sensor, router.OnSensor},
		{ids.Alert, router.OnAlert},
	}
	for _, sub := range subscriptions {
		if err := peripheral.Subscribe(ids.Service, sub.char, sub.handler); err != nil {
			if dErr := peripheral.Disconnect(); dErr != nil {
				c.logger.WithError(dErr).Warn("Failed to disconnect after subscribe failure")
			}
			router.Stop(c.opts.DrainTimeout)
			cancelWorkers()
			return nil, fmt.Errorf("failed to subscribe to %s: %w", sub.char, err)
		}
	}

	c.logger.WithField("address", peripheral.Address()).Info("Subscribed to sensor and alert notifications")
	return &Session{
		peripheral:    peripheral,
		router:        router,
		cancelWorkers: cancelWorkers,
		drainTimeout:  c.opts.DrainTimeout,
		logger:        c.logger,
	}, nil
}

// Session is an active connection with both subscriptions in place.
type Session struct {
	peripheral    device.Peripheral
	router        *Router
	cancelWorkers context.CancelFunc
	drainTimeout  time.Duration
	logger        *logrus.Logger

	closeOnce sync.Once
	closeErr  error
}

// Address returns the peripheral address
func (s *Session) Address() string {
	return s.peripheral.Address()
}

// Wait blocks until ctx is cancelled (returns nil) or the peripheral drops the
// connection (returns device.ErrNotConnected).
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case <-s.peripheral.Disconnected():
		s.logger.WithField("address", s.peripheral.Address()).Warn("Device disconnected")
		return device.ErrNotConnected
	}
}

// Close disconnects, drains pending notifications and closes the sink.
// Safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if err := s.peripheral.Disconnect(); err != nil {
			s.logger.WithError(err).Warn("Failed to disconnect cleanly")
		}
		s.closeErr = s.router.Close(s.drainTimeout)
		s.cancelWorkers()
	})
	return s.closeErr
}

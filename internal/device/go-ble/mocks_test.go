package goble

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/stretchr/testify/mock"
)

// mockDevice implements the parts of ble.Device the central uses.
// The embedded interface is nil; calling any other method panics.
type mockDevice struct {
	ble.Device
	mock.Mock
}

func (m *mockDevice) Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error {
	args := m.Called(ctx, allowDup, h)
	return args.Error(0)
}

func (m *mockDevice) Dial(ctx context.Context, a ble.Addr) (ble.Client, error) {
	args := m.Called(ctx, a)
	client, _ := args.Get(0).(ble.Client)
	return client, args.Error(1)
}

// mockClient implements the parts of ble.Client the connection uses
type mockClient struct {
	ble.Client
	mock.Mock

	handlers     map[string]ble.NotificationHandler
	disconnected chan struct{}
}

func newMockClient() *mockClient {
	return &mockClient{
		handlers:     make(map[string]ble.NotificationHandler),
		disconnected: make(chan struct{}),
	}
}

func (m *mockClient) DiscoverProfile(force bool) (*ble.Profile, error) {
	args := m.Called(force)
	profile, _ := args.Get(0).(*ble.Profile)
	return profile, args.Error(1)
}

func (m *mockClient) Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	args := m.Called(c, ind)
	if args.Error(0) == nil {
		m.handlers[c.UUID.String()] = h
	}
	return args.Error(0)
}

func (m *mockClient) Unsubscribe(c *ble.Characteristic, ind bool) error {
	return m.Called(c, ind).Error(0)
}

func (m *mockClient) CancelConnection() error {
	return m.Called().Error(0)
}

func (m *mockClient) Disconnected() <-chan struct{} {
	return m.disconnected
}

// notify simulates a notification arriving for the characteristic
func (m *mockClient) notify(c *ble.Characteristic, data []byte) {
	if h, ok := m.handlers[c.UUID.String()]; ok {
		h(data)
	}
}

type mockAdvertisement struct {
	ble.Advertisement
	name string
	addr string
}

func (a *mockAdvertisement) LocalName() string { return a.name }
func (a *mockAdvertisement) RSSI() int         { return -60 }
func (a *mockAdvertisement) Addr() ble.Addr    { return ble.NewAddr(a.addr) }

package telemetry

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/srg/posturewatch/internal/alerts"
	"github.com/srg/posturewatch/internal/device"
)

type fakeAdvertisement struct {
	name string
	addr string
}

func (a fakeAdvertisement) LocalName() string { return a.name }
func (a fakeAdvertisement) Addr() string      { return a.addr }
func (a fakeAdvertisement) RSSI() int         { return -60 }

type mockCentral struct {
	mock.Mock
	advertisements []device.Advertisement
}

func (m *mockCentral) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	for _, adv := range m.advertisements {
		handler(adv)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockCentral) Dial(ctx context.Context, address string) (device.Peripheral, error) {
	args := m.Called(ctx, address)
	p, _ := args.Get(0).(device.Peripheral)
	return p, args.Error(1)
}

// fakePeripheral records subscriptions and lets tests push notifications.
type fakePeripheral struct {
	mu           sync.Mutex
	handlers     map[string]func([]byte)
	failOn       string
	disconnected chan struct{}
	disconnects  int
}

func newFakePeripheral() *fakePeripheral {
	return &fakePeripheral{
		handlers:     map[string]func([]byte){},
		disconnected: make(chan struct{}),
	}
}

func (p *fakePeripheral) Address() string { return "AA:BB:CC:DD:EE:FF" }

func (p *fakePeripheral) Subscribe(serviceUUID, charUUID string, handler func([]byte)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if charUUID == p.failOn {
		return &device.NotFoundError{Resource: "characteristic", IDs: []string{serviceUUID, charUUID}}
	}
	p.handlers[charUUID] = handler
	return nil
}

func (p *fakePeripheral) Disconnected() <-chan struct{} { return p.disconnected }

func (p *fakePeripheral) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnects++
	return nil
}

func (p *fakePeripheral) notify(charUUID string, payload string) {
	p.mu.Lock()
	h := p.handlers[charUUID]
	p.mu.Unlock()
	h([]byte(payload))
}

func (p *fakePeripheral) drop() {
	close(p.disconnected)
}

// recordingRelay captures alerts; it can be told to fail or block.
type recordingRelay struct {
	mu      sync.Mutex
	events  []alerts.Event
	err     error
	release chan struct{}
}

func (r *recordingRelay) Send(ctx context.Context, ev alerts.Event) error {
	if r.release != nil {
		select {
		case <-r.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingRelay) sent() []alerts.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]alerts.Event(nil), r.events...)
}

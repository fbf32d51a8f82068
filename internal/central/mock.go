package central

import (
	"context"
	"errors"
	"sync"
)

var (
	_ Central    = (*MockCentral)(nil)
	_ Adapter    = (*MockAdapter)(nil)
	_ Peripheral = (*MockPeripheral)(nil)
)

// MockCentral is a scriptable in-memory Central for tests. Fixture
// adapters and peripherals are configured up front; every GATT call is
// recorded so tests can assert call counts and ordering.
type MockCentral struct {
	mu       sync.Mutex
	adapters []*MockAdapter

	AdaptersErr error
	CloseCalls  int
}

// NewMockCentral creates a mock central exposing the given adapters.
func NewMockCentral(adapters ...*MockAdapter) *MockCentral {
	return &MockCentral{adapters: adapters}
}

func (m *MockCentral) Adapters(_ context.Context) ([]Adapter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AdaptersErr != nil {
		return nil, m.AdaptersErr
	}
	out := make([]Adapter, len(m.adapters))
	for i, a := range m.adapters {
		out[i] = a
	}
	return out, nil
}

func (m *MockCentral) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseCalls++
	return nil
}

// MockAdapter is a fixture radio adapter.
type MockAdapter struct {
	mu      sync.Mutex
	desc    string
	periphs []*MockPeripheral

	// HoldDiscoveryOpen keeps the discovery stream open after all
	// fixture peripherals have been replayed, until ctx is done. When
	// false the stream is closed after replay, modeling an event
	// source that terminates.
	HoldDiscoveryOpen bool

	StartDiscoveryErr error
	DiscoveryStarts   int
	DiscoveryStops    int
}

// NewMockAdapter creates a fixture adapter with the given description
// and peripherals.
func NewMockAdapter(desc string, periphs ...*MockPeripheral) *MockAdapter {
	return &MockAdapter{desc: desc, periphs: periphs}
}

func (a *MockAdapter) Description(_ context.Context) (string, error) {
	return a.desc, nil
}

func (a *MockAdapter) StartDiscovery(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.StartDiscoveryErr != nil {
		return a.StartDiscoveryErr
	}
	a.DiscoveryStarts++
	return nil
}

func (a *MockAdapter) StopDiscovery(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.DiscoveryStops++
	return nil
}

func (a *MockAdapter) Discoveries(ctx context.Context) (<-chan Peripheral, error) {
	a.mu.Lock()
	periphs := append([]*MockPeripheral(nil), a.periphs...)
	hold := a.HoldDiscoveryOpen
	a.mu.Unlock()

	out := make(chan Peripheral, len(periphs))
	for _, p := range periphs {
		out <- p
	}
	if !hold {
		close(out)
		return out, nil
	}
	go func() {
		<-ctx.Done()
		close(out)
	}()
	return out, nil
}

func (a *MockAdapter) Peripherals(_ context.Context) ([]Peripheral, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Peripheral, len(a.periphs))
	for i, p := range a.periphs {
		out[i] = p
	}
	return out, nil
}

// MockPeripheral is a fixture remote device. The zero value connects
// successfully, has no characteristics, and reports connected after
// Connect.
type MockPeripheral struct {
	mu sync.Mutex

	Adv      Advertisement
	PropsErr error

	Chars    []Characteristic
	CharsErr error

	ConnectErr error
	// FailConnectedChecks makes the first n Connected calls report
	// false even after a successful Connect.
	FailConnectedChecks int

	// Reply holds notification payloads emitted, in order, after each
	// with-acknowledgement write while a subscription is active.
	Reply [][]byte

	connected  bool
	subscribed bool
	notify     chan []byte

	// Calls is the ordered operation log: "connect", "connected",
	// "disconnect", "characteristics", "subscribe", "unsubscribe",
	// "write-ack", "write-noack".
	Calls           []string
	Writes          [][]byte
	WriteModes      []WriteMode
	DisconnectCalls int
	SubscribeCalls  int
}

func (p *MockPeripheral) record(op string) {
	p.Calls = append(p.Calls, op)
}

func (p *MockPeripheral) Properties(_ context.Context) (Advertisement, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.PropsErr != nil {
		return Advertisement{}, p.PropsErr
	}
	return p.Adv, nil
}

func (p *MockPeripheral) Connect(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("connect")
	if p.ConnectErr != nil {
		return p.ConnectErr
	}
	p.connected = true
	return nil
}

func (p *MockPeripheral) Connected(_ context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("connected")
	if p.FailConnectedChecks > 0 {
		p.FailConnectedChecks--
		return false, nil
	}
	return p.connected, nil
}

func (p *MockPeripheral) Disconnect(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("disconnect")
	p.DisconnectCalls++
	p.connected = false
	return nil
}

func (p *MockPeripheral) Characteristics(_ context.Context) ([]Characteristic, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("characteristics")
	if p.CharsErr != nil {
		return nil, p.CharsErr
	}
	return append([]Characteristic(nil), p.Chars...), nil
}

func (p *MockPeripheral) Write(_ context.Context, _ Characteristic, data []byte, mode WriteMode) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if mode == WriteWithResponse {
		p.record("write-ack")
	} else {
		p.record("write-noack")
	}
	p.Writes = append(p.Writes, append([]byte(nil), data...))
	p.WriteModes = append(p.WriteModes, mode)
	if mode == WriteWithResponse && p.subscribed && len(p.Reply) > 0 {
		reply := p.Reply[0]
		p.Reply = p.Reply[1:]
		select {
		case p.notify <- reply:
		default:
		}
	}
	return nil
}

func (p *MockPeripheral) Subscribe(_ context.Context, _ Characteristic) (<-chan []byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("subscribe")
	p.SubscribeCalls++
	if p.notify == nil {
		p.notify = make(chan []byte, 16)
	}
	p.subscribed = true
	return p.notify, nil
}

func (p *MockPeripheral) Unsubscribe(_ context.Context, _ Characteristic) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("unsubscribe")
	p.subscribed = false
	return nil
}

// PushNotification delivers data on the notification stream, as the
// peripheral firmware would. Subscribe must have been called first.
func (p *MockPeripheral) PushNotification(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.notify == nil {
		return errors.New("central: mock peripheral has no subscriber")
	}
	p.notify <- data
	return nil
}

// CloseStream terminates the notification stream, modeling a link drop.
func (p *MockPeripheral) CloseStream() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.notify != nil {
		close(p.notify)
		p.notify = nil
	}
	p.subscribed = false
}

// CallLog returns a copy of the ordered operation log.
func (p *MockPeripheral) CallLog() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.Calls...)
}

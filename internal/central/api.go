// Package central defines the public interfaces for the local
// Bluetooth Low Energy central role: adapter enumeration, peripheral
// discovery, and per-peripheral GATT operations (connect, write,
// notification subscription).
//
// Thread-safety: a Peripheral may be used by at most two concurrent
// operations (one notification consumer and one writer); none of its
// methods mutate caller-visible state, so no additional locking is
// required beyond what the implementation provides for interleaved
// calls. Central.Close is safe to call concurrently and is idempotent.
package central

import (
	"context"
	"math"

	"github.com/google/uuid"
)

// RSSIUnknown is the sentinel signal strength reported when a
// peripheral's advertisement did not carry an RSSI value. It sorts
// below every real reading.
const RSSIUnknown int16 = math.MinInt16

// WriteMode selects the GATT write acknowledgement semantics.
type WriteMode int

const (
	// WriteWithResponse requests link-layer confirmation of delivery.
	WriteWithResponse WriteMode = iota
	// WriteWithoutResponse is fire-and-forget; the call must not block
	// waiting for a link-layer acknowledgement.
	WriteWithoutResponse
)

// Advertisement is a cached snapshot of a peripheral's advertised
// properties. It is read from the adapter's cache, not a fresh
// round-trip to the peripheral.
//
// Name may be empty when the peripheral does not advertise one. RSSI
// is RSSIUnknown when no reading is available. Services holds the
// advertised service identifiers; it may be empty.
type Advertisement struct {
	Address  string      `json:"address"`
	Name     string      `json:"name,omitempty"`
	RSSI     int16       `json:"rssi"`
	Services []uuid.UUID `json:"services,omitempty"`
}

// HasService reports whether the advertised service set contains u.
func (a Advertisement) HasService(u uuid.UUID) bool {
	for _, s := range a.Services {
		if s == u {
			return true
		}
	}
	return false
}

// Characteristic identifies one GATT characteristic on a connected
// peripheral. Handle is an opaque implementation reference (the BlueZ
// object path on Linux); callers must pass it back unmodified.
type Characteristic struct {
	UUID   uuid.UUID
	Handle string
}

// Central is the entry point to the local radio stack.
type Central interface {
	// Adapters enumerates the local radio interfaces. Ordering is
	// unspecified.
	Adapters(ctx context.Context) ([]Adapter, error)

	// Close releases resources held by the central (bus connections,
	// signal subscriptions). Safe for concurrent and redundant calls;
	// after Close, all other methods return an error.
	Close() error
}

// Adapter is one local radio interface.
type Adapter interface {
	// Description returns a human-readable descriptor for the adapter,
	// suitable for substring matching against a logical adapter name
	// such as "hci0".
	Description(ctx context.Context) (string, error)

	// StartDiscovery begins a broadcast, filterless scan. Discovery
	// keeps running until StopDiscovery.
	StartDiscovery(ctx context.Context) error

	// StopDiscovery ends an active scan. Calling it without an active
	// scan is a no-op.
	StopDiscovery(ctx context.Context) error

	// Discoveries subscribes to the adapter's discovery event stream.
	// Each newly observed peripheral is delivered once. The channel is
	// closed when ctx is done or the underlying event source
	// terminates; the caller must impose any overall timeout via ctx.
	Discoveries(ctx context.Context) (<-chan Peripheral, error)

	// Peripherals returns a snapshot of every peripheral the adapter
	// currently knows about, discovered or cached.
	Peripherals(ctx context.Context) ([]Peripheral, error)
}

// Peripheral is one remote device.
type Peripheral interface {
	// Properties returns the cached advertisement snapshot. An error
	// means the snapshot is unavailable, not that individual fields
	// are missing.
	Properties(ctx context.Context) (Advertisement, error)

	// Connect opens a radio-level connection. A nil return does not
	// guarantee the link is up; callers must check Connected.
	Connect(ctx context.Context) error

	// Connected reports whether the radio link is currently up.
	Connected(ctx context.Context) (bool, error)

	// Disconnect tears down the radio link. Safe to call when not
	// connected.
	Disconnect(ctx context.Context) error

	// Characteristics enumerates the GATT characteristics after a
	// successful connect, waiting for service resolution first.
	Characteristics(ctx context.Context) ([]Characteristic, error)

	// Write sends data to the given characteristic with the selected
	// acknowledgement mode.
	Write(ctx context.Context, c Characteristic, data []byte, mode WriteMode) error

	// Subscribe enables notifications on the given characteristic and
	// returns the raw payload stream. The channel is closed when the
	// link drops, Unsubscribe is called, or ctx is done.
	Subscribe(ctx context.Context, c Characteristic) (<-chan []byte, error)

	// Unsubscribe disables notifications previously enabled by
	// Subscribe.
	Unsubscribe(ctx context.Context, c Characteristic) error
}

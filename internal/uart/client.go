package uart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"bleuart/internal/central"
)

// Defaults applied by New when the corresponding Options field is zero.
const (
	// DefaultPollInterval bounds operator input latency in the duplex
	// session. Short enough to feel interactive, non-zero to avoid
	// busy-spinning.
	DefaultPollInterval = 100 * time.Millisecond

	// DefaultFindTimeout bounds the discovery-by-address wait.
	DefaultFindTimeout = 30 * time.Second

	// DefaultConnectRetries is how many times a failed post-connect
	// connectivity check is retried before giving up.
	DefaultConnectRetries = 2
)

// Options configures a Client. The zero value is usable: logging goes
// to slog.Default, output to stdout, and operator input is read from
// stdin when the duplex session starts.
type Options struct {
	Logger       *slog.Logger
	Output       io.Writer
	Input        <-chan string
	PollInterval time.Duration
	FindTimeout  time.Duration
	// ConnectRetries < 0 disables the connectivity-check retry.
	ConnectRetries int
}

// Client owns one central handle and performs UART service operations
// against it. At most one peripheral session is live at a time; each
// operation connects, runs, and releases the link before returning.
type Client struct {
	central        central.Central
	log            *slog.Logger
	out            io.Writer
	lines          <-chan string
	poll           time.Duration
	findTimeout    time.Duration
	connectRetries int
}

// New creates a Client on top of the given central.
func New(c central.Central, opts Options) *Client {
	cl := &Client{
		central:        c,
		log:            opts.Logger,
		out:            opts.Output,
		lines:          opts.Input,
		poll:           opts.PollInterval,
		findTimeout:    opts.FindTimeout,
		connectRetries: opts.ConnectRetries,
	}
	if cl.log == nil {
		cl.log = slog.Default()
	}
	if cl.out == nil {
		cl.out = os.Stdout
	}
	if cl.poll <= 0 {
		cl.poll = DefaultPollInterval
	}
	if cl.findTimeout <= 0 {
		cl.findTimeout = DefaultFindTimeout
	}
	if cl.connectRetries == 0 {
		cl.connectRetries = DefaultConnectRetries
	} else if cl.connectRetries < 0 {
		cl.connectRetries = 0
	}
	return cl
}

// resolveAdapter returns the first adapter whose description contains
// name as a substring. Adapter ordering is unspecified; first match
// wins.
func (c *Client) resolveAdapter(ctx context.Context, name string) (central.Adapter, error) {
	adapters, err := c.central.Adapters(ctx)
	if err != nil {
		return nil, fmt.Errorf("uart: enumerate adapters: %w", err)
	}
	for _, a := range adapters {
		desc, err := a.Description(ctx)
		if err != nil {
			return nil, fmt.Errorf("uart: adapter description: %w", err)
		}
		if strings.Contains(desc, name) {
			return a, nil
		}
	}
	return nil, fmt.Errorf("uart: %q: %w", name, ErrAdapterNotFound)
}

// findDevice starts discovery on the adapter and watches the discovery
// event stream for a peripheral whose address matches exactly. The
// wait is bounded by the configured find timeout; expiry yields
// ErrTimeout, while stream termination without a match yields
// ErrDeviceNotFound.
func (c *Client) findDevice(ctx context.Context, adapter central.Adapter, address string) (central.Peripheral, error) {
	ctx, cancel := context.WithTimeout(ctx, c.findTimeout)
	defer cancel()

	discoveries, err := adapter.Discoveries(ctx)
	if err != nil {
		return nil, fmt.Errorf("uart: discovery events: %w", err)
	}
	if err := adapter.StartDiscovery(ctx); err != nil {
		return nil, fmt.Errorf("uart: start discovery: %w", err)
	}
	defer func() {
		if err := adapter.StopDiscovery(context.WithoutCancel(ctx)); err != nil {
			c.log.Warn("stop discovery failed", "err", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("uart: %s: %w", address, ErrTimeout)
			}
			return nil, ctx.Err()
		case p, ok := <-discoveries:
			if !ok {
				return nil, fmt.Errorf("uart: %s: %w", address, ErrDeviceNotFound)
			}
			adv, err := p.Properties(ctx)
			if err != nil {
				return nil, fmt.Errorf("uart: %w: %w", ErrPropertyUnavailable, err)
			}
			if adv.Address == address {
				c.log.Debug("device found", "address", address, "name", adv.Name)
				return p, nil
			}
		}
	}
}

// connect opens the radio link and verifies it came up. The transport
// can report success from Connect while the connectivity check still
// says down; that race is treated as transient and retried a bounded
// number of times.
func (c *Client) connect(ctx context.Context, dev central.Peripheral, address string) error {
	if err := dev.Connect(ctx); err != nil {
		return fmt.Errorf("uart: connect %s: %w", address, err)
	}
	for attempt := 0; ; attempt++ {
		up, err := dev.Connected(ctx)
		if err != nil {
			return fmt.Errorf("uart: connectivity check %s: %w", address, err)
		}
		if up {
			return nil
		}
		if attempt >= c.connectRetries {
			return fmt.Errorf("uart: %s: %w", address, ErrNotConnected)
		}
		c.log.Debug("connectivity check reported down, retrying", "address", address, "attempt", attempt+1)
		if err := dev.Connect(ctx); err != nil {
			return fmt.Errorf("uart: connect %s: %w", address, err)
		}
	}
}

// resolveChars locates the write and notify characteristics by their
// fixed UUIDs. Both must resolve before any data transfer; either
// missing is fatal for the session.
func (c *Client) resolveChars(ctx context.Context, dev central.Peripheral) (tx, rx central.Characteristic, err error) {
	chars, err := dev.Characteristics(ctx)
	if err != nil {
		return tx, rx, fmt.Errorf("uart: discover services: %w", err)
	}
	var haveTX, haveRX bool
	for _, ch := range chars {
		switch ch.UUID {
		case TXCharUUID:
			tx, haveTX = ch, true
		case RXCharUUID:
			rx, haveRX = ch, true
		}
	}
	if !haveTX {
		return tx, rx, fmt.Errorf("uart: write characteristic %s: %w", TXCharUUID, ErrCharacteristicNotFound)
	}
	if !haveRX {
		return tx, rx, fmt.Errorf("uart: notify characteristic %s: %w", RXCharUUID, ErrCharacteristicNotFound)
	}
	return tx, rx, nil
}

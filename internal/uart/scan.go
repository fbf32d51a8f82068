package uart

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// ScanResult is one ranked scan entry. Name falls back to the address
// when the peripheral advertises none.
type ScanResult struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	RSSI    int16  `json:"rssi"`
}

// Scan runs a timed, filterless discovery window on the named adapter
// and returns the peripherals advertising the UART service, sorted by
// signal strength descending (ties keep discovery order). An empty
// result is not an error; it is reported as a warning and an empty
// list. A peripheral whose advertisement snapshot cannot be read
// aborts the whole scan.
func (c *Client) Scan(ctx context.Context, adapterName string, duration time.Duration) ([]ScanResult, error) {
	adapter, err := c.resolveAdapter(ctx, adapterName)
	if err != nil {
		return nil, err
	}

	if err := adapter.StartDiscovery(ctx); err != nil {
		return nil, fmt.Errorf("uart: start discovery: %w", err)
	}
	defer func() {
		if err := adapter.StopDiscovery(context.WithoutCancel(ctx)); err != nil {
			c.log.Warn("stop discovery failed", "err", err)
		}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(duration):
	}

	periphs, err := adapter.Peripherals(ctx)
	if err != nil {
		return nil, fmt.Errorf("uart: enumerate peripherals: %w", err)
	}

	results := make([]ScanResult, 0, len(periphs))
	for _, p := range periphs {
		adv, err := p.Properties(ctx)
		if err != nil {
			return nil, fmt.Errorf("uart: %w: %w", ErrPropertyUnavailable, err)
		}
		if adv.Address == "" {
			return nil, fmt.Errorf("uart: device without address: %w", ErrPropertyUnavailable)
		}
		if !adv.HasService(ServiceUUID) {
			continue
		}
		name := adv.Name
		if name == "" {
			name = adv.Address
		}
		results = append(results, ScanResult{Address: adv.Address, Name: name, RSSI: adv.RSSI})
	}

	if len(results) == 0 {
		c.log.Warn("no devices advertising the UART service found", "adapter", adapterName)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RSSI > results[j].RSSI
	})
	return results, nil
}

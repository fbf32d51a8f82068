//go:build linux

package central

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	dbus "github.com/godbus/dbus/v5"
	"github.com/google/uuid"
)

const (
	bluezService    = "org.bluez"
	adapterIface    = "org.bluez.Adapter1"
	deviceIface     = "org.bluez.Device1"
	gattCharIface   = "org.bluez.GattCharacteristic1"
	objManagerIface = "org.freedesktop.DBus.ObjectManager"
	propsIface      = "org.freedesktop.DBus.Properties"

	// servicesResolvedPoll is the cadence for waiting on BlueZ GATT
	// service resolution after connect.
	servicesResolvedPoll = 200 * time.Millisecond
)

// NewSystem connects to the system bus and returns a Central backed by
// the BlueZ D-Bus API.
func NewSystem() (Central, error) {
	bus, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("central: connect system bus: %w", err)
	}
	return &bluezCentral{bus: bus}, nil
}

type bluezCentral struct {
	mu     sync.Mutex
	bus    *dbus.Conn
	closed bool
}

func (c *bluezCentral) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *bluezCentral) managedObjects() (map[dbus.ObjectPath]map[string]map[string]dbus.Variant, error) {
	obj := c.bus.Object(bluezService, dbus.ObjectPath("/"))
	var objs map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	if call := obj.Call(objManagerIface+".GetManagedObjects", 0); call.Err != nil {
		return nil, fmt.Errorf("central: GetManagedObjects: %w", call.Err)
	} else if err := call.Store(&objs); err != nil {
		return nil, fmt.Errorf("central: decode GetManagedObjects: %w", err)
	}
	return objs, nil
}

func (c *bluezCentral) Adapters(ctx context.Context) ([]Adapter, error) {
	if c.isClosed() {
		return nil, errors.New("central: closed")
	}
	objs, err := c.managedObjects()
	if err != nil {
		return nil, err
	}
	var out []Adapter
	for path, ifaces := range objs {
		props, ok := ifaces[adapterIface]
		if !ok {
			continue
		}
		// The description concatenates the object path with the
		// adapter address and name so a logical name like "hci0"
		// matches by substring.
		desc := string(path)
		if v, ok := props["Address"]; ok {
			if s, ok := v.Value().(string); ok {
				desc += " " + s
			}
		}
		if v, ok := props["Name"]; ok {
			if s, ok := v.Value().(string); ok {
				desc += " " + s
			}
		}
		out = append(out, &bluezAdapter{c: c, path: path, desc: desc})
	}
	return out, nil
}

// Close marks the central closed. The underlying system bus connection
// is shared process-wide and is deliberately left open.
func (c *bluezCentral) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type bluezAdapter struct {
	c    *bluezCentral
	path dbus.ObjectPath
	desc string
}

func (a *bluezAdapter) Description(_ context.Context) (string, error) {
	return a.desc, nil
}

func (a *bluezAdapter) StartDiscovery(ctx context.Context) error {
	obj := a.c.bus.Object(bluezService, a.path)
	if call := obj.CallWithContext(ctx, adapterIface+".StartDiscovery", 0); call.Err != nil {
		return fmt.Errorf("central: StartDiscovery: %w", call.Err)
	}
	return nil
}

func (a *bluezAdapter) StopDiscovery(ctx context.Context) error {
	obj := a.c.bus.Object(bluezService, a.path)
	if call := obj.CallWithContext(ctx, adapterIface+".StopDiscovery", 0); call.Err != nil {
		// Discovery may already have been stopped externally.
		if strings.Contains(call.Err.Error(), "No discovery started") {
			return nil
		}
		return fmt.Errorf("central: StopDiscovery: %w", call.Err)
	}
	return nil
}

// Discoveries maps BlueZ InterfacesAdded signals for Device1 objects
// under this adapter to a stream of peripherals.
func (a *bluezAdapter) Discoveries(ctx context.Context) (<-chan Peripheral, error) {
	bus := a.c.bus
	if err := bus.AddMatchSignal(
		dbus.WithMatchInterface(objManagerIface),
		dbus.WithMatchMember("InterfacesAdded"),
	); err != nil {
		return nil, fmt.Errorf("central: AddMatchSignal: %w", err)
	}
	sigCh := make(chan *dbus.Signal, 16)
	bus.Signal(sigCh)

	out := make(chan Peripheral, 16)
	prefix := string(a.path) + "/"
	go func() {
		defer func() {
			bus.RemoveSignal(sigCh)
			_ = bus.RemoveMatchSignal(
				dbus.WithMatchInterface(objManagerIface),
				dbus.WithMatchMember("InterfacesAdded"),
			)
			close(out)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-sigCh:
				if !ok {
					return
				}
				if sig == nil || len(sig.Body) < 2 {
					continue
				}
				path, _ := sig.Body[0].(dbus.ObjectPath)
				ifaces, _ := sig.Body[1].(map[string]map[string]dbus.Variant)
				if ifaces == nil || !strings.HasPrefix(string(path), prefix) {
					continue
				}
				if _, ok := ifaces[deviceIface]; !ok {
					continue
				}
				select {
				case out <- &bluezPeripheral{c: a.c, path: path}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (a *bluezAdapter) Peripherals(_ context.Context) ([]Peripheral, error) {
	objs, err := a.c.managedObjects()
	if err != nil {
		return nil, err
	}
	prefix := string(a.path) + "/"
	var out []Peripheral
	for path, ifaces := range objs {
		if _, ok := ifaces[deviceIface]; !ok {
			continue
		}
		if !strings.HasPrefix(string(path), prefix) {
			continue
		}
		out = append(out, &bluezPeripheral{c: a.c, path: path})
	}
	return out, nil
}

type bluezPeripheral struct {
	c    *bluezCentral
	path dbus.ObjectPath
}

func (p *bluezPeripheral) getProp(ctx context.Context, name string, dst interface{}) error {
	obj := p.c.bus.Object(bluezService, p.path)
	call := obj.CallWithContext(ctx, propsIface+".Get", 0, deviceIface, name)
	if call.Err != nil {
		return call.Err
	}
	return call.Store(dst)
}

func (p *bluezPeripheral) Properties(ctx context.Context) (Advertisement, error) {
	obj := p.c.bus.Object(bluezService, p.path)
	var props map[string]dbus.Variant
	call := obj.CallWithContext(ctx, propsIface+".GetAll", 0, deviceIface)
	if call.Err != nil {
		return Advertisement{}, fmt.Errorf("central: advertisement properties for %s: %w", p.path, call.Err)
	}
	if err := call.Store(&props); err != nil {
		return Advertisement{}, fmt.Errorf("central: decode advertisement properties: %w", err)
	}

	adv := Advertisement{RSSI: RSSIUnknown}
	if v, ok := props["Address"]; ok {
		adv.Address, _ = v.Value().(string)
	}
	if adv.Address == "" {
		return Advertisement{}, fmt.Errorf("central: device %s has no address", p.path)
	}
	if v, ok := props["Name"]; ok {
		adv.Name, _ = v.Value().(string)
	}
	if v, ok := props["RSSI"]; ok {
		if r, ok := v.Value().(int16); ok {
			adv.RSSI = r
		}
	}
	if v, ok := props["UUIDs"]; ok {
		if list, ok := v.Value().([]string); ok {
			for _, s := range list {
				u, err := uuid.Parse(s)
				if err != nil {
					continue
				}
				adv.Services = append(adv.Services, u)
			}
		}
	}
	return adv, nil
}

func (p *bluezPeripheral) Connect(ctx context.Context) error {
	obj := p.c.bus.Object(bluezService, p.path)
	if call := obj.CallWithContext(ctx, deviceIface+".Connect", 0); call.Err != nil {
		return fmt.Errorf("central: Connect %s: %w", p.path, call.Err)
	}
	return nil
}

func (p *bluezPeripheral) Connected(ctx context.Context) (bool, error) {
	var connected bool
	if err := p.getProp(ctx, "Connected", &connected); err != nil {
		return false, fmt.Errorf("central: read Connected: %w", err)
	}
	return connected, nil
}

func (p *bluezPeripheral) Disconnect(ctx context.Context) error {
	obj := p.c.bus.Object(bluezService, p.path)
	if call := obj.CallWithContext(ctx, deviceIface+".Disconnect", 0); call.Err != nil {
		return fmt.Errorf("central: Disconnect %s: %w", p.path, call.Err)
	}
	return nil
}

// Characteristics waits until BlueZ has resolved GATT services, then
// enumerates every characteristic object under this device.
func (p *bluezPeripheral) Characteristics(ctx context.Context) ([]Characteristic, error) {
	ticker := time.NewTicker(servicesResolvedPoll)
	defer ticker.Stop()
	for {
		var resolved bool
		if err := p.getProp(ctx, "ServicesResolved", &resolved); err == nil && resolved {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("central: service discovery on %s: %w", p.path, ctx.Err())
		case <-ticker.C:
		}
	}

	objs, err := p.c.managedObjects()
	if err != nil {
		return nil, err
	}
	prefix := string(p.path) + "/"
	var out []Characteristic
	for path, ifaces := range objs {
		props, ok := ifaces[gattCharIface]
		if !ok {
			continue
		}
		if !strings.HasPrefix(string(path), prefix) {
			continue
		}
		v, ok := props["UUID"]
		if !ok {
			continue
		}
		s, _ := v.Value().(string)
		u, err := uuid.Parse(s)
		if err != nil {
			continue
		}
		out = append(out, Characteristic{UUID: u, Handle: string(path)})
	}
	return out, nil
}

func (p *bluezPeripheral) Write(ctx context.Context, c Characteristic, data []byte, mode WriteMode) error {
	// BlueZ write types: "request" waits for the peripheral's ATT
	// acknowledgement, "command" does not.
	typ := "request"
	if mode == WriteWithoutResponse {
		typ = "command"
	}
	obj := p.c.bus.Object(bluezService, dbus.ObjectPath(c.Handle))
	opts := map[string]dbus.Variant{"type": dbus.MakeVariant(typ)}
	if call := obj.CallWithContext(ctx, gattCharIface+".WriteValue", 0, data, opts); call.Err != nil {
		return fmt.Errorf("central: WriteValue %s: %w", c.UUID, call.Err)
	}
	return nil
}

// Subscribe enables notifications and converts PropertiesChanged Value
// signals for the characteristic into a byte stream. The stream is
// closed when the device reports Connected=false or ctx is done.
func (p *bluezPeripheral) Subscribe(ctx context.Context, c Characteristic) (<-chan []byte, error) {
	bus := p.c.bus
	charPath := dbus.ObjectPath(c.Handle)
	if err := bus.AddMatchSignal(
		dbus.WithMatchInterface(propsIface),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		return nil, fmt.Errorf("central: AddMatchSignal: %w", err)
	}
	sigCh := make(chan *dbus.Signal, 64)
	bus.Signal(sigCh)

	obj := bus.Object(bluezService, charPath)
	if call := obj.CallWithContext(ctx, gattCharIface+".StartNotify", 0); call.Err != nil {
		bus.RemoveSignal(sigCh)
		_ = bus.RemoveMatchSignal(
			dbus.WithMatchInterface(propsIface),
			dbus.WithMatchMember("PropertiesChanged"),
		)
		return nil, fmt.Errorf("central: StartNotify %s: %w", c.UUID, call.Err)
	}

	out := make(chan []byte, 64)
	go func() {
		defer func() {
			bus.RemoveSignal(sigCh)
			_ = bus.RemoveMatchSignal(
				dbus.WithMatchInterface(propsIface),
				dbus.WithMatchMember("PropertiesChanged"),
			)
			close(out)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-sigCh:
				if !ok {
					return
				}
				if sig == nil || len(sig.Body) < 2 {
					continue
				}
				iface, _ := sig.Body[0].(string)
				changed, _ := sig.Body[1].(map[string]dbus.Variant)
				if changed == nil {
					continue
				}
				switch {
				case sig.Path == charPath && iface == gattCharIface:
					v, ok := changed["Value"]
					if !ok {
						continue
					}
					data, ok := v.Value().([]byte)
					if !ok {
						continue
					}
					select {
					case out <- data:
					case <-ctx.Done():
						return
					}
				case sig.Path == p.path && iface == deviceIface:
					// Link drop ends the stream.
					if v, ok := changed["Connected"]; ok {
						if up, ok := v.Value().(bool); ok && !up {
							return
						}
					}
				}
			}
		}
	}()
	return out, nil
}

func (p *bluezPeripheral) Unsubscribe(ctx context.Context, c Characteristic) error {
	obj := p.c.bus.Object(bluezService, dbus.ObjectPath(c.Handle))
	if call := obj.CallWithContext(ctx, gattCharIface+".StopNotify", 0); call.Err != nil {
		return fmt.Errorf("central: StopNotify %s: %w", c.UUID, call.Err)
	}
	return nil
}

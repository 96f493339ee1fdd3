package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"lautenbacher.net/power2color/util"
)

var ErrNotFound = errors.New("no power meter found")

// BLEOptions configure the connection to the power meter. An empty Address
// connects to the first device advertising the service.
type BLEOptions struct {
	Address            string
	ServiceUUID        string
	CharacteristicUUID string
	ConnectTimeout     time.Duration
	ReconnectDelay     time.Duration
}

func DefaultBLEOptions() BLEOptions {
	return BLEOptions{
		ServiceUUID:        bluetooth.ServiceUUIDCyclingPower.String(),
		CharacteristicUUID: bluetooth.CharacteristicUUIDCyclingPowerMeasurement.String(),
		ConnectTimeout:     30 * time.Second,
		ReconnectDelay:     5 * time.Second,
	}
}

// link is one established connection with notifications enabled.
type link interface {
	// Lost is closed when the peer went away.
	Lost() <-chan struct{}
	Close() error
}

type connector interface {
	Connect(ctx context.Context, onData func([]byte)) (link, error)
}

// BLESource reads the Cycling Power Measurement characteristic of a BLE
// power meter. Lost connections are re-established every ReconnectDelay
// until the context is done.
type BLESource struct {
	opts  BLEOptions
	clock util.Clock
	conn  connector
}

var _ Source = (*BLESource)(nil)

// NewBLESource creates a source using the default adapter of the host.
func NewBLESource(opts BLEOptions, clock util.Clock) (*BLESource, error) {
	service, err := bluetooth.ParseUUID(opts.ServiceUUID)
	if err != nil {
		return nil, fmt.Errorf("invalid service UUID %q: %w", opts.ServiceUUID, err)
	}
	characteristic, err := bluetooth.ParseUUID(opts.CharacteristicUUID)
	if err != nil {
		return nil, fmt.Errorf("invalid characteristic UUID %q: %w", opts.CharacteristicUUID, err)
	}
	conn := &adapterConnector{
		shared:         sharedAdapterFor(bluetooth.DefaultAdapter),
		address:        strings.ToUpper(opts.Address),
		service:        service,
		characteristic: characteristic,
		timeout:        opts.ConnectTimeout,
	}
	return &BLESource{opts: opts, clock: clock, conn: conn}, nil
}

func (s *BLESource) Run(ctx context.Context, h Handler) error {
	for {
		err := s.session(ctx, h)
		if ctx.Err() != nil {
			return nil
		}
		h.OnDisconnected(err)

		wait := s.clock.NewTicker(s.opts.ReconnectDelay)
		select {
		case <-ctx.Done():
			wait.Stop()
			return nil
		case <-wait.C():
			wait.Stop()
		}
		slog.Info("Reconnecting to power meter", "address", s.opts.Address)
	}
}

// session connects once and forwards samples until the link is lost or ctx
// is done.
func (s *BLESource) session(ctx context.Context, h Handler) error {
	l, err := s.connect(ctx, func(buf []byte) {
		if ctx.Err() != nil {
			return
		}
		watts, err := ParseCyclingPower(buf)
		if err != nil {
			slog.Debug("Dropping power notification", "error", err)
			return
		}
		h.OnSample(Sample{Watts: watts, Timestamp: s.clock.Now()})
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := l.Close(); err != nil {
			slog.Warn("Error disconnecting power meter", "error", err)
		}
	}()
	h.OnConnected()

	select {
	case <-ctx.Done():
		return nil
	case <-l.Lost():
		return errors.New("connection lost")
	}
}

// connect returns as soon as ctx is done, even when the connector is stuck
// in a call that does not watch ctx. A link that shows up after that is
// closed right away.
func (s *BLESource) connect(ctx context.Context, onData func([]byte)) (link, error) {
	type result struct {
		l   link
		err error
	}
	done := make(chan result, 1)
	util.SafeGo("ble-connect", func() {
		l, err := s.conn.Connect(ctx, onData)
		done <- result{l, err}
	})

	select {
	case r := <-done:
		return r.l, r.err
	case <-ctx.Done():
		util.SafeGo("ble-connect-abandon", func() {
			r := <-done
			if r.err != nil || r.l == nil {
				return
			}
			slog.Info("Power meter connected after shutdown, disconnecting")
			if err := r.l.Close(); err != nil {
				slog.Warn("Error disconnecting power meter", "error", err)
			}
		})
		return nil, ctx.Err()
	}
}

// sharedAdapter is the per process state of one adapter. Enable and the
// connect handler must be set up only once, however often the source is
// recreated.
type sharedAdapter struct {
	adapter    *bluetooth.Adapter
	enableOnce sync.Once
	enableErr  error
	mu         sync.Mutex
	current    *bleLink
}

var (
	adaptersMu sync.Mutex
	adapters   = map[*bluetooth.Adapter]*sharedAdapter{}
)

func sharedAdapterFor(adapter *bluetooth.Adapter) *sharedAdapter {
	adaptersMu.Lock()
	defer adaptersMu.Unlock()
	if a, ok := adapters[adapter]; ok {
		return a
	}
	a := &sharedAdapter{adapter: adapter}
	adapters[adapter] = a
	return a
}

func (a *sharedAdapter) enable() error {
	a.enableOnce.Do(func() {
		a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
			if connected {
				return
			}
			a.mu.Lock()
			l := a.current
			a.mu.Unlock()
			if l != nil && l.device.Address.String() == device.Address.String() {
				l.markLost()
			}
		})
		a.enableErr = a.adapter.Enable()
	})
	return a.enableErr
}

func (a *sharedAdapter) setCurrent(l *bleLink) {
	a.mu.Lock()
	a.current = l
	a.mu.Unlock()
}

// adapterConnector talks to a tinygo bluetooth adapter.
type adapterConnector struct {
	shared         *sharedAdapter
	address        string
	service        bluetooth.UUID
	characteristic bluetooth.UUID
	timeout        time.Duration
}

func (c *adapterConnector) Connect(ctx context.Context, onData func([]byte)) (link, error) {
	if err := c.shared.enable(); err != nil {
		return nil, fmt.Errorf("enabling bluetooth adapter: %w", err)
	}

	address, err := c.scan(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("Connecting to power meter", "address", address.String())
	device, err := c.shared.adapter.Connect(address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", address.String(), err)
	}
	l := &bleLink{device: device, lost: make(chan struct{})}
	c.shared.setCurrent(l)

	if err := c.subscribe(device, onData); err != nil {
		_ = l.Close()
		return nil, err
	}
	slog.Info("Power meter connected", "address", address.String())
	return l, nil
}

func (c *adapterConnector) subscribe(device bluetooth.Device, onData func([]byte)) error {
	services, err := device.DiscoverServices([]bluetooth.UUID{c.service})
	if err != nil {
		return fmt.Errorf("discovering service %s: %w", c.service.String(), err)
	}
	if len(services) == 0 {
		return fmt.Errorf("service %s not found on device", c.service.String())
	}
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{c.characteristic})
	if err != nil {
		return fmt.Errorf("discovering characteristic %s: %w", c.characteristic.String(), err)
	}
	if len(chars) == 0 {
		return fmt.Errorf("characteristic %s not found in service %s", c.characteristic.String(), c.service.String())
	}
	if err := chars[0].EnableNotifications(onData); err != nil {
		return fmt.Errorf("failed to enable notifications: %w", err)
	}
	return nil
}

// scan looks for the configured address or, without one, the first
// device advertising the service.
func (c *adapterConnector) scan(ctx context.Context) (bluetooth.Address, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	found := make(chan bluetooth.Address, 1)
	scanDone := make(chan error, 1)
	util.SafeGo("ble-scan", func() {
		scanDone <- c.shared.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if c.address != "" {
				if strings.ToUpper(result.Address.String()) != c.address {
					return
				}
			} else if !result.HasServiceUUID(c.service) {
				return
			}
			slog.Debug("Found power meter", "name", result.LocalName(), "address", result.Address.String(), "rssi", result.RSSI)
			select {
			case found <- result.Address:
				_ = adapter.StopScan()
			default:
			}
		})
	})

	select {
	case address := <-found:
		<-scanDone
		return address, nil
	case err := <-scanDone:
		select {
		case address := <-found:
			return address, nil
		default:
		}
		if err != nil {
			return bluetooth.Address{}, fmt.Errorf("scanning: %w", err)
		}
		return bluetooth.Address{}, ErrNotFound
	case <-ctx.Done():
		_ = c.shared.adapter.StopScan()
		<-scanDone
		select {
		case address := <-found:
			return address, nil
		default:
		}
		if c.address != "" {
			return bluetooth.Address{}, fmt.Errorf("%w at %s", ErrNotFound, c.address)
		}
		return bluetooth.Address{}, ErrNotFound
	}
}

type bleLink struct {
	device   bluetooth.Device
	lost     chan struct{}
	lostOnce sync.Once
}

func (l *bleLink) markLost() {
	l.lostOnce.Do(func() { close(l.lost) })
}

func (l *bleLink) Lost() <-chan struct{} {
	return l.lost
}

func (l *bleLink) Close() error {
	l.markLost()
	return l.device.Disconnect()
}

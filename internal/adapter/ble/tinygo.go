//go:build edge

package ble

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"tinygo.org/x/bluetooth"

	"garage-opener/internal/domain"
)

// GATT serves the command characteristic through tinygo.org/x/bluetooth.
// The host stack performs pairing itself; HostPairing turns an encryption
// request into the events the core expects. Only one link is tracked at a
// time.
type GATT struct {
	cfg     GATTConfig
	adapter *bluetooth.Adapter
	adv     *bluetooth.Advertisement
	char    bluetooth.Characteristic
	pairing *HostPairing
	logger  *slog.Logger

	mu     sync.Mutex
	ctx    context.Context
	events chan<- domain.TransportEvent
	next   domain.LinkID
	link   domain.LinkID
	device bluetooth.Device
	remote domain.Identity
}

// NewGATT enables the default adapter and registers the service.
func NewGATT(cfg GATTConfig, logger *slog.Logger) (*GATT, error) {
	svc, err := parseUUID(cfg.ServiceUUID)
	if err != nil {
		return nil, fmt.Errorf("service uuid: %w", err)
	}
	chr, err := parseUUID(cfg.CharacteristicUUID)
	if err != nil {
		return nil, fmt.Errorf("characteristic uuid: %w", err)
	}

	g := &GATT{cfg: cfg, adapter: bluetooth.DefaultAdapter, logger: logger}
	g.pairing = NewHostPairing(cfg.Bonds, g.emit, logger)
	if err := g.adapter.Enable(); err != nil {
		return nil, fmt.Errorf("enable adapter: %w", err)
	}
	g.adapter.SetConnectHandler(g.onConnect)

	err = g.adapter.AddService(&bluetooth.Service{
		UUID: svc,
		Characteristics: []bluetooth.CharacteristicConfig{{
			Handle: &g.char,
			UUID:   chr,
			Value:  []byte(cfg.InitialValue),
			Flags: bluetooth.CharacteristicReadPermission |
				bluetooth.CharacteristicWritePermission |
				bluetooth.CharacteristicWriteWithoutResponsePermission |
				bluetooth.CharacteristicNotifyPermission,
			WriteEvent: g.onWrite,
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("add service: %w", err)
	}

	g.adv = g.adapter.DefaultAdvertisement()
	err = g.adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    cfg.Name,
		ServiceUUIDs: []bluetooth.UUID{svc},
	})
	if err != nil {
		return nil, fmt.Errorf("configure advertisement: %w", err)
	}
	return g, nil
}

func parseUUID(s string) (bluetooth.UUID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return bluetooth.UUID{}, err
	}
	return bluetooth.NewUUID([16]byte(u)), nil
}

func (g *GATT) Start(ctx context.Context, events chan<- domain.TransportEvent) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ctx = ctx
	g.events = events
	return nil
}

func (g *GATT) StartAdvertising() error {
	if err := g.adv.Start(); err != nil {
		return fmt.Errorf("start advertising: %w", err)
	}
	return nil
}

func (g *GATT) StopAdvertising() error {
	if err := g.adv.Stop(); err != nil {
		return fmt.Errorf("stop advertising: %w", err)
	}
	return nil
}

func (g *GATT) Disconnect(link domain.LinkID) error {
	g.mu.Lock()
	if link != g.link || g.link == 0 {
		g.mu.Unlock()
		return nil
	}
	dev := g.device
	g.mu.Unlock()
	if err := dev.Disconnect(); err != nil {
		return fmt.Errorf("disconnect link %d: %w", link, err)
	}
	return nil
}

func (g *GATT) RequestEncryption(link domain.LinkID, remote domain.Identity) error {
	g.mu.Lock()
	current := g.link
	g.mu.Unlock()
	if link != current {
		return fmt.Errorf("link %d is not connected", link)
	}
	return g.pairing.Encrypt(g.context(), link, remote)
}

func (g *GATT) ResolveSecurity(link domain.LinkID, verdict domain.SecurityVerdict) error {
	return g.pairing.Resolve(g.context(), link, verdict)
}

func (g *GATT) Notify(link domain.LinkID, status string) error {
	if _, err := g.char.Write([]byte(status)); err != nil {
		return fmt.Errorf("notify link %d: %w", link, err)
	}
	return nil
}

func (g *GATT) onConnect(device bluetooth.Device, connected bool) {
	remote, err := domain.ParseIdentity(device.Address.String())
	if err != nil {
		g.logger.Error("unparseable peer address", "address", device.Address.String())
		return
	}

	g.mu.Lock()
	if connected {
		g.next++
		g.link, g.device, g.remote = g.next, device, remote
		link := g.link
		g.mu.Unlock()
		g.emit(domain.LinkEstablished{Link: link, Remote: remote})
		return
	}
	if g.link == 0 || g.remote != remote {
		g.mu.Unlock()
		return
	}
	link := g.link
	g.link = 0
	g.mu.Unlock()
	g.pairing.Forget(link)
	g.emit(domain.LinkLost{Link: link})
}

func (g *GATT) onWrite(_ bluetooth.Connection, _ int, value []byte) {
	g.mu.Lock()
	link := g.link
	g.mu.Unlock()
	if link == 0 {
		return
	}
	g.emit(domain.CharacteristicWritten{Link: link, Payload: append([]byte(nil), value...)})
}

func (g *GATT) context() context.Context {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ctx == nil {
		return context.Background()
	}
	return g.ctx
}

func (g *GATT) emit(ev domain.TransportEvent) {
	g.mu.Lock()
	events, ctx := g.events, g.ctx
	g.mu.Unlock()
	if events == nil {
		g.logger.Debug("transport event before start", "kind", ev.Kind())
		return
	}
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}

var _ domain.Transport = (*GATT)(nil)

// Package ble adapts wireless stacks to domain.Transport.
package ble

import (
	"bufio"
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"garage-opener/internal/domain"
)

// GATTConfig describes the advertised service of the hardware transport.
// Only edge builds can serve it.
type GATTConfig struct {
	Name               string
	ServiceUUID        string
	CharacteristicUUID string
	InitialValue       string
	Bonds              domain.BondStore
}

// Buttons is the physical input panel the simulator can press.
type Buttons interface {
	Press(pin int)
	Release(pin int)
}

// SimConfig configures the simulator.
type SimConfig struct {
	StatusValue string
	Bonds       domain.BondStore // where successful pairings are recorded
	Buttons     Buttons          // optional
	ButtonPin   int
	Out         io.Writer // replies and notifications for the operator
}

// Sim is a line-driven stand-in for a BLE stack. Each input line is one
// stack callback:
//
//	connect <link> <AA:BB:CC:DD:EE:FF>
//	secure <link>
//	passkey <link> [value]
//	auth <link> ok|fail [reason]
//	write <link> <payload>
//	read <link>
//	drop <link>
//	press | release
type Sim struct {
	cfg    SimConfig
	logger *slog.Logger

	mu          sync.Mutex
	ctx         context.Context
	events      chan<- domain.TransportEvent
	links       map[domain.LinkID]domain.Identity
	values      map[domain.LinkID]string
	advertising bool
}

// NewSim creates a simulator.
func NewSim(cfg SimConfig, logger *slog.Logger) *Sim {
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	return &Sim{
		cfg:    cfg,
		logger: logger,
		links:  make(map[domain.LinkID]domain.Identity),
		values: make(map[domain.LinkID]string),
	}
}

// Start records the event sink. Input is fed with Feed or Apply.
func (s *Sim) Start(ctx context.Context, events chan<- domain.TransportEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = ctx
	s.events = events
	return nil
}

// Serve applies every line received on lines until the channel closes or
// ctx is done. Bad lines are reported on the output and skipped.
func (s *Sim) Serve(ctx context.Context, lines <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := s.Apply(ctx, line); err != nil {
				fmt.Fprintf(s.cfg.Out, "error: %v\n", err)
			}
		}
	}
}

// ReadLines streams the lines of r until EOF. The channel is closed at EOF.
// One reader can feed several simulators in turn across restarts.
func ReadLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

// Apply executes one input line.
func (s *Sim) Apply(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "press", "release":
		if s.cfg.Buttons == nil {
			return fmt.Errorf("no button panel attached")
		}
		if cmd == "press" {
			s.cfg.Buttons.Press(s.cfg.ButtonPin)
		} else {
			s.cfg.Buttons.Release(s.cfg.ButtonPin)
		}
		return nil
	case "help":
		fmt.Fprintln(s.cfg.Out, "commands: connect <link> <addr> | secure <link> | passkey <link> [n] | auth <link> ok|fail [reason] | write <link> <payload> | read <link> | drop <link> | press | release")
		return nil
	}

	if len(args) == 0 {
		return fmt.Errorf("%s: missing link", cmd)
	}
	link, err := parseLink(args[0])
	if err != nil {
		return err
	}
	args = args[1:]

	switch cmd {
	case "connect":
		if len(args) != 1 {
			return fmt.Errorf("usage: connect <link> <addr>")
		}
		remote, err := domain.ParseIdentity(args[0])
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.links[link] = remote
		s.mu.Unlock()
		return s.emit(ctx, domain.LinkEstablished{Link: link, Remote: remote})

	case "secure":
		return s.emit(ctx, domain.SecurityRequested{Link: link})

	case "passkey":
		passkey, err := passkeyArg(args)
		if err != nil {
			return err
		}
		return s.emit(ctx, domain.PasskeyReady{Link: link, Passkey: passkey})

	case "auth":
		if len(args) == 0 {
			return fmt.Errorf("usage: auth <link> ok|fail [reason]")
		}
		remote, ok := s.remote(link)
		if !ok {
			return fmt.Errorf("link %d is not connected", link)
		}
		ev := domain.AuthResolved{Link: link, Remote: remote, Success: args[0] == "ok"}
		if !ev.Success && len(args) > 1 {
			ev.FailReason, _ = strconv.Atoi(args[1])
		}
		if ev.Success {
			if err := s.bond(ctx, remote); err != nil {
				return err
			}
		}
		return s.emit(ctx, ev)

	case "write":
		payload := strings.Join(args, " ")
		return s.emit(ctx, domain.CharacteristicWritten{Link: link, Payload: []byte(payload)})

	case "read":
		fmt.Fprintf(s.cfg.Out, "link %d read: %s\n", link, s.read(link))
		return nil

	case "drop":
		s.forget(link)
		return s.emit(ctx, domain.LinkLost{Link: link})
	}
	return fmt.Errorf("unknown command %q (try help)", cmd)
}

// bond records the peer like a stack persisting its keys after pairing.
func (s *Sim) bond(ctx context.Context, remote domain.Identity) error {
	if s.cfg.Bonds == nil {
		return nil
	}
	ltk := make([]byte, 16)
	if _, err := rand.Read(ltk); err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	return s.cfg.Bonds.Save(ctx, domain.BondedDevice{
		Identity: remote,
		Keys:     domain.KeyMaterial{LongTermKey: ltk},
		BondedAt: time.Now(),
	})
}

func (s *Sim) StartAdvertising() error {
	s.setAdvertising(true)
	return nil
}

func (s *Sim) StopAdvertising() error {
	s.setAdvertising(false)
	return nil
}

// Advertising reports whether the simulator is advertising.
func (s *Sim) Advertising() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advertising
}

func (s *Sim) setAdvertising(on bool) {
	s.mu.Lock()
	changed := s.advertising != on
	s.advertising = on
	s.mu.Unlock()
	if changed {
		s.logger.Info("advertising", "active", on)
	}
}

// Disconnect drops link and reports the loss like a real stack would.
func (s *Sim) Disconnect(link domain.LinkID) error {
	if !s.forget(link) {
		return nil
	}
	fmt.Fprintf(s.cfg.Out, "link %d disconnected by device\n", link)
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	// Called from the consumer of the event queue; never block it.
	go s.emit(ctx, domain.LinkLost{Link: link})
	return nil
}

func (s *Sim) RequestEncryption(link domain.LinkID, remote domain.Identity) error {
	if _, ok := s.remote(link); !ok {
		return fmt.Errorf("link %d is not connected", link)
	}
	s.logger.Debug("encryption requested", "link", link, "remote", remote.String())
	return nil
}

// ResolveSecurity reports the verdict to the operator. Pairing itself is
// completed by an explicit auth line.
func (s *Sim) ResolveSecurity(link domain.LinkID, verdict domain.SecurityVerdict) error {
	answer := "rejected"
	if verdict == domain.SecurityAllow {
		answer = "allowed"
	}
	fmt.Fprintf(s.cfg.Out, "link %d security: %s\n", link, answer)
	return nil
}

func (s *Sim) Notify(link domain.LinkID, status string) error {
	s.mu.Lock()
	s.values[link] = status
	s.mu.Unlock()
	fmt.Fprintf(s.cfg.Out, "link %d notify: %s\n", link, status)
	return nil
}

func (s *Sim) read(link domain.LinkID) string {
	return s.cfg.StatusValue
}

func (s *Sim) remote(link domain.LinkID) (domain.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.links[link]
	return id, ok
}

func (s *Sim) forget(link domain.LinkID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.links[link]
	delete(s.links, link)
	delete(s.values, link)
	return ok
}

func (s *Sim) emit(ctx context.Context, ev domain.TransportEvent) error {
	s.mu.Lock()
	events, started := s.events, s.ctx
	s.mu.Unlock()
	if events == nil {
		return fmt.Errorf("transport not started")
	}
	select {
	case events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-started.Done():
		return started.Err()
	}
}

func parseLink(s string) (domain.LinkID, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid link %q", s)
	}
	return domain.LinkID(n), nil
}

func passkeyArg(args []string) (uint32, error) {
	if len(args) > 0 {
		n, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil || n > 999999 {
			return 0, fmt.Errorf("invalid passkey %q", args[0])
		}
		return uint32(n), nil
	}
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return 0, err
	}
	return uint32(n.Int64()), nil
}

var _ domain.Transport = (*Sim)(nil)

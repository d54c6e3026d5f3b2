package domain

import "context"

// TransportEvent is one callback delivered by the wireless stack. Events for a
// single link arrive in the order connect, security request, passkey/auth, disconnect.
// No ordering is guaranteed across links.
type TransportEvent interface {
	LinkOf() LinkID
	Kind() string
}

// LinkEstablished is delivered when a peer opens a link.
type LinkEstablished struct {
	Link   LinkID
	Remote Identity
}

// SecurityRequested is delivered when the peer asks to elevate the link.
type SecurityRequested struct {
	Link LinkID
}

// PasskeyReady is delivered when the stack generated a passkey for display.
type PasskeyReady struct {
	Link    LinkID
	Passkey uint32
}

// AuthResolved is the terminal outcome of an authentication attempt.
type AuthResolved struct {
	Link       LinkID
	Remote     Identity
	Success    bool
	FailReason int
}

// LinkLost is delivered when a link is closed by either side.
type LinkLost struct {
	Link LinkID
}

// CharacteristicWritten carries one write on the command characteristic.
type CharacteristicWritten struct {
	Link    LinkID
	Payload []byte
}

func (e LinkEstablished) LinkOf() LinkID       { return e.Link }
func (e SecurityRequested) LinkOf() LinkID     { return e.Link }
func (e PasskeyReady) LinkOf() LinkID          { return e.Link }
func (e AuthResolved) LinkOf() LinkID          { return e.Link }
func (e LinkLost) LinkOf() LinkID              { return e.Link }
func (e CharacteristicWritten) LinkOf() LinkID { return e.Link }

func (LinkEstablished) Kind() string       { return "link_established" }
func (SecurityRequested) Kind() string     { return "security_requested" }
func (PasskeyReady) Kind() string          { return "passkey_ready" }
func (AuthResolved) Kind() string          { return "auth_resolved" }
func (LinkLost) Kind() string              { return "link_lost" }
func (CharacteristicWritten) Kind() string { return "characteristic_written" }

// SecurityVerdict is returned to the stack for a security request.
type SecurityVerdict bool

const (
	SecurityReject SecurityVerdict = false
	SecurityAllow  SecurityVerdict = true
)

// Transport is the wireless stack as seen by the access core.
type Transport interface {
	// Start begins delivering events into events until ctx is done.
	Start(ctx context.Context, events chan<- TransportEvent) error
	StartAdvertising() error
	StopAdvertising() error
	// Disconnect terminates a link. Unknown links are not an error.
	Disconnect(link LinkID) error
	// RequestEncryption asks the stack to encrypt the link with MITM protection.
	RequestEncryption(link LinkID, remote Identity) error
	// ResolveSecurity answers a SecurityRequested event for link. Stacks that
	// pair in the host only record the bond after an allow verdict.
	ResolveSecurity(link LinkID, verdict SecurityVerdict) error
	// Notify sets the characteristic value and notifies subscribers of link.
	Notify(link LinkID, status string) error
}

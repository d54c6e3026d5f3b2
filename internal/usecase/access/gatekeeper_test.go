package access

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"garage-opener/internal/domain"
)

func TestLinkEstablishedEmptyRegistryAllows(t *testing.T) {
	h := newHarness(t, defaultOptions())
	h.connect(t, 1, rogue)

	cs, ok := h.core.State.Link(1)
	require.True(t, ok)
	assert.True(t, cs.Connected)
	assert.False(t, cs.Authenticated)
	assert.Equal(t, []domain.LinkID{1}, h.transport.encrypted)
	assert.Equal(t, "COn 6ood|0|", h.display.last())
}

func TestLinkEstablishedBondedPeerAllowed(t *testing.T) {
	h := newHarness(t, defaultOptions(), phone)
	h.connect(t, 1, phone)
	assert.Empty(t, h.transport.disconnected)
}

func TestLinkEstablishedWindowOpenAllowsStranger(t *testing.T) {
	h := newHarness(t, defaultOptions(), phone)
	require.NoError(t, h.core.Window.Open(context.Background()))
	h.connect(t, 2, tablet)
	assert.Empty(t, h.transport.disconnected)
}

func TestLinkEstablishedUnknownPeerRejected(t *testing.T) {
	h := newHarness(t, defaultOptions(), phone)

	err := h.core.Gatekeeper.OnLinkEstablished(context.Background(), domain.LinkEstablished{Link: 3, Remote: rogue})
	require.ErrorIs(t, err, domain.ErrUnauthorizedConnection)

	_, known := h.core.State.Link(3)
	assert.False(t, known)
	assert.Equal(t, []domain.LinkID{3}, h.transport.disconnected)
	assert.Empty(t, h.transport.encrypted)
	assert.Contains(t, h.display.all(), "UNAUTH|0|")
	assert.Equal(t, []domain.EventType{domain.EventLinkRejected}, h.bus.types())
	assert.Equal(t, domain.CodeUnauthorizedConnection, h.bus.events[0].Code)
}

// Fail-closed gatekeeping: every stranger is rejected while enrollment is
// closed and at least one device is bonded.
func TestLinkEstablishedFailClosedForAllStrangers(t *testing.T) {
	h := newHarness(t, defaultOptions(), phone, tablet)
	for i := range 200 {
		remote := domain.Identity{0xC0, 0xFF, 0xEE, 0x00, byte(i >> 8), byte(i)}
		err := h.core.Gatekeeper.OnLinkEstablished(context.Background(), domain.LinkEstablished{Link: domain.LinkID(i + 10), Remote: remote})
		require.ErrorIs(t, err, domain.ErrUnauthorizedConnection, "remote %v", remote)
	}
	assert.Len(t, h.transport.disconnected, 200)
	assert.False(t, h.core.State.AnyConnected())
	assert.Positive(t, h.core.Gatekeeper.warn.Suppressed(), "rejection warnings should be throttled")
}

func TestLinkEstablishedRegistryErrorRejects(t *testing.T) {
	h := newHarness(t, defaultOptions(), phone)
	h.bonds.err = domain.NewDomainError("Registry.lease", domain.ErrAllocation, "")

	err := h.core.Gatekeeper.OnLinkEstablished(context.Background(), domain.LinkEstablished{Link: 1, Remote: phone})
	require.ErrorIs(t, err, domain.ErrUnauthorizedConnection)
	require.ErrorIs(t, err, domain.ErrAllocation)
	assert.Equal(t, domain.CodeAllocation, domain.ErrorCodeOf(err))
	assert.Equal(t, []domain.LinkID{1}, h.transport.disconnected)
}

func TestLinkEstablishedEncryptionFailure(t *testing.T) {
	h := newHarness(t, defaultOptions())
	h.transport.encryptErr = errors.New("controller busy")
	h.connect(t, 1, phone)
	assert.Equal(t, "COn FAil|0|", h.display.last())
}

func TestLinkEstablishedFirstPairingDisabled(t *testing.T) {
	opts := defaultOptions()
	opts.AllowFirstPairing = false
	h := newHarness(t, opts)

	err := h.core.Gatekeeper.OnLinkEstablished(context.Background(), domain.LinkEstablished{Link: 1, Remote: phone})
	assert.ErrorIs(t, err, domain.ErrUnauthorizedConnection)
}

func TestSecurityRequested(t *testing.T) {
	tests := []struct {
		name   string
		bonded []domain.Identity
		window bool
		remote domain.Identity
		want   domain.SecurityVerdict
	}{
		{"empty registry", nil, false, rogue, domain.SecurityAllow},
		{"window open", []domain.Identity{phone}, true, tablet, domain.SecurityAllow},
		{"bonded, window closed", []domain.Identity{phone}, false, phone, domain.SecurityReject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, defaultOptions(), tt.bonded...)
			if tt.window {
				require.NoError(t, h.core.Window.Open(context.Background()))
			}
			h.connect(t, 1, tt.remote)

			verdict, err := h.core.Gatekeeper.OnSecurityRequested(context.Background(), domain.SecurityRequested{Link: 1})
			assert.Equal(t, tt.want, verdict)
			if tt.want == domain.SecurityReject {
				require.ErrorIs(t, err, domain.ErrUnauthorizedPairing)
				assert.Contains(t, h.display.all(), "SEC rEj|0|")
				assert.Equal(t, []domain.LinkID{1}, h.transport.disconnected)
				_, known := h.core.State.Link(1)
				assert.False(t, known)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestSecurityRequestedRegistryErrorRejects(t *testing.T) {
	h := newHarness(t, defaultOptions())
	h.connect(t, 1, phone)
	h.bonds.err = domain.ErrAllocation

	verdict, err := h.core.Gatekeeper.OnSecurityRequested(context.Background(), domain.SecurityRequested{Link: 1})
	assert.Equal(t, domain.SecurityReject, verdict)
	assert.ErrorIs(t, err, domain.ErrUnauthorizedPairing)
	assert.ErrorIs(t, err, domain.ErrAllocation)
}

func TestSecurityRequestedUnknownLink(t *testing.T) {
	h := newHarness(t, defaultOptions())
	verdict, err := h.core.Gatekeeper.OnSecurityRequested(context.Background(), domain.SecurityRequested{Link: 9})
	assert.Equal(t, domain.SecurityReject, verdict)
	assert.ErrorIs(t, err, domain.ErrUnknownLink)
}

func TestLinkLostRestartsAdvertisingWhenBonded(t *testing.T) {
	h := newHarness(t, defaultOptions(), phone)
	h.connect(t, 1, phone)

	h.core.Gatekeeper.OnLinkLost(context.Background(), domain.LinkLost{Link: 1})

	assert.False(t, h.core.State.AnyConnected())
	assert.True(t, h.transport.advertising)
	calls := h.display.all()
	assert.Equal(t, []string{"COn Dis|0|", "Adv st|0|"}, calls[len(calls)-2:])
}

func TestLinkLostEmptyRegistryStaysQuiet(t *testing.T) {
	h := newHarness(t, defaultOptions())
	h.connect(t, 1, phone)

	h.core.Gatekeeper.OnLinkLost(context.Background(), domain.LinkLost{Link: 1})

	assert.False(t, h.transport.advertising)
	assert.Equal(t, "COn Dis|0|", h.display.last())
}

func TestLinkLostReleasesPasskey(t *testing.T) {
	h := newHarness(t, defaultOptions())
	h.connect(t, 1, phone)
	require.NoError(t, h.core.Auth.OnPasskeyReady(context.Background(), domain.PasskeyReady{Link: 1, Passkey: 482913}))

	h.core.Gatekeeper.OnLinkLost(context.Background(), domain.LinkLost{Link: 1})

	assert.Zero(t, h.core.State.Passkey())
	assert.False(t, h.core.State.PasskeyHeld())
	assert.Equal(t, "COn Dis|0|", h.display.last())
}

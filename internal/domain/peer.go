package domain

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Identity is the stable six-byte address of a peer.
type Identity [6]byte

// ParseIdentity parses "AA:BB:CC:DD:EE:FF" (case-insensitive, ':' or '-' separators).
func ParseIdentity(s string) (Identity, error) {
	var id Identity
	clean := strings.NewReplacer(":", "", "-", "").Replace(strings.TrimSpace(s))
	if len(clean) != 12 {
		return id, NewDomainError("ParseIdentity", ErrInvalidIdentity, fmt.Sprintf("%q", s))
	}
	b, err := hex.DecodeString(clean)
	if err != nil {
		return id, NewDomainError("ParseIdentity", ErrInvalidIdentity, fmt.Sprintf("%q", s))
	}
	copy(id[:], b)
	return id, nil
}

// MustParseIdentity is ParseIdentity for constants and tests.
func MustParseIdentity(s string) Identity {
	id, err := ParseIdentity(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id Identity) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", id[0], id[1], id[2], id[3], id[4], id[5])
}

// IsZero reports whether the identity is unset.
func (id Identity) IsZero() bool { return id == Identity{} }

// KeyMaterial is stack-internal bonding data. The access core never interprets it.
type KeyMaterial struct {
	AddrType    uint8  `cbor:"1,keyasint"`
	LongTermKey []byte `cbor:"2,keyasint,omitempty"`
	IdentityKey []byte `cbor:"3,keyasint,omitempty"`
	EDiv        uint16 `cbor:"4,keyasint,omitempty"`
	Rand        uint64 `cbor:"5,keyasint,omitempty"`
}

// BondedDevice is one persisted bonding record.
type BondedDevice struct {
	Identity Identity
	Keys     KeyMaterial
	BondedAt time.Time
}

// LinkID identifies one physical link for its lifetime.
type LinkID uint16

// ConnectionState is the per-link view kept by the gatekeeper.
type ConnectionState struct {
	Link          LinkID
	Remote        Identity
	Connected     bool
	Authenticated bool
	ConnectedAt   time.Time
}

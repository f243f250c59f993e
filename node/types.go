package node

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/holiman/uint256"
)

// PublicKey is a 33-byte compressed secp256k1 public key.
type PublicKey [33]byte

// ParsePublicKey decodes and validates a compressed public key.
func ParsePublicKey(b []byte) (PublicKey, error) {
	var pk PublicKey
	if len(b) != len(pk) {
		return pk, fmt.Errorf("public key must be %d bytes, got %d", len(pk), len(b))
	}
	if _, err := btcec.ParsePubKey(b); err != nil {
		return pk, fmt.Errorf("invalid public key: %w", err)
	}
	copy(pk[:], b)
	return pk, nil
}

// PublicKeyFromHex decodes a hex encoded compressed public key.
func PublicKeyFromHex(s string) (PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("invalid public key hex: %w", err)
	}
	return ParsePublicKey(b)
}

func (pk PublicKey) String() string {
	return hex.EncodeToString(pk[:])
}

// PaymentHash identifies one payment.
type PaymentHash [32]byte

func (h PaymentHash) String() string {
	return hex.EncodeToString(h[:])
}

// PaymentPreimage is the secret whose sha256 is the payment hash.
type PaymentPreimage [32]byte

func (p PaymentPreimage) String() string {
	return hex.EncodeToString(p[:])
}

// ChannelID is the 32-byte channel identifier derived from the funding outpoint.
type ChannelID [32]byte

func (c ChannelID) String() string {
	return hex.EncodeToString(c[:])
}

// UserChannelID is the 128-bit correlation id of one channel open attempt.
type UserChannelID [16]byte

// NewUserChannelID returns a random correlation id.
func NewUserChannelID() (UserChannelID, error) {
	var id UserChannelID
	if _, err := rand.Read(id[:]); err != nil {
		return id, err
	}
	return id, nil
}

// UserChannelIDFromDecimal parses a base 10 correlation id.
func UserChannelIDFromDecimal(s string) (UserChannelID, error) {
	var id UserChannelID
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return id, err
	}
	if v.BitLen() > 128 {
		return id, errors.New("user channel id exceeds 128 bits")
	}
	b := v.Bytes32()
	copy(id[:], b[16:])
	return id, nil
}

// Uint returns the id as an unsigned integer.
func (id UserChannelID) Uint() *uint256.Int {
	return new(uint256.Int).SetBytes(id[:])
}

// String renders the id in base 10.
func (id UserChannelID) String() string {
	return id.Uint().Dec()
}

// MarshalJSON renders the id as a bare JSON number.
func (id UserChannelID) MarshalJSON() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *UserChannelID) UnmarshalJSON(data []byte) error {
	parsed, err := UserChannelIDFromDecimal(string(data))
	if err != nil {
		return fmt.Errorf("invalid user channel id %s: %w", data, err)
	}
	*id = parsed
	return nil
}

// PaymentStatus is the state of a payment as tracked by the engine.
type PaymentStatus int

const (
	PaymentPending PaymentStatus = iota
	PaymentSucceeded
	PaymentFailed
)

func (s PaymentStatus) String() string {
	switch s {
	case PaymentPending:
		return "pending"
	case PaymentSucceeded:
		return "succeeded"
	case PaymentFailed:
		return "failed"
	default:
		return fmt.Sprintf("PaymentStatus(%d)", int(s))
	}
}

// PeerDetails describes a connected or recorded peer.
type PeerDetails struct {
	NodeID  PublicKey
	Address SocketAddress
}

// ChannelDetails is a snapshot of one channel.
type ChannelDetails struct {
	ChannelID            ChannelID
	CounterpartyNodeID   PublicKey
	ChannelValueSats     uint64
	UserChannelID        UserChannelID
	OutboundCapacityMsat uint64
	InboundCapacityMsat  uint64
	IsChannelReady       bool
	IsUsable             bool
}

// PaymentDetails is the engine's view of one payment.
type PaymentDetails struct {
	Hash     PaymentHash
	Status   PaymentStatus
	Preimage *PaymentPreimage
}

// BalanceDetails is a point-in-time on-chain balance read.
type BalanceDetails struct {
	TotalOnchainBalanceSats     uint64
	SpendableOnchainBalanceSats uint64
}

// Bolt11Invoice is a decoded payment request.
type Bolt11Invoice struct {
	Raw         string
	PaymentHash PaymentHash
	AmountMsat  *uint64
}

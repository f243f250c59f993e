package models

import (
	"encoding/hex"
	"fmt"
	"math"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnd/zpay32"

	"relay-node/node"
)

// MsatPerSat scales whole sub-unit inputs to the engine's milli precision.
const MsatPerSat = 1000

// maxDescriptionLen is the BOLT11 limit for the d field.
const maxDescriptionLen = 639

// ValidationError reports malformed caller input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ConnectPeerArgs are the engine arguments of connect-peer.
type ConnectPeerArgs struct {
	NodeID  node.PublicKey
	Address node.SocketAddress
}

// OpenChannelArgs are the engine arguments of open-channel.
type OpenChannelArgs struct {
	NodeID      node.PublicKey
	Address     node.SocketAddress
	FundingMsat uint64
	PushMsat    uint64
}

// GetInvoiceArgs are the engine arguments of get-invoice.
type GetInvoiceArgs struct {
	AmountMsat  uint64
	Description string
	ExpirySecs  uint32
}

func ParseConnectPeer(req *ConnectPeerRequest) (ConnectPeerArgs, error) {
	pk, addr, err := parsePeer(req.Pubkey, req.IPPort)
	if err != nil {
		return ConnectPeerArgs{}, err
	}
	return ConnectPeerArgs{NodeID: pk, Address: addr}, nil
}

func ParseOpenChannel(req *OpenChannelRequest) (OpenChannelArgs, error) {
	pk, addr, err := parsePeer(req.Pubkey, req.IPPort)
	if err != nil {
		return OpenChannelArgs{}, err
	}
	if req.FundingSats == 0 {
		return OpenChannelArgs{}, invalid("funding_sats", "must be greater than zero")
	}
	if req.PushSats > req.FundingSats {
		return OpenChannelArgs{}, invalid("push_sats", "exceeds funding_sats")
	}
	funding, err := toMsat("funding_sats", req.FundingSats)
	if err != nil {
		return OpenChannelArgs{}, err
	}
	push, err := toMsat("push_sats", req.PushSats)
	if err != nil {
		return OpenChannelArgs{}, err
	}
	return OpenChannelArgs{NodeID: pk, Address: addr, FundingMsat: funding, PushMsat: push}, nil
}

// ParsePayInvoice decodes a BOLT11 payment request for the given network.
func ParsePayInvoice(req *PayInvoiceRequest, params *chaincfg.Params) (*node.Bolt11Invoice, error) {
	raw := strings.TrimSpace(req.Invoice)
	if raw == "" {
		return nil, invalid("invoice", "must not be empty")
	}
	inv, err := zpay32.Decode(raw, params)
	if err != nil {
		return nil, invalid("invoice", "%v", err)
	}
	if inv.PaymentHash == nil {
		return nil, invalid("invoice", "missing payment hash")
	}
	if inv.MilliSat == nil {
		return nil, invalid("invoice", "amountless invoices are not supported")
	}

	amt := uint64(*inv.MilliSat)
	return &node.Bolt11Invoice{
		Raw:         raw,
		PaymentHash: node.PaymentHash(*inv.PaymentHash),
		AmountMsat:  &amt,
	}, nil
}

func ParseGetInvoice(req *GetInvoiceRequest) (GetInvoiceArgs, error) {
	if req.AmountSats == 0 {
		return GetInvoiceArgs{}, invalid("amount_sats", "must be greater than zero")
	}
	if len(req.Description) > maxDescriptionLen {
		return GetInvoiceArgs{}, invalid("description", "longer than %d bytes", maxDescriptionLen)
	}
	amt, err := toMsat("amount_sats", req.AmountSats)
	if err != nil {
		return GetInvoiceArgs{}, err
	}
	return GetInvoiceArgs{AmountMsat: amt, Description: req.Description, ExpirySecs: req.ExpirySecs}, nil
}

// ParsePaymentHash decodes a hex payment hash of exactly 32 bytes.
func ParsePaymentHash(s string) (node.PaymentHash, error) {
	var h node.PaymentHash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, invalid("payment_hash", "not hex: %v", err)
	}
	if len(b) != len(h) {
		return h, invalid("payment_hash", "must be %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

func parsePeer(pubkey, ipPort string) (node.PublicKey, node.SocketAddress, error) {
	pk, err := node.PublicKeyFromHex(pubkey)
	if err != nil {
		return pk, node.SocketAddress{}, invalid("pubkey", "%v", err)
	}
	addr, err := node.ParseSocketAddress(ipPort)
	if err != nil {
		return pk, node.SocketAddress{}, invalid("ip_port", "%v", err)
	}
	return pk, addr, nil
}

func toMsat(field string, sats uint64) (uint64, error) {
	if sats > math.MaxUint64/MsatPerSat {
		return 0, invalid(field, "amount overflows millisatoshis")
	}
	return sats * MsatPerSat, nil
}

func NewPeer(p node.PeerDetails) Peer {
	return Peer{NodeID: p.NodeID.String(), Address: p.Address.String()}
}

func NewListPeersResponse(peers []node.PeerDetails) ListPeersResponse {
	out := make([]Peer, 0, len(peers))
	for _, p := range peers {
		out = append(out, NewPeer(p))
	}
	return ListPeersResponse{Peers: out}
}

func NewChannel(c node.ChannelDetails) Channel {
	return Channel{
		ChannelID:            c.ChannelID.String(),
		CounterpartyNodeID:   c.CounterpartyNodeID.String(),
		ChannelValueSats:     c.ChannelValueSats,
		UserChannelID:        c.UserChannelID,
		OutboundCapacityMsat: c.OutboundCapacityMsat,
		InboundCapacityMsat:  c.InboundCapacityMsat,
		IsChannelReady:       c.IsChannelReady,
		IsUsable:             c.IsUsable,
	}
}

func NewListChannelsResponse(channels []node.ChannelDetails) ListChannelsResponse {
	out := make([]Channel, 0, len(channels))
	for _, c := range channels {
		out = append(out, NewChannel(c))
	}
	return ListChannelsResponse{Channels: out}
}

func NewGetPaymentResponse(p *node.PaymentDetails) GetPaymentResponse {
	resp := GetPaymentResponse{Status: p.Status.String()}
	if p.Preimage != nil {
		s := p.Preimage.String()
		resp.Preimage = &s
	}
	return resp
}

func NewGetBalanceResponse(b node.BalanceDetails) GetBalanceResponse {
	return GetBalanceResponse{
		TotalOnchainBalanceSats:     b.TotalOnchainBalanceSats,
		SpendableOnchainBalanceSats: b.SpendableOnchainBalanceSats,
	}
}

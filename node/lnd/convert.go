package lnd

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/lnrpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"relay-node/node"
)

// channelIDFromPoint derives the BOLT 2 channel id: the funding txid with
// the output index xored into its last two bytes.
func channelIDFromPoint(channelPoint string) (node.ChannelID, error) {
	var cid node.ChannelID
	op, err := wire.NewOutPointFromString(channelPoint)
	if err != nil {
		return cid, fmt.Errorf("invalid channel point %q: %w", channelPoint, err)
	}
	copy(cid[:], op.Hash[:])
	cid[30] ^= byte(op.Index >> 8)
	cid[31] ^= byte(op.Index)
	return cid, nil
}

// channelPointString renders an lnrpc channel point as txid:index.
func channelPointString(cp *lnrpc.ChannelPoint) (string, error) {
	var txid *chainhash.Hash
	var err error
	switch {
	case len(cp.GetFundingTxidBytes()) > 0:
		txid, err = chainhash.NewHash(cp.GetFundingTxidBytes())
	case cp.GetFundingTxidStr() != "":
		txid, err = chainhash.NewHashFromStr(cp.GetFundingTxidStr())
	default:
		return "", errors.New("channel point without funding txid")
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", txid, cp.OutputIndex), nil
}

func paymentStatus(s lnrpc.Payment_PaymentStatus) node.PaymentStatus {
	switch s {
	case lnrpc.Payment_SUCCEEDED:
		return node.PaymentSucceeded
	case lnrpc.Payment_FAILED:
		return node.PaymentFailed
	default:
		return node.PaymentPending
	}
}

func invoiceStatus(s lnrpc.Invoice_InvoiceState) node.PaymentStatus {
	switch s {
	case lnrpc.Invoice_SETTLED:
		return node.PaymentSucceeded
	case lnrpc.Invoice_CANCELED:
		return node.PaymentFailed
	default:
		return node.PaymentPending
	}
}

func outboundPayment(hash node.PaymentHash, p *lnrpc.Payment) (*node.PaymentDetails, error) {
	details := &node.PaymentDetails{Hash: hash, Status: paymentStatus(p.Status)}
	if details.Status == node.PaymentSucceeded && p.PaymentPreimage != "" {
		pre, err := parsePreimage(p.PaymentPreimage)
		if err != nil {
			return nil, err
		}
		details.Preimage = pre
	}
	return details, nil
}

func inboundPayment(hash node.PaymentHash, inv *lnrpc.Invoice) *node.PaymentDetails {
	details := &node.PaymentDetails{Hash: hash, Status: invoiceStatus(inv.State)}
	if len(inv.RPreimage) == len(node.PaymentPreimage{}) {
		var pre node.PaymentPreimage
		copy(pre[:], inv.RPreimage)
		details.Preimage = &pre
	}
	return details
}

func parsePreimage(s string) (*node.PaymentPreimage, error) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(node.PaymentPreimage{}) {
		return nil, fmt.Errorf("engine returned malformed preimage %q", s)
	}
	var pre node.PaymentPreimage
	copy(pre[:], b)
	return &pre, nil
}

func parsePaymentHash(s string) (node.PaymentHash, error) {
	var h node.PaymentHash
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(h) {
		return h, fmt.Errorf("engine returned malformed payment hash %q", s)
	}
	copy(h[:], b)
	return h, nil
}

// capacityMsat is the spendable part of a balance above the reserve.
func capacityMsat(balanceSat int64, reserveSat uint64) uint64 {
	if balanceSat <= 0 || uint64(balanceSat) <= reserveSat {
		return 0
	}
	return (uint64(balanceSat) - reserveSat) * 1000
}

func nonNegative(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}

func isNotFound(err error) bool {
	if status.Code(err) == codes.NotFound {
		return true
	}
	msg := status.Convert(err).Message()
	return strings.Contains(msg, "unable to locate invoice") ||
		strings.Contains(msg, "payment isn't initiated") ||
		strings.Contains(msg, "there are no existing payments")
}

func isAlreadyConnected(err error) bool {
	return strings.Contains(status.Convert(err).Message(), "already connected")
}

// engineError strips the gRPC envelope so callers see lnd's own message.
func engineError(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return fmt.Errorf("%s: %s", op, status.Convert(err).Message())
	}
	return fmt.Errorf("%s: %w", op, err)
}

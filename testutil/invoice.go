// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"crypto/rand"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/zpay32"
)

// Invoice is a signed BOLT11 payment request and its secrets.
type Invoice struct {
	Encoded  string
	Hash     [32]byte
	Preimage [32]byte
}

// NewInvoice signs a fresh invoice for amountMsat on the given network.
// A zero amount produces an amountless invoice.
func NewInvoice(t testing.TB, params *chaincfg.Params, amountMsat uint64, description string) Invoice {
	t.Helper()

	var out Invoice
	if _, err := rand.Read(out.Preimage[:]); err != nil {
		t.Fatalf("read preimage: %v", err)
	}
	out.Hash = sha256.Sum256(out.Preimage[:])

	var paymentAddr [32]byte
	if _, err := rand.Read(paymentAddr[:]); err != nil {
		t.Fatalf("read payment addr: %v", err)
	}

	opts := []func(*zpay32.Invoice){
		zpay32.Description(description),
		zpay32.Expiry(time.Hour),
		zpay32.PaymentAddr(paymentAddr),
		zpay32.Features(lnwire.NewFeatureVector(
			lnwire.NewRawFeatureVector(lnwire.TLVOnionPayloadRequired, lnwire.PaymentAddrRequired),
			lnwire.Features,
		)),
	}
	if amountMsat > 0 {
		opts = append(opts, zpay32.Amount(lnwire.MilliSatoshi(amountMsat)))
	}

	inv, err := zpay32.NewInvoice(params, out.Hash, time.Now(), opts...)
	if err != nil {
		t.Fatalf("new invoice: %v", err)
	}

	key, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("new key: %v", err)
	}
	out.Encoded, err = inv.Encode(zpay32.MessageSigner{
		SignCompact: func(msg []byte) ([]byte, error) {
			return ecdsa.SignCompact(key, chainhash.HashB(msg), true), nil
		},
	})
	if err != nil {
		t.Fatalf("encode invoice: %v", err)
	}
	return out
}

// Package node defines the contract of the payment-channel engine the control
// plane drives, together with the engine-side domain types.
package node

import (
	"context"
	"errors"
)

var (
	// ErrPaymentNotFound is returned by Payment when the engine has no
	// record of the hash, neither outbound nor inbound.
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrNotRunning is returned by operations issued before Start or after Stop.
	ErrNotRunning = errors.New("node is not running")

	// ErrIdentityMismatch is returned by Start when the seed material does not
	// match the identity of the existing node storage.
	ErrIdentityMismatch = errors.New("seed does not match existing node identity")
)

// Node is a single long-lived payment-channel node.
//
// Implementations synchronize internally; every method may be called from
// many goroutines at once. Amounts suffixed Msat are in millisatoshis.
type Node interface {
	// Start brings the node up. It must succeed before any other call.
	Start(ctx context.Context) error
	Stop() error

	// NodeID returns the identity public key. Valid after Start.
	NodeID() PublicKey

	Connect(ctx context.Context, nodeID PublicKey, addr SocketAddress, persist bool) error
	ListPeers(ctx context.Context) ([]PeerDetails, error)

	NewOnchainAddress(ctx context.Context) (string, error)

	// ConnectOpenChannel connects to the counterparty if needed and opens a
	// channel funded with fundingMsat, pushing pushMsat to the remote side.
	ConnectOpenChannel(ctx context.Context, nodeID PublicKey, addr SocketAddress,
		fundingMsat, pushMsat uint64, announce bool) (UserChannelID, error)
	ListChannels(ctx context.Context) ([]ChannelDetails, error)

	// SendPayment dispatches a payment and returns once the attempt is
	// registered, not when it resolves.
	SendPayment(ctx context.Context, invoice *Bolt11Invoice) (PaymentHash, error)
	ReceivePayment(ctx context.Context, amountMsat uint64, description string, expirySecs uint32) (string, error)
	Payment(ctx context.Context, hash PaymentHash) (*PaymentDetails, error)

	SyncWallets(ctx context.Context) error
	ListBalances(ctx context.Context) (BalanceDetails, error)
}

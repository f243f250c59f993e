package lnd

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lnrpc/routerrpc"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"relay-node/db"
	"relay-node/node"
	"relay-node/repository"
)

// fakeLightning overrides the lnrpc calls the backend makes. Calling any
// other method panics through the nil embedded interface.
type fakeLightning struct {
	lnrpc.LightningClient

	mu       sync.Mutex
	info     []*lnrpc.GetInfoResponse
	infoErr  error
	connects []*lnrpc.ConnectPeerRequest
	connErr  error
	opens    []*lnrpc.OpenChannelRequest
	point    *lnrpc.ChannelPoint
	channels []*lnrpc.Channel
	pending  []*lnrpc.PendingChannelsResponse_PendingOpenChannel
	invoices map[string]*lnrpc.Invoice
	balance  *lnrpc.WalletBalanceResponse
	peers    []*lnrpc.Peer
}

func (f *fakeLightning) GetInfo(ctx context.Context, in *lnrpc.GetInfoRequest, opts ...grpc.CallOption) (*lnrpc.GetInfoResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	info := f.info[0]
	if len(f.info) > 1 {
		f.info = f.info[1:]
	}
	return info, nil
}

func (f *fakeLightning) ConnectPeer(ctx context.Context, in *lnrpc.ConnectPeerRequest, opts ...grpc.CallOption) (*lnrpc.ConnectPeerResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects = append(f.connects, in)
	if f.connErr != nil {
		return nil, f.connErr
	}
	return &lnrpc.ConnectPeerResponse{}, nil
}

func (f *fakeLightning) ListPeers(ctx context.Context, in *lnrpc.ListPeersRequest, opts ...grpc.CallOption) (*lnrpc.ListPeersResponse, error) {
	return &lnrpc.ListPeersResponse{Peers: f.peers}, nil
}

func (f *fakeLightning) OpenChannelSync(ctx context.Context, in *lnrpc.OpenChannelRequest, opts ...grpc.CallOption) (*lnrpc.ChannelPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens = append(f.opens, in)
	return f.point, nil
}

func (f *fakeLightning) ListChannels(ctx context.Context, in *lnrpc.ListChannelsRequest, opts ...grpc.CallOption) (*lnrpc.ListChannelsResponse, error) {
	return &lnrpc.ListChannelsResponse{Channels: f.channels}, nil
}

func (f *fakeLightning) PendingChannels(ctx context.Context, in *lnrpc.PendingChannelsRequest, opts ...grpc.CallOption) (*lnrpc.PendingChannelsResponse, error) {
	return &lnrpc.PendingChannelsResponse{PendingOpenChannels: f.pending}, nil
}

func (f *fakeLightning) LookupInvoice(ctx context.Context, in *lnrpc.PaymentHash, opts ...grpc.CallOption) (*lnrpc.Invoice, error) {
	inv, ok := f.invoices[string(in.RHash)]
	if !ok {
		return nil, lndError("unable to locate invoice")
	}
	return inv, nil
}

func (f *fakeLightning) WalletBalance(ctx context.Context, in *lnrpc.WalletBalanceRequest, opts ...grpc.CallOption) (*lnrpc.WalletBalanceResponse, error) {
	return f.balance, nil
}

func (f *fakeLightning) AddInvoice(ctx context.Context, in *lnrpc.Invoice, opts ...grpc.CallOption) (*lnrpc.AddInvoiceResponse, error) {
	return &lnrpc.AddInvoiceResponse{PaymentRequest: "lnbcrt" + in.Memo}, nil
}

func (f *fakeLightning) NewAddress(ctx context.Context, in *lnrpc.NewAddressRequest, opts ...grpc.CallOption) (*lnrpc.NewAddressResponse, error) {
	return &lnrpc.NewAddressResponse{Address: "bcrt1qexample"}, nil
}

type fakeRouter struct {
	routerrpc.RouterClient

	sent     []*routerrpc.SendPaymentRequest
	payments map[string]*lnrpc.Payment
	sendErr  error
}

func (f *fakeRouter) SendPaymentV2(ctx context.Context, in *routerrpc.SendPaymentRequest, opts ...grpc.CallOption) (routerrpc.Router_SendPaymentV2Client, error) {
	f.sent = append(f.sent, in)
	if f.sendErr != nil {
		return &paymentStream{err: f.sendErr}, nil
	}
	return &paymentStream{payment: &lnrpc.Payment{
		PaymentHash: sentHashHex,
		Status:      lnrpc.Payment_IN_FLIGHT,
	}}, nil
}

func (f *fakeRouter) TrackPaymentV2(ctx context.Context, in *routerrpc.TrackPaymentRequest, opts ...grpc.CallOption) (routerrpc.Router_TrackPaymentV2Client, error) {
	p, ok := f.payments[string(in.PaymentHash)]
	if !ok {
		return &paymentStream{err: lndError("payment isn't initiated")}, nil
	}
	return &paymentStream{payment: p}, nil
}

const sentHashHex = "1122333333333333333333333333333333333333333333333333333333333333"

// lndError mimics lnd, which reports lookups that miss as plain errors.
func lndError(msg string) error {
	return status.Error(codes.Unknown, msg)
}

type paymentStream struct {
	grpc.ClientStream
	payment *lnrpc.Payment
	err     error
}

func (s *paymentStream) Recv() (*lnrpc.Payment, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.payment, nil
}

type fixedTip uint32

func (t fixedTip) TipHeight(context.Context) (uint32, error) { return uint32(t), nil }

func repeatHex(b string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += b
	}
	return out
}

func testSeed(t *testing.T) node.Seed {
	t.Helper()
	seed, err := node.ParseSeedHex(repeatHex("5a", node.SeedSize))
	require.NoError(t, err)
	return seed
}

func newTestRepo(t *testing.T) *repository.NodeRepository {
	t.Helper()
	ldb, err := db.NewLevelDB(filepath.Join(t.TempDir(), "control"))
	require.NoError(t, err)
	t.Cleanup(func() { ldb.Close() })
	return repository.NewNodeRepository(ldb)
}

// newTestNode returns a running node wired to fakes.
func newTestNode(t *testing.T, ln *fakeLightning, router *fakeRouter) *Node {
	t.Helper()
	n, err := New(&Config{
		Host:           "localhost:10009",
		TLSCertPath:    "tls.cert",
		MacaroonPath:   "admin.macaroon",
		WalletPassword: "password",
		Network:        &chaincfg.RegressionNetParams,
		Seed:           testSeed(t),
		Repo:           newTestRepo(t),
		SyncTimeout:    time.Second,
	})
	require.NoError(t, err)
	n.ln = ln
	n.router = router
	n.syncPoll = time.Millisecond
	n.running.Store(true)
	return n
}

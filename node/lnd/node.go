// Package lnd drives an lnd daemon over gRPC as the payment-channel engine.
package lnd

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lnrpc/routerrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"relay-node/node"
	"relay-node/repository"
)

const (
	connectTimeoutSecs = 30
	paymentTimeoutSecs = 60
	syncPollInterval   = time.Second

	// Routing fee budget: 1% of the amount plus 50 sat.
	feeBudgetBaseMsat = 50_000
	feeBudgetDivisor  = 100
)

// Node implements node.Node on top of lnd.
type Node struct {
	cfg  *Config
	log  *zap.Logger
	repo repository.NodeRepositoryInterface

	conn   *grpc.ClientConn
	ln     lnrpc.LightningClient
	router routerrpc.RouterClient

	nodeID   node.PublicKey
	running  atomic.Bool
	syncPoll time.Duration
}

var _ node.Node = (*Node)(nil)

// New validates cfg and returns a node that is not yet started.
func New(cfg *Config) (*Node, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = defaultSyncTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Node{
		cfg:      cfg,
		log:      log.With(zap.String("engine", "lnd")),
		repo:     cfg.Repo,
		syncPoll: syncPollInterval,
	}, nil
}

// Start unlocks (or creates) the wallet, connects with the admin macaroon
// and checks that the daemon runs under the identity derived from the seed.
func (n *Node) Start(ctx context.Context) error {
	derived, err := n.cfg.Seed.DeriveNodeID(n.cfg.Network)
	if err != nil {
		return fmt.Errorf("derive node id: %w", err)
	}
	if err := n.checkStoredIdentity(derived); err != nil {
		return err
	}

	unlockConn, err := dial(n.cfg.Host, n.cfg.TLSCertPath, nil)
	if err != nil {
		return err
	}
	err = n.prepareWallet(ctx, walletServices{
		state:    lnrpc.NewStateClient(unlockConn),
		unlocker: lnrpc.NewWalletUnlockerClient(unlockConn),
	})
	unlockConn.Close()
	if err != nil {
		return err
	}

	mac, err := readMacaroon(n.cfg.MacaroonPath)
	if err != nil {
		return err
	}
	conn, err := dial(n.cfg.Host, n.cfg.TLSCertPath, mac)
	if err != nil {
		return err
	}
	n.conn = conn
	n.ln = lnrpc.NewLightningClient(conn)
	n.router = routerrpc.NewRouterClient(conn)

	if err := n.attach(ctx, derived); err != nil {
		conn.Close()
		return err
	}
	return nil
}

// checkStoredIdentity rejects seed material that does not belong to the
// data directory.
func (n *Node) checkStoredIdentity(derived node.PublicKey) error {
	rec, err := n.repo.GetIdentity()
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read identity record: %w", err)
	}
	if rec.NodeID != derived.String() {
		return fmt.Errorf("%w: data directory belongs to %s, seed derives %s",
			node.ErrIdentityMismatch, rec.NodeID, derived)
	}
	if rec.Network != n.cfg.Network.Name {
		return fmt.Errorf("data directory was created for network %s, not %s", rec.Network, n.cfg.Network.Name)
	}
	return nil
}

// attach verifies the running daemon and marks the node running.
func (n *Node) attach(ctx context.Context, derived node.PublicKey) error {
	info, err := n.ln.GetInfo(ctx, &lnrpc.GetInfoRequest{})
	if err != nil {
		return engineError("get info", err)
	}
	if info.IdentityPubkey != derived.String() {
		return fmt.Errorf("%w: lnd runs as %s, seed derives %s",
			node.ErrIdentityMismatch, info.IdentityPubkey, derived)
	}

	if _, err := n.repo.GetIdentity(); errors.Is(err, repository.ErrNotFound) {
		err := n.repo.PutIdentity(&repository.IdentityRecord{
			NodeID:    derived.String(),
			Network:   n.cfg.Network.Name,
			CreatedAt: time.Now().UnixMilli(),
		})
		if err != nil {
			return fmt.Errorf("store identity record: %w", err)
		}
	}

	n.checkListenAddr(info.Uris)
	if n.cfg.GossipSourceURL != "" {
		n.log.Warn("lnd syncs gossip from peers, ignoring gossip source",
			zap.String("rgs_url", n.cfg.GossipSourceURL))
	}

	n.nodeID = derived
	n.running.Store(true)
	n.log.Info("Attached to lnd",
		zap.String("node_id", derived.String()),
		zap.String("alias", info.Alias),
		zap.Uint32("block_height", info.BlockHeight))
	return nil
}

func (n *Node) checkListenAddr(uris []string) {
	if n.cfg.ListenAddr.Port == 0 {
		return
	}
	suffix := fmt.Sprintf(":%d", n.cfg.ListenAddr.Port)
	for _, uri := range uris {
		if strings.HasSuffix(uri, suffix) {
			return
		}
	}
	n.log.Warn("lnd does not advertise the configured peer-service port",
		zap.String("listen_addr", n.cfg.ListenAddr.String()),
		zap.Strings("uris", uris))
}

// Stop closes the connection to lnd. The daemon keeps running.
func (n *Node) Stop() error {
	if !n.running.CompareAndSwap(true, false) || n.conn == nil {
		return nil
	}
	return n.conn.Close()
}

func (n *Node) NodeID() node.PublicKey {
	return n.nodeID
}

func (n *Node) ready() error {
	if !n.running.Load() {
		return node.ErrNotRunning
	}
	return nil
}

func (n *Node) Connect(ctx context.Context, nodeID node.PublicKey, addr node.SocketAddress, persist bool) error {
	if err := n.ready(); err != nil {
		return err
	}
	_, err := n.ln.ConnectPeer(ctx, &lnrpc.ConnectPeerRequest{
		Addr: &lnrpc.LightningAddress{
			Pubkey: nodeID.String(),
			Host:   addr.String(),
		},
		Perm:    persist,
		Timeout: connectTimeoutSecs,
	})
	if err != nil && !isAlreadyConnected(err) {
		return engineError("connect peer", err)
	}
	return nil
}

func (n *Node) ListPeers(ctx context.Context) ([]node.PeerDetails, error) {
	if err := n.ready(); err != nil {
		return nil, err
	}
	resp, err := n.ln.ListPeers(ctx, &lnrpc.ListPeersRequest{})
	if err != nil {
		return nil, engineError("list peers", err)
	}

	peers := make([]node.PeerDetails, 0, len(resp.Peers))
	for _, p := range resp.Peers {
		pk, err := node.PublicKeyFromHex(p.PubKey)
		if err != nil {
			n.log.Warn("Skipping peer with malformed key", zap.String("pubkey", p.PubKey), zap.Error(err))
			continue
		}
		addr, err := node.ParseSocketAddress(p.Address)
		if err != nil {
			n.log.Warn("Skipping peer with unparsable address", zap.String("address", p.Address), zap.Error(err))
			continue
		}
		peers = append(peers, node.PeerDetails{NodeID: pk, Address: addr})
	}
	return peers, nil
}

func (n *Node) NewOnchainAddress(ctx context.Context) (string, error) {
	if err := n.ready(); err != nil {
		return "", err
	}
	resp, err := n.ln.NewAddress(ctx, &lnrpc.NewAddressRequest{Type: lnrpc.AddressType_WITNESS_PUBKEY_HASH})
	if err != nil {
		return "", engineError("new address", err)
	}
	return resp.Address, nil
}

func (n *Node) ConnectOpenChannel(ctx context.Context, nodeID node.PublicKey, addr node.SocketAddress,
	fundingMsat, pushMsat uint64, announce bool) (node.UserChannelID, error) {

	var id node.UserChannelID
	if err := n.ready(); err != nil {
		return id, err
	}
	fundingSat, pushSat := fundingMsat/1000, pushMsat/1000
	if fundingSat > math.MaxInt64 {
		return id, fmt.Errorf("funding amount %d sat out of range", fundingSat)
	}

	if err := n.Connect(ctx, nodeID, addr, true); err != nil {
		return id, err
	}

	id, err := node.NewUserChannelID()
	if err != nil {
		return id, fmt.Errorf("generate user channel id: %w", err)
	}

	point, err := n.ln.OpenChannelSync(ctx, &lnrpc.OpenChannelRequest{
		NodePubkey:         nodeID[:],
		LocalFundingAmount: int64(fundingSat),
		PushSat:            int64(pushSat),
		Private:            !announce,
	})
	if err != nil {
		return id, engineError("open channel", err)
	}

	outpoint, err := channelPointString(point)
	if err != nil {
		return id, fmt.Errorf("open channel: %w", err)
	}
	err = n.repo.PutChannel(&repository.ChannelRecord{
		FundingOutpoint:    outpoint,
		UserChannelID:      id.String(),
		CounterpartyNodeID: nodeID.String(),
		CreatedAt:          time.Now().UnixMilli(),
	})
	if err != nil {
		return id, fmt.Errorf("channel %s opened but user channel id not stored: %w", outpoint, err)
	}

	n.log.Info("Opened channel",
		zap.String("funding_outpoint", outpoint),
		zap.String("user_channel_id", id.String()),
		zap.String("counterparty", nodeID.String()))
	return id, nil
}

func (n *Node) ListChannels(ctx context.Context) ([]node.ChannelDetails, error) {
	if err := n.ready(); err != nil {
		return nil, err
	}
	open, err := n.ln.ListChannels(ctx, &lnrpc.ListChannelsRequest{})
	if err != nil {
		return nil, engineError("list channels", err)
	}
	pending, err := n.ln.PendingChannels(ctx, &lnrpc.PendingChannelsRequest{})
	if err != nil {
		return nil, engineError("pending channels", err)
	}
	records, err := n.repo.GetAllChannels()
	if err != nil {
		return nil, fmt.Errorf("read channel records: %w", err)
	}
	ids := make(map[string]node.UserChannelID, len(records))
	for _, rec := range records {
		id, err := node.UserChannelIDFromDecimal(rec.UserChannelID)
		if err != nil {
			n.log.Warn("Skipping malformed channel record", zap.String("funding_outpoint", rec.FundingOutpoint))
			continue
		}
		ids[strings.ToLower(rec.FundingOutpoint)] = id
	}

	channels := make([]node.ChannelDetails, 0, len(open.Channels)+len(pending.PendingOpenChannels))
	for _, c := range open.Channels {
		details, err := n.channelDetails(c.ChannelPoint, c.RemotePubkey, c.Capacity, ids)
		if err != nil {
			return nil, err
		}
		details.OutboundCapacityMsat = capacityMsat(c.LocalBalance, c.GetLocalConstraints().GetChanReserveSat())
		details.InboundCapacityMsat = capacityMsat(c.RemoteBalance, c.GetRemoteConstraints().GetChanReserveSat())
		details.IsChannelReady = true
		details.IsUsable = c.Active
		channels = append(channels, details)
	}
	for _, p := range pending.PendingOpenChannels {
		pc := p.GetChannel()
		if pc == nil {
			continue
		}
		details, err := n.channelDetails(pc.ChannelPoint, pc.RemoteNodePub, pc.Capacity, ids)
		if err != nil {
			return nil, err
		}
		channels = append(channels, details)
	}
	return channels, nil
}

func (n *Node) channelDetails(point, remote string, capacity int64, ids map[string]node.UserChannelID) (node.ChannelDetails, error) {
	cid, err := channelIDFromPoint(point)
	if err != nil {
		return node.ChannelDetails{}, err
	}
	pk, err := node.PublicKeyFromHex(remote)
	if err != nil {
		return node.ChannelDetails{}, fmt.Errorf("channel %s: %w", point, err)
	}
	return node.ChannelDetails{
		ChannelID:          cid,
		CounterpartyNodeID: pk,
		ChannelValueSats:   nonNegative(capacity),
		UserChannelID:      ids[strings.ToLower(point)],
	}, nil
}

func (n *Node) SendPayment(ctx context.Context, invoice *node.Bolt11Invoice) (node.PaymentHash, error) {
	if err := n.ready(); err != nil {
		return node.PaymentHash{}, err
	}

	req := &routerrpc.SendPaymentRequest{
		PaymentRequest: invoice.Raw,
		TimeoutSeconds: paymentTimeoutSecs,
	}
	if invoice.AmountMsat != nil {
		req.FeeLimitMsat = int64(*invoice.AmountMsat/feeBudgetDivisor + feeBudgetBaseMsat)
	}

	// Closing the stream does not abort the payment inside lnd.
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := n.router.SendPaymentV2(streamCtx, req)
	if err != nil {
		return node.PaymentHash{}, engineError("send payment", err)
	}
	first, err := stream.Recv()
	if err != nil {
		return node.PaymentHash{}, engineError("send payment", err)
	}

	hash, err := parsePaymentHash(first.PaymentHash)
	if err != nil {
		return node.PaymentHash{}, err
	}
	n.log.Info("Dispatched payment",
		zap.String("payment_hash", hash.String()),
		zap.Stringer("status", paymentStatus(first.Status)))
	return hash, nil
}

func (n *Node) ReceivePayment(ctx context.Context, amountMsat uint64, description string, expirySecs uint32) (string, error) {
	if err := n.ready(); err != nil {
		return "", err
	}
	if amountMsat > math.MaxInt64 {
		return "", fmt.Errorf("invoice amount %d msat out of range", amountMsat)
	}
	resp, err := n.ln.AddInvoice(ctx, &lnrpc.Invoice{
		Memo:      description,
		ValueMsat: int64(amountMsat),
		Expiry:    int64(expirySecs),
	})
	if err != nil {
		return "", engineError("add invoice", err)
	}
	return resp.PaymentRequest, nil
}

// Payment looks the hash up among outgoing payments first, then invoices.
func (n *Node) Payment(ctx context.Context, hash node.PaymentHash) (*node.PaymentDetails, error) {
	if err := n.ready(); err != nil {
		return nil, err
	}

	details, err := n.trackPayment(ctx, hash)
	if err == nil {
		return details, nil
	}
	if !isNotFound(err) {
		return nil, engineError("track payment", err)
	}

	inv, err := n.ln.LookupInvoice(ctx, &lnrpc.PaymentHash{RHash: hash[:]})
	if isNotFound(err) {
		return nil, node.ErrPaymentNotFound
	}
	if err != nil {
		return nil, engineError("lookup invoice", err)
	}
	return inboundPayment(hash, inv), nil
}

func (n *Node) trackPayment(ctx context.Context, hash node.PaymentHash) (*node.PaymentDetails, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The first update carries the current state, in flight or not.
	stream, err := n.router.TrackPaymentV2(streamCtx, &routerrpc.TrackPaymentRequest{PaymentHash: hash[:]})
	if err != nil {
		return nil, err
	}
	p, err := stream.Recv()
	if err != nil {
		return nil, err
	}
	return outboundPayment(hash, p)
}

// SyncWallets waits until lnd has caught up with the chain tip reported by
// the chain source, bounded by the configured sync timeout.
func (n *Node) SyncWallets(ctx context.Context) error {
	if err := n.ready(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, n.cfg.SyncTimeout)
	defer cancel()

	var target uint32
	if n.cfg.Chain != nil {
		tip, err := n.cfg.Chain.TipHeight(ctx)
		if err != nil {
			return fmt.Errorf("sync: %w", err)
		}
		target = tip
	}

	ticker := time.NewTicker(n.syncPoll)
	defer ticker.Stop()
	for {
		info, err := n.ln.GetInfo(ctx, &lnrpc.GetInfoRequest{})
		if err != nil {
			return engineError("sync", err)
		}
		if info.SyncedToChain && info.BlockHeight >= target {
			n.log.Debug("Wallet synced", zap.Uint32("block_height", info.BlockHeight))
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("sync: lnd at height %d, chain tip %d: %w", info.BlockHeight, target, ctx.Err())
		case <-ticker.C:
		}
	}
}

// ListBalances reads the wallet balance in a single call.
func (n *Node) ListBalances(ctx context.Context) (node.BalanceDetails, error) {
	if err := n.ready(); err != nil {
		return node.BalanceDetails{}, err
	}
	resp, err := n.ln.WalletBalance(ctx, &lnrpc.WalletBalanceRequest{})
	if err != nil {
		return node.BalanceDetails{}, engineError("wallet balance", err)
	}
	return node.BalanceDetails{
		TotalOnchainBalanceSats:     nonNegative(resp.TotalBalance),
		SpendableOnchainBalanceSats: nonNegative(resp.ConfirmedBalance - resp.ReservedBalanceAnchorChan),
	}, nil
}

package lnd

import (
	"context"
	"errors"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"go.uber.org/zap"

	"relay-node/node"
	"relay-node/repository"
)

const (
	defaultSyncTimeout = time.Minute
	minPasswordLen     = 8
)

// TipSource reports the best chain height seen by an independent chain source.
type TipSource interface {
	TipHeight(ctx context.Context) (uint32, error)
}

// Config describes how to reach and bootstrap the lnd daemon.
type Config struct {
	Host           string
	TLSCertPath    string
	MacaroonPath   string
	WalletPassword string

	Network *chaincfg.Params

	// Seed determines the wallet and identity keys.
	Seed node.Seed
	// SeedGenerated marks seed material created at this startup, so the
	// wallet needs no rescan from genesis.
	SeedGenerated bool

	// ListenAddr is the peer-service address the node should accept
	// connections on.
	ListenAddr node.SocketAddress
	// GossipSourceURL is a rapid gossip sync server. lnd syncs its graph
	// over the peer network and only reports the setting.
	GossipSourceURL string

	Chain       TipSource
	Repo        repository.NodeRepositoryInterface
	SyncTimeout time.Duration
	Logger      *zap.Logger
}

func (c *Config) validate() error {
	switch {
	case c.Host == "":
		return errors.New("lnd host is required")
	case c.TLSCertPath == "":
		return errors.New("lnd tls cert path is required")
	case c.MacaroonPath == "":
		return errors.New("lnd macaroon path is required")
	case len(c.WalletPassword) < minPasswordLen:
		return errors.New("lnd wallet password must be at least 8 characters")
	case c.Network == nil:
		return errors.New("network is required")
	case c.Repo == nil:
		return errors.New("repository is required")
	}
	return nil
}

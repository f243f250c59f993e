package lnd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lightningnetwork/lnd/lnrpc"
	"go.uber.org/zap"
)

const (
	statePollInterval = 500 * time.Millisecond
	recoveryWindow    = 2500
)

// walletServices is the part of lnd reachable before the wallet is unlocked.
type walletServices struct {
	state    lnrpc.StateClient
	unlocker lnrpc.WalletUnlockerClient
}

// prepareWallet creates the wallet from the seed on first start, unlocks it
// on later starts, and waits until the RPC server is fully active.
func (n *Node) prepareWallet(ctx context.Context, svc walletServices) error {
	resp, err := svc.state.GetState(ctx, &lnrpc.GetStateRequest{})
	if err != nil {
		return fmt.Errorf("get wallet state: %w", err)
	}

	switch resp.State {
	case lnrpc.WalletState_NON_EXISTING:
		if err := n.initWallet(ctx, svc.unlocker); err != nil {
			return err
		}
	case lnrpc.WalletState_LOCKED:
		n.log.Info("Unlocking wallet")
		_, err := svc.unlocker.UnlockWallet(ctx, &lnrpc.UnlockWalletRequest{
			WalletPassword: []byte(n.cfg.WalletPassword),
		})
		if err != nil {
			return fmt.Errorf("unlock wallet: %w", err)
		}
	}

	return waitForState(ctx, svc.state, lnrpc.WalletState_SERVER_ACTIVE)
}

func (n *Node) initWallet(ctx context.Context, unlocker lnrpc.WalletUnlockerClient) error {
	master, err := n.cfg.Seed.MasterKey(n.cfg.Network)
	if err != nil {
		return fmt.Errorf("derive master key: %w", err)
	}

	req := &lnrpc.InitWalletRequest{
		WalletPassword:    []byte(n.cfg.WalletPassword),
		ExtendedMasterKey: master.String(),
	}
	if n.cfg.SeedGenerated {
		req.ExtendedMasterKeyBirthdayTimestamp = uint64(time.Now().Unix())
	} else {
		req.RecoveryWindow = recoveryWindow
	}

	n.log.Info("Initializing wallet from seed", zap.Bool("generated_seed", n.cfg.SeedGenerated))
	resp, err := unlocker.InitWallet(ctx, req)
	if err != nil {
		return fmt.Errorf("init wallet: %w", err)
	}

	return writeMacaroon(n.cfg.MacaroonPath, resp.AdminMacaroon)
}

// writeMacaroon stores the admin macaroon unless one is already present.
func writeMacaroon(path string, mac []byte) error {
	if len(mac) == 0 {
		return nil
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return os.WriteFile(path, mac, 0600)
}

func waitForState(ctx context.Context, state lnrpc.StateClient, want lnrpc.WalletState) error {
	ticker := time.NewTicker(statePollInterval)
	defer ticker.Stop()

	for {
		resp, err := state.GetState(ctx, &lnrpc.GetStateRequest{})
		if err != nil {
			return fmt.Errorf("get wallet state: %w", err)
		}
		if resp.State == want {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for wallet state %v (at %v): %w", want, resp.State, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Package app holds the state shared by every request handler.
package app

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg"

	"relay-node/node"
	"relay-node/workers"
)

// State grants handlers access to the one running node. It is built once at
// startup and shared by pointer; handlers never get exclusive access and
// the node synchronizes its own operations.
type State struct {
	node    node.Node
	pool    *workers.Pool
	network *chaincfg.Params
}

// New wraps a started node.
func New(n node.Node, pool *workers.Pool, network *chaincfg.Params) *State {
	return &State{node: n, pool: pool, network: network}
}

// Network returns the chain parameters the node runs on.
func (s *State) Network() *chaincfg.Params {
	return s.network
}

// NodeID returns the identity of the node.
func (s *State) NodeID() node.PublicKey {
	return s.node.NodeID()
}

// Exec runs one engine operation on the worker pool.
func (s *State) Exec(ctx context.Context, op func(ctx context.Context, n node.Node) error) error {
	return s.pool.Run(ctx, func(ctx context.Context) error {
		return op(ctx, s.node)
	})
}

// Query runs one engine operation producing a value on the worker pool.
func Query[T any](ctx context.Context, s *State, op func(ctx context.Context, n node.Node) (T, error)) (T, error) {
	return workers.Call(ctx, s.pool, func(ctx context.Context) (T, error) {
		return op(ctx, s.node)
	})
}

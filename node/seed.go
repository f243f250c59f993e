package node

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
)

// SeedSize is the length of the node entropy in bytes.
const SeedSize = 64

const (
	keyPurpose      = 1017
	keyFamilyNode   = 6
	coinTypeBitcoin = 0
	coinTypeTestnet = 1
)

// Seed is the entropy every node, wallet and channel key is derived from.
type Seed [SeedSize]byte

// GenerateSeed returns fresh random seed material.
func GenerateSeed() (Seed, error) {
	var s Seed
	if _, err := rand.Read(s[:]); err != nil {
		return s, fmt.Errorf("read entropy: %w", err)
	}
	return s, nil
}

// ParseSeedHex decodes seed material given as 128 hex characters.
func ParseSeedHex(s string) (Seed, error) {
	var seed Seed
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return seed, fmt.Errorf("invalid seed hex: %w", err)
	}
	if len(b) != SeedSize {
		return seed, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(b))
	}
	copy(seed[:], b)
	return seed, nil
}

// Hex returns the lowercase hex encoding of the seed.
func (s Seed) Hex() string {
	return hex.EncodeToString(s[:])
}

// String never reveals the seed.
func (s Seed) String() string {
	return "Seed(redacted)"
}

// MasterKey returns the BIP32 root key for the network.
func (s Seed) MasterKey(params *chaincfg.Params) (*hdkeychain.ExtendedKey, error) {
	return hdkeychain.NewMaster(s[:], params)
}

// DeriveNodeID derives the node identity key, m/1017'/coin'/6'/0/0.
func (s Seed) DeriveNodeID(params *chaincfg.Params) (PublicKey, error) {
	master, err := s.MasterKey(params)
	if err != nil {
		return PublicKey{}, fmt.Errorf("derive master key: %w", err)
	}

	coinType := uint32(coinTypeTestnet)
	if params.Net == wire.MainNet {
		coinType = coinTypeBitcoin
	}

	path := []uint32{
		hdkeychain.HardenedKeyStart + keyPurpose,
		hdkeychain.HardenedKeyStart + coinType,
		hdkeychain.HardenedKeyStart + keyFamilyNode,
		0,
		0,
	}
	key := master
	for _, i := range path {
		key, err = key.Derive(i)
		if err != nil {
			return PublicKey{}, fmt.Errorf("derive child %d: %w", i, err)
		}
	}

	pub, err := key.ECPubKey()
	if err != nil {
		return PublicKey{}, err
	}
	return ParsePublicKey(pub.SerializeCompressed())
}

// ParseNetwork maps a network name to its chain parameters.
func ParseNetwork(name string) (*chaincfg.Params, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "bitcoin", "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "simnet":
		return &chaincfg.SimNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network %q", name)
	}
}

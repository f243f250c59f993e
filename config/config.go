// Package config loads process configuration from flags, environment and an
// optional YAML file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"relay-node/node"
)

const envPrefix = "RELAY"

// Config is the resolved process configuration.
type Config struct {
	DataDir         string
	RPCPort         int
	NodeServicePort int
	EsploraURL      string
	RGSURL          string
	Network         string
	SeedHex         string
	Workers         int
	SyncTimeout     time.Duration

	LogLevel   string
	AppLogFile string

	LndHost           string
	LndTLSCertPath    string
	LndMacaroonPath   string
	LndWalletPassword string
}

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "path to a YAML config file")
	fs.String("data-dir", "", "directory holding the control-plane metadata")
	fs.Int("rpc-port", 3000, "control-plane HTTP port")
	fs.Int("node-service-port", 0, "peer-service port of the node")
	fs.String("esplora-url", "", "esplora chain-data source")
	fs.String("rgs-url", "", "rapid gossip sync source")
	fs.String("network", "testnet", "bitcoin, testnet, signet, regtest or simnet")
	fs.String("seed-hex", "", "64-byte wallet seed as hex, generated when empty")
	fs.Int("workers", 16, "number of concurrent engine operations")
	fs.Duration("sync-timeout", time.Minute, "upper bound on one sync call")
	fs.String("log-level", "info", "log level")
	fs.String("log-file", "", "log file, stdout when empty")
	fs.String("lnd-host", "localhost:10009", "lnd gRPC address")
	fs.String("lnd-tls-cert", "", "lnd TLS certificate")
	fs.String("lnd-macaroon", "", "lnd admin macaroon")
	fs.String("lnd-wallet-password", "", "lnd wallet password")
	return fs
}

// flag name -> config key, for flags whose key differs from the flag name.
var flagKeys = map[string]string{
	"data-dir":            "data_dir",
	"rpc-port":            "rpc_port",
	"node-service-port":   "node_service_port",
	"esplora-url":         "esplora_url",
	"rgs-url":             "rgs_url",
	"seed-hex":            "seed_hex",
	"sync-timeout":        "sync_timeout",
	"log-level":           "log.level",
	"log-file":            "log.app_log_file",
	"lnd-host":            "lnd.host",
	"lnd-tls-cert":        "lnd.tls_cert_path",
	"lnd-macaroon":        "lnd.macaroon_path",
	"lnd-wallet-password": "lnd.wallet_password",
}

// Load parses args (without the program name) and merges them with the
// environment and the config file. Flags win over env, env over the file.
func Load(args []string) (*Config, error) {
	fs := newFlagSet("relay-node")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		key, ok := flagKeys[f.Name]
		if !ok {
			key = f.Name
		}
		bindErr = errors.Join(bindErr, v.BindPFlag(key, f))
	})
	if bindErr != nil {
		return nil, bindErr
	}

	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		DataDir:         v.GetString("data_dir"),
		RPCPort:         v.GetInt("rpc_port"),
		NodeServicePort: v.GetInt("node_service_port"),
		EsploraURL:      v.GetString("esplora_url"),
		RGSURL:          v.GetString("rgs_url"),
		Network:         v.GetString("network"),
		SeedHex:         v.GetString("seed_hex"),
		Workers:         v.GetInt("workers"),
		SyncTimeout:     v.GetDuration("sync_timeout"),

		LogLevel:   v.GetString("log.level"),
		AppLogFile: v.GetString("log.app_log_file"),

		LndHost:           v.GetString("lnd.host"),
		LndTLSCertPath:    v.GetString("lnd.tls_cert_path"),
		LndMacaroonPath:   v.GetString("lnd.macaroon_path"),
		LndWalletPassword: v.GetString("lnd.wallet_password"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.DataDir == "":
		return errors.New("data_dir is required")
	case c.RPCPort <= 0 || c.RPCPort > 65535:
		return fmt.Errorf("rpc_port %d out of range", c.RPCPort)
	case c.NodeServicePort <= 0 || c.NodeServicePort > 65535:
		return fmt.Errorf("node_service_port %d out of range", c.NodeServicePort)
	case c.NodeServicePort == c.RPCPort:
		return errors.New("node_service_port and rpc_port must differ")
	case c.Workers < 1:
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	case c.SyncTimeout <= 0:
		return errors.New("sync_timeout must be positive")
	case c.LndHost == "":
		return errors.New("lnd.host is required")
	case c.LndTLSCertPath == "":
		return errors.New("lnd.tls_cert_path is required")
	case c.LndMacaroonPath == "":
		return errors.New("lnd.macaroon_path is required")
	case len(c.LndWalletPassword) < 8:
		return errors.New("lnd.wallet_password must be at least 8 characters")
	}
	if _, err := c.ChainParams(); err != nil {
		return err
	}
	if c.SeedHex != "" {
		if _, err := node.ParseSeedHex(c.SeedHex); err != nil {
			return fmt.Errorf("seed_hex: %w", err)
		}
	}
	return nil
}

// ChainParams resolves the configured network.
func (c *Config) ChainParams() (*chaincfg.Params, error) {
	return node.ParseNetwork(c.Network)
}

// ListenAddr is the peer-service address the node advertises.
func (c *Config) ListenAddr() node.SocketAddress {
	return node.SocketAddress{Kind: node.AddressTCPIPv6, Host: "::", Port: uint16(c.NodeServicePort)}
}

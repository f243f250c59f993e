package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"relay-node/app"
	"relay-node/chain"
	"relay-node/config"
	"relay-node/db"
	"relay-node/handlers"
	"relay-node/logger"
	"relay-node/metrics"
	"relay-node/node"
	"relay-node/node/lnd"
	"relay-node/repository"
	"relay-node/routers"
	"relay-node/workers"
)

const (
	startTimeout    = 5 * time.Minute
	shutdownTimeout = 10 * time.Second
)

func main() {
	// Load config
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Println("Config error:", err)
		os.Exit(1)
	}

	if err := logger.InitLogger(cfg.AppLogFile, cfg.LogLevel); err != nil {
		fmt.Println("Failed to initialize logger:", err)
		os.Exit(1)
	}

	if err := run(cfg, os.Stdout); err != nil {
		os.Exit(fail(err, os.Stdout))
	}
	logger.Logger.Sync()
}

// fail logs err and flushes the logger, since os.Exit skips deferred calls.
// It returns the process exit code.
func fail(err error, out io.Writer) int {
	logger.Logger.Error("Exiting", zap.Error(err))
	logger.Logger.Sync()
	fmt.Fprintln(out, "Error:", err)
	return 1
}

// run starts the node and serves until a signal arrives. Operator output
// (generated seed, node id, listening port) goes to out. Nothing binds the
// RPC port until the node has started.
func run(cfg *config.Config, out io.Writer) error {
	logger.Logger.Info("Starting control plane...")

	params, err := cfg.ChainParams()
	if err != nil {
		return err
	}

	seed, generated, err := resolveSeed(cfg.SeedHex, out)
	if err != nil {
		return err
	}

	// Connect to LevelDB
	ldb, err := db.NewLevelDB(filepath.Join(cfg.DataDir, "control"))
	if err != nil {
		return fmt.Errorf("open leveldb: %w", err)
	}
	defer ldb.Close()

	// Initialize repository
	nodeRepo := repository.NewNodeRepository(ldb)

	lndCfg := &lnd.Config{
		Host:            cfg.LndHost,
		TLSCertPath:     cfg.LndTLSCertPath,
		MacaroonPath:    cfg.LndMacaroonPath,
		WalletPassword:  cfg.LndWalletPassword,
		Network:         params,
		Seed:            seed,
		SeedGenerated:   generated,
		ListenAddr:      cfg.ListenAddr(),
		GossipSourceURL: cfg.RGSURL,
		Repo:            nodeRepo,
		SyncTimeout:     cfg.SyncTimeout,
		Logger:          logger.Logger,
	}
	if cfg.EsploraURL != "" {
		lndCfg.Chain = chain.NewEsplora(cfg.EsploraURL)
	}

	n, err := lnd.New(lndCfg)
	if err != nil {
		return fmt.Errorf("build node: %w", err)
	}

	startCtx, cancel := context.WithTimeout(context.Background(), startTimeout)
	err = n.Start(startCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("start node: %w", err)
	}
	defer func() {
		if err := n.Stop(); err != nil {
			logger.Logger.Warn("Failed to stop node", zap.Error(err))
		}
	}()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	pool := workers.New(cfg.Workers, m)
	state := app.New(n, pool, params)
	fmt.Fprintf(out, "node id: %s\n", state.NodeID())

	// Initialize HTTP handlers
	h := handlers.NewHandler(state)

	// Setup router
	r := mux.NewRouter()
	r.Use(handlers.Instrument(m), handlers.Recover)
	routers.RegisterRoutes(r, h, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	// HTTP Server
	srv := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", cfg.RPCPort),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	fmt.Fprintln(out, "started http server listening on port", cfg.RPCPort)
	logger.Logger.Info("Server running on port", zap.Int("port", cfg.RPCPort), zap.Int("workers", pool.Size()))

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Logger.Info("Shutdown signal received, exiting...", zap.String("signal", sig.String()))
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}

// resolveSeed parses the configured seed or generates a fresh one. A
// generated seed is written to out exactly once; it is the operator's only
// chance to capture it. A configured seed is never written.
func resolveSeed(seedHex string, out io.Writer) (node.Seed, bool, error) {
	if seedHex != "" {
		seed, err := node.ParseSeedHex(seedHex)
		return seed, false, err
	}
	seed, err := node.GenerateSeed()
	if err != nil {
		return seed, false, fmt.Errorf("generate seed: %w", err)
	}
	fmt.Fprintf(out, "no seed provided, generated new seed: %s\n", seed.Hex())
	return seed, true, nil
}

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"GuardVault/internal/api"
	"GuardVault/internal/callvm"
	"GuardVault/internal/dispatch"
	"GuardVault/internal/genesis"
	"GuardVault/internal/logger"
	"GuardVault/internal/network"
	"GuardVault/internal/snapshot"
	"GuardVault/internal/storage"
	"GuardVault/internal/wallet"
)

// loadGenesis reads the configured genesis file.
func (n *Node) loadGenesis() error {
	if n.cfg.GenesisPath == "" {
		return nil
	}

	g, err := genesis.Load(n.cfg.GenesisPath)
	if err != nil {
		return err
	}

	n.genesis = g

	return nil
}

// initStorage initializes the Pebble storage.
func (n *Node) initStorage() error {
	dbPath := filepath.Join(n.cfg.DataPath, "db")

	if err := os.MkdirAll(n.cfg.DataPath, 0755); err != nil {
		return fmt.Errorf("create data directory:\n%w", err)
	}

	opts := storage.DefaultOptions()
	opts.SyncCommits = n.cfg.SyncCommits

	db, err := storage.Open(dbPath, opts)
	if err != nil {
		return fmt.Errorf("init storage:\n%w", err)
	}

	n.storage = db

	return nil
}

// restoreSnapshot applies the configured snapshot to an empty store.
func (n *Node) restoreSnapshot() error {
	if n.cfg.RestorePath == "" {
		return nil
	}

	compressed, err := os.ReadFile(n.cfg.RestorePath)
	if err != nil {
		return fmt.Errorf("read snapshot:\n%w", err)
	}

	data, err := snapshot.Decompress(compressed)
	if err != nil {
		return fmt.Errorf("decompress snapshot:\n%w", err)
	}

	m, err := snapshot.Apply(n.storage, data)
	if err != nil {
		return fmt.Errorf("restore snapshot:\n%w", err)
	}

	logger.Info("snapshot restored", "entries", len(m.Entries), "lastEvent", m.LastEvent)

	return nil
}

// initCallVM loads the WASM call targets named by the genesis file and
// the modules directory.
func (n *Node) initCallVM() error {
	pool := callvm.New(n.cfg.GasLimit)
	n.callPool = pool

	paths, err := n.modulePaths()
	if err != nil {
		return err
	}

	for _, path := range paths {
		wasmBytes, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read call target %s:\n%w", path, err)
		}

		id, err := pool.Load(wasmBytes, nil)
		if err != nil {
			return fmt.Errorf("load call target %s:\n%w", path, err)
		}

		logger.Info("call target loaded", "path", path, "id", fmt.Sprintf("%x", id))
	}

	return nil
}

// modulePaths lists the WASM files to load.
func (n *Node) modulePaths() ([]string, error) {
	var paths []string

	if n.genesis != nil {
		paths = append(paths, n.genesis.CallTargets...)
	}

	if n.cfg.ModulesPath == "" {
		return paths, nil
	}

	entries, err := os.ReadDir(n.cfg.ModulesPath)
	if err != nil {
		return nil, fmt.Errorf("read modules directory:\n%w", err)
	}

	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".wasm") {
			paths = append(paths, filepath.Join(n.cfg.ModulesPath, e.Name()))
		}
	}

	return paths, nil
}

// initWallet opens the persisted vault, or creates it from the genesis file.
func (n *Node) initWallet() error {
	opts := []wallet.Option{
		wallet.WithExecutor(n.callPool),
		wallet.WithSink(wallet.SinkFunc(n.publish)),
	}

	if n.genesis != nil {
		opts = append(opts, n.genesis.Options()...)
	}

	w, err := wallet.Open(n.storage, opts...)
	if errors.Is(err, wallet.ErrNotInitialized) {
		if n.genesis == nil {
			return fmt.Errorf("no vault in %s and no genesis file given", n.cfg.DataPath)
		}

		w, err = wallet.Create(n.storage, n.genesis.Genesis(), opts...)
	}
	if err != nil {
		return fmt.Errorf("init vault:\n%w", err)
	}

	n.wallet = w
	n.dispatcher = dispatch.New(w)

	return nil
}

// initNetwork initializes the QUIC event feed.
func (n *Node) initNetwork() error {
	if n.cfg.QUICAddress == "" {
		return nil
	}

	allowed, err := parseMonitorKeys(n.cfg.Monitors)
	if err != nil {
		return err
	}

	feed, err := network.NewFeed(network.Config{
		PrivateKey:   n.cfg.PrivateKey,
		ListenAddr:   n.cfg.QUICAddress,
		MaxPeers:     n.cfg.MaxMonitors,
		AllowedPeers: allowed,
	}, n.dispatcher, n.wallet)
	if err != nil {
		return fmt.Errorf("init network:\n%w", err)
	}

	n.feed = feed

	return nil
}

// initAPI creates the HTTP API server.
func (n *Node) initAPI() error {
	n.api = api.New(n.cfg.HTTPAddress, n.dispatcher, n.wallet, n)
	return nil
}

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

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

// Node is a running vault daemon.
type Node struct {
	cfg        *Config
	genesis    *genesis.File // genesis is nil when no file is configured
	storage    *storage.Storage
	callPool   *callvm.Pool
	wallet     *wallet.Wallet
	dispatcher *dispatch.Dispatcher
	feed       *network.Feed // feed is nil when the QUIC address is empty
	api        *api.Server
}

// NewNode opens (or creates) the vault and wires its services.
func NewNode(cfg *Config) (*Node, error) {
	n := &Node{cfg: cfg}

	steps := []func() error{
		n.loadGenesis,
		n.initStorage,
		n.restoreSnapshot,
		n.initCallVM,
		n.initWallet,
		n.initNetwork,
		n.initAPI,
	}

	for _, step := range steps {
		if err := step(); err != nil {
			n.Close()
			return nil, err
		}
	}

	return n, nil
}

// Run starts serving and blocks until SIGINT or SIGTERM.
func (n *Node) Run() error {
	if n.feed != nil {
		if err := n.feed.Start(); err != nil {
			n.Close()
			return fmt.Errorf("start feed:\n%w", err)
		}
	}

	if err := n.api.Start(); err != nil {
		n.Close()
		return fmt.Errorf("start api:\n%w", err)
	}

	st, err := n.wallet.Status()
	if err == nil {
		logger.Info("vault ready",
			"owner", st.Owner.String()[:16],
			"guardians", st.GuardianCount,
			"threshold", st.Threshold,
			"recovering", st.InRecovery,
		)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")

	return n.Close()
}

// publish forwards committed events to the feed once it exists.
func (n *Node) publish(e wallet.Event) {
	if n.feed != nil {
		n.feed.Publish(e)
	}
}

// Snapshot exports the vault state, compressed. Serves GET /snapshot.
func (n *Node) Snapshot() ([]byte, error) {
	data, err := snapshot.Create(n.storage)
	if err != nil {
		return nil, err
	}

	return snapshot.Compress(data)
}

// Close stops every service and releases storage.
func (n *Node) Close() error {
	if n.api != nil {
		n.api.Stop()
	}

	if n.feed != nil {
		n.feed.Close()
	}

	if n.callPool != nil {
		n.callPool.Close()
	}

	if n.storage != nil {
		return n.storage.Close()
	}

	return nil
}

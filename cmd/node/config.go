package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config holds the node configuration. Environment variables supply the
// defaults; command-line flags override them.
type Config struct {
	// DataPath is the directory for persistent storage.
	DataPath string `env:"GUARDVAULT_DATA" envDefault:"./data"`

	// SyncCommits fsyncs every vault transition before it is acknowledged.
	SyncCommits bool `env:"GUARDVAULT_SYNC_COMMITS" envDefault:"true"`

	// HTTPAddress is the HTTP API listen address.
	HTTPAddress string `env:"GUARDVAULT_HTTP" envDefault:":8080"`

	// QUICAddress is the event feed listen address. Empty disables the feed.
	QUICAddress string `env:"GUARDVAULT_QUIC" envDefault:":9000"`

	// MaxMonitors bounds the monitors connected to the feed at once.
	MaxMonitors int `env:"GUARDVAULT_MAX_MONITORS" envDefault:"64"`

	// Monitors lists the hex public keys allowed to connect to the feed.
	// Empty allows any key.
	Monitors []string `env:"GUARDVAULT_MONITORS"`

	// KeyPath is the path to the node's Ed25519 private key file.
	KeyPath string `env:"GUARDVAULT_KEY"`

	// GenesisPath is the TOML genesis file, required to create a new vault.
	GenesisPath string `env:"GUARDVAULT_GENESIS"`

	// ModulesPath is a directory of WASM call targets loaded at startup.
	ModulesPath string `env:"GUARDVAULT_MODULES"`

	// RestorePath is a compressed snapshot applied to an empty data directory.
	RestorePath string `env:"GUARDVAULT_RESTORE"`

	// GasLimit bounds the fuel of one outgoing call.
	GasLimit uint64 `env:"GUARDVAULT_GAS_LIMIT" envDefault:"10000000"`

	// LogLevel is the minimum log level: debug, info, warn or error.
	LogLevel string `env:"GUARDVAULT_LOG_LEVEL" envDefault:"info"`

	// PrivateKey is the node's Ed25519 key, identifying it to monitors.
	PrivateKey ed25519.PrivateKey
}

// parseFlags parses the environment and then command-line flags into Config.
func parseFlags(args []string) (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env:\n%w", err)
	}

	fs := flag.NewFlagSet("guardvault-node", flag.ContinueOnError)
	fs.StringVar(&cfg.DataPath, "data", cfg.DataPath, "Data directory path")
	fs.BoolVar(&cfg.SyncCommits, "sync-commits", cfg.SyncCommits, "Fsync every committed operation")
	fs.StringVar(&cfg.HTTPAddress, "http", cfg.HTTPAddress, "HTTP API address")
	fs.StringVar(&cfg.QUICAddress, "quic", cfg.QUICAddress, "QUIC event feed address (empty disables)")
	fs.IntVar(&cfg.MaxMonitors, "max-monitors", cfg.MaxMonitors, "Maximum connected feed monitors")
	fs.Func("monitors", "Comma-separated hex keys allowed on the feed (default any)", func(v string) error {
		cfg.Monitors = strings.Split(v, ",")
		return nil
	})
	fs.StringVar(&cfg.KeyPath, "key", cfg.KeyPath, "Ed25519 private key path (generates new if missing)")
	fs.StringVar(&cfg.GenesisPath, "genesis", cfg.GenesisPath, "Genesis TOML file (required for a new vault)")
	fs.StringVar(&cfg.ModulesPath, "modules", cfg.ModulesPath, "Directory of WASM call targets")
	fs.StringVar(&cfg.RestorePath, "restore", cfg.RestorePath, "Snapshot to restore into an empty data directory")
	fs.Uint64Var(&cfg.GasLimit, "gas-limit", cfg.GasLimit, "Fuel limit of one outgoing call")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadOrGenerateKey loads the private key from file or generates a new one.
func loadOrGenerateKey(keyPath string) (ed25519.PrivateKey, error) {
	if keyPath == "" {
		return generateNewKey()
	}

	data, err := os.ReadFile(keyPath)
	if os.IsNotExist(err) {
		return generateAndSaveKey(keyPath)
	}

	if err != nil {
		return nil, fmt.Errorf("read key file:\n%w", err)
	}

	if len(data) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid key size: got %d, want %d", len(data), ed25519.PrivateKeySize)
	}

	return ed25519.PrivateKey(data), nil
}

// generateNewKey creates a new Ed25519 private key.
func generateNewKey() (ed25519.PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key:\n%w", err)
	}

	return priv, nil
}

// generateAndSaveKey creates a new key and saves it to the given path.
func generateAndSaveKey(path string) (ed25519.PrivateKey, error) {
	priv, err := generateNewKey()
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(path, priv, 0600); err != nil {
		return nil, fmt.Errorf("save key to %s:\n%w", path, err)
	}

	return priv, nil
}

// parseMonitorKeys decodes the feed allowlist.
func parseMonitorKeys(keys []string) ([]ed25519.PublicKey, error) {
	out := make([]ed25519.PublicKey, 0, len(keys))

	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}

		b, err := hex.DecodeString(k)
		if err != nil || len(b) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("invalid monitor key %q", k)
		}

		out = append(out, ed25519.PublicKey(b))
	}

	return out, nil
}

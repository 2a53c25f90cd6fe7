package main

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"GuardVault/internal/genesis"
	"GuardVault/internal/wallet"
)

func testAddr(b byte) wallet.Address {
	var a wallet.Address
	for i := range a {
		a[i] = b
	}

	return a
}

// writeGenesis writes a two-guardian genesis file.
func writeGenesis(t *testing.T, dir string) string {
	t.Helper()

	path := filepath.Join(dir, "genesis.toml")
	err := genesis.Write(path, &genesis.File{
		Owner:             testAddr(0x01),
		Threshold:         1,
		GuardianAddresses: []wallet.Address{testAddr(0x10), testAddr(0x11)},
	})
	if err != nil {
		t.Fatalf("write genesis: %v", err)
	}

	return path
}

func TestParseFlagsEnvDefaults(t *testing.T) {
	t.Setenv("GUARDVAULT_HTTP", ":7070")
	t.Setenv("GUARDVAULT_GAS_LIMIT", "42")

	cfg, err := parseFlags([]string{"-quic", ""})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if cfg.HTTPAddress != ":7070" {
		t.Errorf("http = %q, want :7070", cfg.HTTPAddress)
	}

	if cfg.GasLimit != 42 {
		t.Errorf("gas limit = %d, want 42", cfg.GasLimit)
	}

	if cfg.QUICAddress != "" {
		t.Errorf("quic = %q, want flag override to empty", cfg.QUICAddress)
	}

	if cfg.DataPath != "./data" {
		t.Errorf("data = %q, want default ./data", cfg.DataPath)
	}

	if !cfg.SyncCommits {
		t.Error("commits should be synced by default")
	}
}

func TestMonitorAllowlist(t *testing.T) {
	key := strings.Repeat("ab", 32)
	t.Setenv("GUARDVAULT_MONITORS", key+","+strings.Repeat("cd", 32))

	cfg, err := parseFlags(nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	keys, err := parseMonitorKeys(cfg.Monitors)
	if err != nil {
		t.Fatalf("parse keys: %v", err)
	}

	if len(keys) != 2 || hex.EncodeToString(keys[0]) != key {
		t.Errorf("unexpected keys: %x", keys)
	}

	cfg, err = parseFlags([]string{"-monitors", key})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if len(cfg.Monitors) != 1 {
		t.Errorf("flag should replace the env list, got %v", cfg.Monitors)
	}

	if _, err := parseMonitorKeys([]string{"beef"}); err == nil {
		t.Error("short key should be rejected")
	}
}

func TestLoadOrGenerateKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.key")

	first, err := loadOrGenerateKey(path)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	second, err := loadOrGenerateKey(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if !first.Equal(second) {
		t.Error("reloaded key differs from the generated one")
	}

	if err := os.WriteFile(path, []byte("short"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := loadOrGenerateKey(path); err == nil {
		t.Error("expected error for a truncated key file")
	}
}

func TestNodeCreateReopenRestore(t *testing.T) {
	dir := t.TempDir()

	key, err := generateNewKey()
	if err != nil {
		t.Fatal(err)
	}

	cfg := &Config{
		DataPath:    filepath.Join(dir, "a"),
		GenesisPath: writeGenesis(t, dir),
		GasLimit:    1000,
		PrivateKey:  key,
	}

	n, err := NewNode(cfg)
	if err != nil {
		t.Fatalf("create node: %v", err)
	}

	st, err := n.wallet.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}

	if st.Owner != testAddr(0x01) || st.GuardianCount != 2 {
		t.Fatalf("unexpected status: %+v", st)
	}

	snap, err := n.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	if err := n.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Reopening needs no genesis.
	reopened, err := NewNode(&Config{DataPath: cfg.DataPath, GasLimit: 1000, PrivateKey: key})
	if err != nil {
		t.Fatalf("reopen node: %v", err)
	}
	reopened.Close()

	snapPath := filepath.Join(dir, "vault.snap")
	if err := os.WriteFile(snapPath, snap, 0600); err != nil {
		t.Fatal(err)
	}

	restored, err := NewNode(&Config{
		DataPath:    filepath.Join(dir, "b"),
		RestorePath: snapPath,
		GasLimit:    1000,
		PrivateKey:  key,
	})
	if err != nil {
		t.Fatalf("restore node: %v", err)
	}
	defer restored.Close()

	got, err := restored.wallet.Status()
	if err != nil {
		t.Fatalf("restored status: %v", err)
	}

	if got != st {
		t.Errorf("restored status = %+v, want %+v", got, st)
	}
}

func TestNodeRequiresGenesisForNewVault(t *testing.T) {
	key, err := generateNewKey()
	if err != nil {
		t.Fatal(err)
	}

	_, err = NewNode(&Config{DataPath: t.TempDir(), PrivateKey: key})
	if err == nil {
		t.Error("expected error without vault or genesis")
	}
}

package integration

import (
	"bytes"
	"context"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"GuardVault/client"
	"GuardVault/internal/genesis"
)

// safeBuffer wraps bytes.Buffer with a mutex for concurrent read/write.
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// Write appends data to the buffer (implements io.Writer).
func (sb *safeBuffer) Write(p []byte) (int, error) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	return sb.buf.Write(p)
}

// String returns the buffer contents as a string.
func (sb *safeBuffer) String() string {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	return sb.buf.String()
}

// Node represents a running GuardVault node process.
type Node struct {
	binary   string             // binary is the compiled node binary
	httpAddr string             // httpAddr is the HTTP API address
	quicAddr string             // quicAddr is the QUIC feed address
	dataDir  string             // dataDir is the node's data directory
	keyPath  string             // keyPath is the node's private key file
	genesis  string             // genesis is the genesis file path
	stdout   *safeBuffer        // stdout captures process output
	stderr   *safeBuffer        // stderr captures process errors
	cmd      *exec.Cmd          // cmd is the running process
	cancel   context.CancelFunc // cancel stops the process
}

// HTTPAddr returns the node's HTTP address.
func (n *Node) HTTPAddr() string { return n.httpAddr }

// QUICAddr returns the node's QUIC feed address.
func (n *Node) QUICAddr() string { return n.quicAddr }

// DataDir returns the node's data directory.
func (n *Node) DataDir() string { return n.dataDir }

// Client returns an HTTP client for the node.
func (n *Node) Client() *client.Client { return client.NewClient(n.httpAddr) }

// Logs returns the node's stdout output.
func (n *Node) Logs() string { return n.stdout.String() }

// LogContains checks if the node's logs contain a substring.
func (n *Node) LogContains(s string) bool {
	return strings.Contains(n.stdout.String(), s)
}

// IsRunning checks if the node process is alive and started successfully.
func (n *Node) IsRunning() bool {
	if n.cmd == nil || n.cmd.Process == nil {
		return false
	}

	if !n.LogContains("starting GuardVault node") {
		return false
	}

	return n.cmd.ProcessState == nil
}

// StartNode builds the node binary, writes g as the genesis file and starts
// a node on free local ports. The node is stopped at test cleanup.
func StartNode(t *testing.T, g *genesis.File) *Node {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	dir := t.TempDir()

	n := &Node{
		binary:   buildBinary(t),
		httpAddr: freeAddr(t, "tcp"),
		quicAddr: freeAddr(t, "udp"),
		dataDir:  filepath.Join(dir, "data"),
		keyPath:  filepath.Join(dir, "node.key"),
		genesis:  filepath.Join(dir, "genesis.toml"),
	}

	if err := genesis.Write(n.genesis, g); err != nil {
		t.Fatalf("write genesis: %v", err)
	}

	n.Start(t)
	t.Cleanup(n.Stop)

	return n
}

// Start launches the node process and waits until its API answers.
func (n *Node) Start(t *testing.T) {
	t.Helper()

	n.stdout = &safeBuffer{}
	n.stderr = &safeBuffer{}

	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel

	n.cmd = exec.CommandContext(ctx, n.binary,
		"--data", n.dataDir,
		"--http", n.httpAddr,
		"--quic", n.quicAddr,
		"--key", n.keyPath,
		"--genesis", n.genesis,
		"--log-level", "debug",
	)
	n.cmd.Stdout = n.stdout
	n.cmd.Stderr = n.stderr

	if err := n.cmd.Start(); err != nil {
		t.Fatalf("start node: %v", err)
	}

	// Wait in background so ProcessState gets set when the process exits.
	go n.cmd.Wait()

	n.WaitReady(t, 15*time.Second)
}

// WaitReady polls the health endpoint until it answers or timeout expires.
func (n *Node) WaitReady(t *testing.T, timeout time.Duration) {
	t.Helper()

	c := n.Client()
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if err := c.Health(); err == nil && n.IsRunning() {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}

	t.Fatalf("node not ready after %v:\nSTDOUT:\n%s\nSTDERR:\n%s", timeout, n.stdout.String(), n.stderr.String())
}

// Stop terminates the node process.
func (n *Node) Stop() {
	if n.cancel != nil {
		n.cancel()
	}

	if n.cmd != nil && n.cmd.Process != nil {
		n.cmd.Process.Kill()
		// Wait is already called by the background goroutine in Start.
		// Give it a moment to complete after kill.
		time.Sleep(100 * time.Millisecond)
	}
}

// Restart stops the node and starts it again on the same data directory.
func (n *Node) Restart(t *testing.T) {
	t.Helper()

	n.Stop()
	n.Start(t)
}

// WaitFor polls cond until it holds or timeout expires.
func WaitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}

	t.Fatalf("timed out waiting for %s", what)
}

// freeAddr reserves a free local port on network and releases it.
func freeAddr(t *testing.T, network string) string {
	t.Helper()

	if network == "udp" {
		conn, err := net.ListenPacket("udp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("reserve udp port: %v", err)
		}
		defer conn.Close()

		return conn.LocalAddr().String()
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve tcp port: %v", err)
	}
	defer ln.Close()

	return ln.Addr().String()
}

var (
	buildOnce   sync.Once
	buildPath   string
	buildOutput []byte
	buildErr    error
)

// buildBinary compiles cmd/node once per test run.
func buildBinary(t *testing.T) string {
	t.Helper()

	root := getProjectRoot(t)

	buildOnce.Do(func() {
		dir, err := os.MkdirTemp("", "guardvault_test_*")
		if err != nil {
			buildErr = err
			return
		}

		buildPath = filepath.Join(dir, "guardvault-node")

		cmd := exec.Command("go", "build", "-o", buildPath, "./cmd/node")
		cmd.Dir = root
		buildOutput, buildErr = cmd.CombinedOutput()
	})

	if buildErr != nil {
		t.Fatalf("build failed: %v\n%s", buildErr, buildOutput)
	}

	return buildPath
}

// getProjectRoot returns the project root directory (containing go.mod).
func getProjectRoot(t *testing.T) string {
	t.Helper()

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("get working dir: %v", err)
	}

	dir := wd
	for i := 0; i < 5; i++ {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		dir = filepath.Dir(dir)
	}

	t.Fatalf("could not find project root from %s", wd)

	return ""
}

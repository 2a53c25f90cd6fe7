package main

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"GuardVault/client"
)

var (
	nodeAddr   string // nodeAddr is the HTTP address of the vault node
	keyPath    string // keyPath is the raw Ed25519 key used to sign
	jsonOutput bool   // jsonOutput switches every command to JSON output
)

var rootCmd = &cobra.Command{
	Use:           "guardctl",
	Short:         "guardctl - operate a guardian-recoverable vault",
	Long:          `Signs and submits vault operations, and reads vault state from a GuardVault node.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&nodeAddr, "node", envOr("GUARDCTL_NODE", "127.0.0.1:8080"), "node HTTP address")
	rootCmd.PersistentFlags().StringVar(&keyPath, "key", os.Getenv("GUARDCTL_KEY"), "path to the signing key")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "guardians", Title: "Guardian commands:"},
		&cobra.Group{ID: "recovery", Title: "Recovery commands:"},
		&cobra.Group{ID: "removal", Title: "Timelocked removal commands:"},
		&cobra.Group{ID: "vault", Title: "Value commands:"},
		&cobra.Group{ID: "query", Title: "Query commands:"},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}

	return fallback
}

// newClient connects to the node named by --node.
func newClient() *client.Client {
	return client.NewClient(nodeAddr)
}

// loadAccount reads the signing key named by --key.
func loadAccount() (*client.Account, error) {
	key, err := readKey(keyPath)
	if err != nil {
		return nil, err
	}

	return client.AccountFromKey(key), nil
}

// readKey reads a raw Ed25519 private key, the format the node writes.
func readKey(path string) (ed25519.PrivateKey, error) {
	if path == "" {
		return nil, fmt.Errorf("--key is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file:\n%w", err)
	}

	if len(data) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid key size: got %d, want %d", len(data), ed25519.PrivateKeySize)
	}

	return ed25519.PrivateKey(data), nil
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

type receiptOutput struct {
	Hash     string `json:"hash"`
	Function string `json:"function"`
	Output   string `json:"output,omitempty"`
}

// printReceipt reports an applied transaction.
func printReceipt(cmd *cobra.Command, r *client.Receipt) error {
	out := receiptOutput{
		Hash:     r.Hash.String(),
		Function: r.Function,
		Output:   hex.EncodeToString(r.Output),
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), out)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s applied in tx %s\n", out.Function, out.Hash)
	if out.Output != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "output: %s\n", out.Output)
	}

	return nil
}

// signed wraps an operation that needs the signing account.
func signed(fn func(cmd *cobra.Command, c *client.Client, a *client.Account, args []string) (*client.Receipt, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := loadAccount()
		if err != nil {
			return err
		}

		r, err := fn(cmd, newClient(), a, args)
		if err != nil {
			return err
		}

		return printReceipt(cmd, r)
	}
}

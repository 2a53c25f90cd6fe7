package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"GuardVault/client"
)

type identityOutput struct {
	Address    string `json:"address"`
	Commitment string `json:"commitment"`
}

var keygenCmd = &cobra.Command{
	Use:   "keygen <file>",
	Short: "Generate a signing key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(args[0]); err == nil {
			return fmt.Errorf("%s already exists", args[0])
		}

		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return fmt.Errorf("generate key:\n%w", err)
		}

		if err := os.WriteFile(args[0], priv, 0600); err != nil {
			return fmt.Errorf("save key to %s:\n%w", args[0], err)
		}

		return printIdentity(cmd, client.AccountFromKey(priv))
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the address and guardian commitment of --key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadAccount()
		if err != nil {
			return err
		}

		return printIdentity(cmd, a)
	},
}

// printIdentity shows what to hand out: the address to an owner adding a
// guardian, the commitment for everything else.
func printIdentity(cmd *cobra.Command, a *client.Account) error {
	out := identityOutput{
		Address:    a.Address().String(),
		Commitment: a.Commitment().String(),
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), out)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "address:    %s\ncommitment: %s\n", out.Address, out.Commitment)

	return nil
}

func init() {
	rootCmd.AddCommand(keygenCmd, whoamiCmd)
}

package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"GuardVault/client"
)

var (
	callInput string
	callValue uint64
	assetData string
)

var depositCmd = &cobra.Command{
	Use:     "deposit <amount>",
	GroupID: "vault",
	Short:   "Credit the vault",
	Args:    cobra.ExactArgs(1),
	RunE: signed(func(cmd *cobra.Command, c *client.Client, a *client.Account, args []string) (*client.Receipt, error) {
		amount, err := parseAmount(args[0])
		if err != nil {
			return nil, err
		}

		return a.Deposit(c, amount)
	}),
}

var withdrawCmd = &cobra.Command{
	Use:     "withdraw <recipient> <amount>",
	GroupID: "vault",
	Short:   "Send value from the vault (owner only)",
	Args:    cobra.ExactArgs(2),
	RunE: signed(func(cmd *cobra.Command, c *client.Client, a *client.Account, args []string) (*client.Receipt, error) {
		to, err := parseAddress(args[0])
		if err != nil {
			return nil, err
		}

		amount, err := parseAmount(args[1])
		if err != nil {
			return nil, err
		}

		return a.Withdraw(c, to, amount)
	}),
}

var callCmd = &cobra.Command{
	Use:     "call <target>",
	GroupID: "vault",
	Short:   "Invoke a call target through the vault (owner only)",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := parseHash(args[0])
		if err != nil {
			return err
		}

		input, err := parseBytes(callInput)
		if err != nil {
			return err
		}

		a, err := loadAccount()
		if err != nil {
			return err
		}

		out, err := a.ExecuteCall(newClient(), target, input, callValue)
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]string{"output": hex.EncodeToString(out)})
		}

		fmt.Fprintf(cmd.OutOrStdout(), "output: %x\n", out)

		return nil
	},
}

var receiveAssetCmd = &cobra.Command{
	Use:     "receive-asset <asset> <token>",
	GroupID: "vault",
	Short:   "Hand a non-native asset to the vault",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		asset, err := parseHash(args[0])
		if err != nil {
			return err
		}

		token, err := parseHash(args[1])
		if err != nil {
			return err
		}

		data, err := parseBytes(assetData)
		if err != nil {
			return err
		}

		a, err := loadAccount()
		if err != nil {
			return err
		}

		sel, err := a.ReceiveAsset(newClient(), asset, token, data)
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]string{"selector": hex.EncodeToString(sel[:])})
		}

		fmt.Fprintf(cmd.OutOrStdout(), "accepted, selector %x\n", sel)

		return nil
	},
}

func init() {
	callCmd.Flags().StringVar(&callInput, "input", "", "hex call input")
	callCmd.Flags().Uint64Var(&callValue, "value", 0, "value attached to the call")
	receiveAssetCmd.Flags().StringVar(&assetData, "data", "", "hex payload passed with the asset")

	rootCmd.AddCommand(depositCmd, withdrawCmd, callCmd, receiveAssetCmd)
}

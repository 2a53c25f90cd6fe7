package main

import (
	"github.com/spf13/cobra"

	"GuardVault/client"
)

var addGuardianCmd = &cobra.Command{
	Use:     "add-guardian <address>",
	GroupID: "guardians",
	Short:   "Register a guardian (owner only)",
	Args:    cobra.ExactArgs(1),
	RunE: signed(func(cmd *cobra.Command, c *client.Client, a *client.Account, args []string) (*client.Receipt, error) {
		id, err := parseAddress(args[0])
		if err != nil {
			return nil, err
		}

		return a.AddGuardian(c, id)
	}),
}

var removeGuardianCmd = &cobra.Command{
	Use:     "remove-guardian <address>",
	GroupID: "guardians",
	Short:   "Unregister a guardian without the timelock (owner only)",
	Args:    cobra.ExactArgs(1),
	RunE: signed(func(cmd *cobra.Command, c *client.Client, a *client.Account, args []string) (*client.Receipt, error) {
		id, err := parseAddress(args[0])
		if err != nil {
			return nil, err
		}

		return a.RemoveGuardian(c, id)
	}),
}

var transferCmd = &cobra.Command{
	Use:     "transfer <commitment>",
	GroupID: "guardians",
	Short:   "Move your guardian seat to another commitment",
	Args:    cobra.ExactArgs(1),
	RunE: signed(func(cmd *cobra.Command, c *client.Client, a *client.Account, args []string) (*client.Receipt, error) {
		next, err := parseCommitment(args[0])
		if err != nil {
			return nil, err
		}

		return a.TransferGuardianship(c, next)
	}),
}

var revealCmd = &cobra.Command{
	Use:     "reveal",
	GroupID: "guardians",
	Short:   "Publish the link between your address and your commitment",
	Args:    cobra.NoArgs,
	RunE: signed(func(cmd *cobra.Command, c *client.Client, a *client.Account, args []string) (*client.Receipt, error) {
		return a.RevealIdentity(c)
	}),
}

func init() {
	rootCmd.AddCommand(addGuardianCmd, removeGuardianCmd, transferCmd, revealCmd)
}

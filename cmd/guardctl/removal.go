package main

import (
	"github.com/spf13/cobra"

	"GuardVault/client"
)

var queueRemovalCmd = &cobra.Command{
	Use:     "queue-removal <commitment>",
	GroupID: "removal",
	Short:   "Start the removal timelock for a guardian (owner only)",
	Args:    cobra.ExactArgs(1),
	RunE: signed(func(cmd *cobra.Command, c *client.Client, a *client.Account, args []string) (*client.Receipt, error) {
		target, err := parseCommitment(args[0])
		if err != nil {
			return nil, err
		}

		return a.QueueRemoval(c, target)
	}),
}

var executeRemovalCmd = &cobra.Command{
	Use:     "execute-removal <old-commitment> <new-commitment>",
	GroupID: "removal",
	Short:   "Replace a queued guardian once its timelock expired (owner only)",
	Args:    cobra.ExactArgs(2),
	RunE: signed(func(cmd *cobra.Command, c *client.Client, a *client.Account, args []string) (*client.Receipt, error) {
		old, err := parseCommitment(args[0])
		if err != nil {
			return nil, err
		}

		next, err := parseCommitment(args[1])
		if err != nil {
			return nil, err
		}

		return a.ExecuteRemoval(c, old, next)
	}),
}

var cancelRemovalCmd = &cobra.Command{
	Use:     "cancel-removal <commitment>",
	GroupID: "removal",
	Short:   "Clear a pending removal (owner only)",
	Args:    cobra.ExactArgs(1),
	RunE: signed(func(cmd *cobra.Command, c *client.Client, a *client.Account, args []string) (*client.Receipt, error) {
		target, err := parseCommitment(args[0])
		if err != nil {
			return nil, err
		}

		return a.CancelRemoval(c, target)
	}),
}

func init() {
	rootCmd.AddCommand(queueRemovalCmd, executeRemovalCmd, cancelRemovalCmd)
}

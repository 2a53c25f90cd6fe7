package main

import (
	"github.com/spf13/cobra"

	"GuardVault/client"
)

var initiateRecoveryCmd = &cobra.Command{
	Use:     "initiate-recovery <candidate>",
	GroupID: "recovery",
	Short:   "Open a recovery round and vote for candidate",
	Args:    cobra.ExactArgs(1),
	RunE: signed(func(cmd *cobra.Command, c *client.Client, a *client.Account, args []string) (*client.Receipt, error) {
		candidate, err := parseAddress(args[0])
		if err != nil {
			return nil, err
		}

		return a.InitiateRecovery(c, candidate)
	}),
}

var supportRecoveryCmd = &cobra.Command{
	Use:     "support-recovery <candidate>",
	GroupID: "recovery",
	Short:   "Vote for candidate in the open round",
	Args:    cobra.ExactArgs(1),
	RunE: signed(func(cmd *cobra.Command, c *client.Client, a *client.Account, args []string) (*client.Receipt, error) {
		candidate, err := parseAddress(args[0])
		if err != nil {
			return nil, err
		}

		return a.SupportRecovery(c, candidate)
	}),
}

var cancelRecoveryCmd = &cobra.Command{
	Use:     "cancel-recovery",
	GroupID: "recovery",
	Short:   "Close the open round (owner only)",
	Args:    cobra.NoArgs,
	RunE: signed(func(cmd *cobra.Command, c *client.Client, a *client.Account, args []string) (*client.Receipt, error) {
		return a.CancelRecovery(c)
	}),
}

var executeRecoveryCmd = &cobra.Command{
	Use:     "execute-recovery <new-owner>",
	GroupID: "recovery",
	Short:   "Install new-owner once its tally reaches the threshold",
	Args:    cobra.ExactArgs(1),
	RunE: signed(func(cmd *cobra.Command, c *client.Client, a *client.Account, args []string) (*client.Receipt, error) {
		owner, err := parseAddress(args[0])
		if err != nil {
			return nil, err
		}

		return a.ExecuteRecovery(c, owner)
	}),
}

var executeRecoveryListCmd = &cobra.Command{
	Use:     "execute-recovery-list <new-owner> <commitment>...",
	GroupID: "recovery",
	Short:   "Install new-owner on the votes of the listed guardians",
	Long: `Install new-owner on the votes of the listed guardians.

Every listed guardian must have voted for new-owner in the current round, and
each vote can back only one execution.`,
	Args: cobra.MinimumNArgs(1),
	RunE: signed(func(cmd *cobra.Command, c *client.Client, a *client.Account, args []string) (*client.Receipt, error) {
		owner, err := parseAddress(args[0])
		if err != nil {
			return nil, err
		}

		list, err := parseCommitments(args[1:])
		if err != nil {
			return nil, err
		}

		return a.ExecuteRecoveryWithList(c, owner, list)
	}),
}

func init() {
	rootCmd.AddCommand(
		initiateRecoveryCmd,
		supportRecoveryCmd,
		cancelRecoveryCmd,
		executeRecoveryCmd,
		executeRecoveryListCmd,
	)
}

package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"GuardVault/internal/api"
)

var (
	eventsFrom  uint64
	eventsLimit int
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "query",
	Short:   "Show the vault summary",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := newClient().Status()
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), st)
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "owner:      %s\n", st.Owner)
		fmt.Fprintf(w, "guardians:  %d (threshold %d)\n", st.GuardianCount, st.Threshold)
		fmt.Fprintf(w, "recovering: %v (round %d)\n", st.InRecovery, st.Round)
		fmt.Fprintf(w, "balance:    %d\n", st.Balance)
		fmt.Fprintf(w, "last event: %d\n", st.LastEvent)

		return nil
	},
}

var guardianCmd = &cobra.Command{
	Use:     "guardian <commitment>",
	GroupID: "query",
	Short:   "Show membership and latest vote of a commitment",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := parseCommitment(args[0])
		if err != nil {
			return err
		}

		g, err := newClient().Guardian(c)
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), g)
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "guardian: %v\n", g.Guardian)

		if g.Vote != nil {
			fmt.Fprintf(w, "vote:     %s in round %d (consumed %v)\n", g.Vote.Candidate, g.Vote.Round, g.Vote.Consumed)
		}

		return nil
	},
}

var votesCmd = &cobra.Command{
	Use:     "votes <round> <candidate>",
	GroupID: "query",
	Short:   "Show the tally of a candidate in a round",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		round, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid round %q: %w", args[0], err)
		}

		candidate, err := parseAddress(args[1])
		if err != nil {
			return err
		}

		count, err := newClient().VoteCount(round, candidate)
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), api.TallyResponse{Round: round, Candidate: candidate, Count: count})
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%d\n", count)

		return nil
	},
}

var removalCmd = &cobra.Command{
	Use:     "removal <commitment>",
	GroupID: "query",
	Short:   "Show when a queued guardian becomes removable",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := parseCommitment(args[0])
		if err != nil {
			return err
		}

		deadline, err := newClient().RemovalDeadline(c)
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), api.RemovalResponse{Commitment: c, Queued: deadline > 0, Deadline: deadline})
		}

		if deadline == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "not queued")
			return nil
		}

		fmt.Fprintf(cmd.OutOrStdout(), "removable at %s\n", time.Unix(deadline, 0).UTC().Format(time.RFC3339))

		return nil
	},
}

var eventsCmd = &cobra.Command{
	Use:     "events",
	GroupID: "query",
	Short:   "List audit events",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		events, err := newClient().Events(eventsFrom, eventsLimit)
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), events)
		}

		for _, e := range events {
			printEvent(cmd, e)
		}

		return nil
	},
}

var snapshotCmd = &cobra.Command{
	Use:     "snapshot <file>",
	GroupID: "query",
	Short:   "Download the compressed state snapshot",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := newClient().Snapshot()
		if err != nil {
			return err
		}

		if err := os.WriteFile(args[0], data, 0600); err != nil {
			return fmt.Errorf("write snapshot:\n%w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s\n", len(data), args[0])

		return nil
	},
}

// printEvent writes one event per line.
func printEvent(cmd *cobra.Command, e api.EventResponse) {
	fmt.Fprintf(cmd.OutOrStdout(), "#%d %-18s actor=%.16s subject=%.16s target=%.16s round=%d amount=%d\n",
		e.Seq, e.Kind, e.Actor.String(), e.Subject, e.Target, e.Round, e.Amount)
}

func init() {
	eventsCmd.Flags().Uint64Var(&eventsFrom, "from", 1, "first sequence number")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 100, "maximum events to list")

	rootCmd.AddCommand(statusCmd, guardianCmd, votesCmd, removalCmd, eventsCmd, snapshotCmd)
}

package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"GuardVault/internal/api"
	"GuardVault/internal/network"
	"GuardVault/internal/wallet"
)

// backfillPage is the number of events requested per backfill round trip.
const backfillPage = 1000

var (
	watchAddr string
	watchFrom uint64
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: "query",
	Short:   "Follow the vault's event feed over QUIC",
	Long: `Follow the vault's event feed over QUIC.

Persisted events from --from onward are fetched first, then live events are
printed as the vault commits them. Stop with Ctrl-C.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := watchKey()
		if err != nil {
			return err
		}

		var mu sync.Mutex
		onEvent := func(e wallet.Event) {
			mu.Lock()
			defer mu.Unlock()

			if jsonOutput {
				_ = printJSON(cmd.OutOrStdout(), api.NewEventResponse(e))
				return
			}
			printEvent(cmd, api.NewEventResponse(e))
		}

		mon, err := network.NewMonitor(key, onEvent)
		if err != nil {
			return err
		}
		defer mon.Close()

		if err := mon.Connect(watchAddr); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := backfill(ctx, mon, watchFrom); err != nil {
			return err
		}

		<-ctx.Done()

		return nil
	},
}

// backfill pages through persisted events until the log is exhausted.
func backfill(ctx context.Context, mon *network.Monitor, from uint64) error {
	for {
		reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		events, err := mon.Backfill(reqCtx, from, backfillPage)
		cancel()

		if err != nil {
			return fmt.Errorf("backfill from %d:\n%w", from, err)
		}

		if len(events) < backfillPage {
			return nil
		}

		from = events[len(events)-1].Seq + 1
	}
}

// watchKey uses --key when given; a monitor needs no vault rights, so an
// ephemeral key serves otherwise.
func watchKey() (ed25519.PrivateKey, error) {
	if keyPath != "" {
		return readKey(keyPath)
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key:\n%w", err)
	}

	return priv, nil
}

func init() {
	watchCmd.Flags().StringVar(&watchAddr, "quic", envOr("GUARDCTL_QUIC", "127.0.0.1:9000"), "node QUIC address")
	watchCmd.Flags().Uint64Var(&watchFrom, "from", 1, "first persisted event to replay")

	rootCmd.AddCommand(watchCmd)
}

package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sigweihq/wcbroker/pkg/broker"
	"github.com/sigweihq/wcbroker/pkg/constants"
	"github.com/sigweihq/wcbroker/pkg/metrics"
	"github.com/sigweihq/wcbroker/pkg/store"
	"github.com/sigweihq/wcbroker/pkg/types"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newPendingCmd(load loader) *cobra.Command {
	pendingCmd := &cobra.Command{
		Use:   "pending",
		Short: "Inspect sent transactions still waiting for a receipt",
	}
	pendingCmd.AddCommand(newPendingListCmd(load), newPendingWatchCmd(load))
	return pendingCmd
}

func newPendingListCmd(load loader) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending transactions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := load(cmd)
			if err != nil {
				return err
			}

			pending, corrupt, err := store.ListPendingTransactions(cmd.Context(), app.store)
			if err != nil {
				return err
			}
			for _, key := range corrupt {
				app.logger.Warn("skipping corrupt pending transaction entry", "key", key)
			}

			if asJSON {
				if pending == nil {
					pending = []types.PendingTransaction{}
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(pending)
			}
			if len(pending) == 0 {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "no pending transactions")
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "HASH\tCHAIN\tREQUEST\tMETHOD")
			for _, p := range pending {
				fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", p.TxHash, p.ChainID, p.Payload.ID, p.Payload.Method)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newPendingWatchCmd(load loader) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Wait for the receipts of pending transactions and drop the mined ones",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := load(cmd)
			if err != nil {
				return err
			}

			pending, _, err := store.ListPendingTransactions(cmd.Context(), app.store)
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "no pending transactions")
				return err
			}

			if app.gatherer != nil {
				server := &http.Server{
					Addr:              app.cfg.Metrics.Addr,
					Handler:           promhttp.HandlerFor(app.gatherer, promhttp.HandlerOpts{}),
					ReadHeaderTimeout: constants.TLSHandshakeTimeout,
				}
				go func() {
					if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						app.logger.Error("metrics server failed", "addr", server.Addr, "error", err)
					}
				}()
				defer server.Close()
			}

			defer app.clients.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return watchPending(ctx, cmd, app, pending)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "give up waiting after this long")
	return cmd
}

func watchPending(ctx context.Context, cmd *cobra.Command, app *app, pending []types.PendingTransaction) error {
	var (
		mu  sync.Mutex
		out = cmd.OutOrStdout()
	)
	report := func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(out, format, args...)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range pending {
		p := p
		g.Go(func() error {
			chainID := p.ChainID
			if chainID == 0 {
				chainID = constants.DefaultChainID
			}
			chain, err := app.registry.Chain(gctx, chainID)
			if err != nil {
				report("%s\tskipped: %v\n", p.TxHash, err)
				return nil
			}

			submission := broker.ReceiptWatch(p.TxHash, chain, app.clients, app.cfg.RPC.ReceiptPollInterval, app.logger)

			start := time.Now()
			receipt, err := broker.AwaitReceipt(gctx, app.store, p.TxHash, submission)
			app.recorder.ObserveLatency("receipt_wait", time.Since(start), nil)
			if receipt == nil {
				app.recorder.IncCounter("receipt", map[string]string{metrics.LabelOutcome: "timeout"})
				report("%s\tstill pending\n", p.TxHash)
				return nil
			}

			app.recorder.IncCounter("receipt", map[string]string{metrics.LabelOutcome: "mined"})
			if err != nil {
				return err
			}
			report("%s\tmined in block %s (status %d)\n", p.TxHash, receipt.BlockNumber, receipt.Status)
			return nil
		})
	}
	return g.Wait()
}

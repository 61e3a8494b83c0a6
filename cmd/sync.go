package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"fulfillbill/internal/config"
	"fulfillbill/internal/logger"
	"fulfillbill/internal/platform"
	"fulfillbill/internal/store"
	"fulfillbill/pkg/models"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch platform transactions and upsert them locally",
	Long: `Fetch billable transactions from the fulfillment platform for a time
window (or one explicit platform invoice) and upsert them into the local
store, keyed on the platform's transaction id.

The platform caps each filtered query's result set, so the fetcher runs
several overlapping filter strategies and deduplicates. Re-running the same
window is idempotent.`,
	Example: `  # Sync yesterday
  fulfillbill sync

  # Sync a window, one shard per day
  fulfillbill sync --from 2026-08-01 --to 2026-08-08 --shard-days 1

  # Inspect what a sync would do
  fulfillbill sync --from 2026-08-01 --to 2026-08-02 --dry-run

  # Sync the transactions of one platform invoice
  fulfillbill sync --invoice-id INV-20260801`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().String("from", "", "Window start (YYYY-MM-DD, inclusive)")
	syncCmd.Flags().String("to", "", "Window end (YYYY-MM-DD, exclusive)")
	syncCmd.Flags().String("invoice-id", "", "Fetch one platform invoice instead of a window")
	syncCmd.Flags().Int("shard-days", 0, "Split the window into shards of this many days (0 = one shard)")
	syncCmd.Flags().Bool("dry-run", false, "Fetch and report without writing")
}

func runSync(cmd *cobra.Command, args []string) error {
	log := logger.WithJob("sync", uuid.NewString())

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	invoiceID, _ := cmd.Flags().GetString("invoice-id")
	shardDays, _ := cmd.Flags().GetInt("shard-days")

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx := context.Background()
	client, fetcher := newFetcher(cfg)

	var st *store.Store
	if !dryRun {
		st, err = openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()
	}

	if invoiceID != "" {
		txns, report, err := fetcher.FetchInvoice(ctx, invoiceID)
		if err != nil {
			return fmt.Errorf("fetching invoice %s: %w", invoiceID, err)
		}
		return finishSync(ctx, log, st, txns, nil, report, dryRun)
	}

	from, to, err := windowFlags(cmd)
	if err != nil {
		return err
	}

	log.Info().
		Str("from", from.Format("2006-01-02")).
		Str("to", to.Format("2006-01-02")).
		Int("shard_days", shardDays).
		Bool("dry_run", dryRun).
		Msg("Starting transaction sync")

	// Shards are independently idempotent: a failed shard is re-run alone.
	var (
		all      []models.Transaction
		seen     = map[string]bool{}
		combined platform.FetchReport
		failed   int
	)
	for _, shard := range shards(from, to, shardDays) {
		txns, report, err := fetcher.FetchWindow(ctx, shard.from, shard.to)
		combined.Strategies += report.Strategies
		combined.Pages += report.Pages
		combined.Malformed += report.Malformed
		combined.FailedStrategies = append(combined.FailedStrategies, report.FailedStrategies...)
		if err != nil {
			failed++
			log.Error().Err(err).
				Str("shard_from", shard.from.Format("2006-01-02")).
				Str("shard_to", shard.to.Format("2006-01-02")).
				Msg("Shard failed, re-run it separately")
			continue
		}
		for _, txn := range txns {
			if !seen[txn.ExternalID] {
				seen[txn.ExternalID] = true
				all = append(all, txn)
			}
		}
	}
	combined.Distinct = len(all)
	if failed > 0 && len(all) == 0 {
		return fmt.Errorf("all %d shards failed", failed)
	}

	invoices, err := client.ListInvoices(ctx, from, to)
	if err != nil {
		log.Warn().Err(err).Msg("Could not list platform invoices, skipping invoice sync")
		invoices = nil
	}

	return finishSync(ctx, log, st, all, invoices, combined, dryRun)
}

func finishSync(ctx context.Context, log zerolog.Logger, st *store.Store, txns []models.Transaction, invoices []models.ExternalInvoice, report platform.FetchReport, dryRun bool) error {
	inserted, updated := 0, 0
	if dryRun {
		log.Info().
			Int("fetched", len(txns)).
			Int("invoices", len(invoices)).
			Msg("Dry run: skipping upsert")
	} else {
		var err error
		inserted, updated, err = st.UpsertTransactions(ctx, txns)
		if err != nil {
			return fmt.Errorf("upserting transactions: %w", err)
		}
		if len(invoices) > 0 {
			if err := st.UpsertExternalInvoices(ctx, invoices); err != nil {
				return fmt.Errorf("upserting external invoices: %w", err)
			}
		}
	}

	log.Info().
		Bool("dry_run", dryRun).
		Int("fetched", report.Distinct).
		Int("inserted", inserted).
		Int("updated", updated).
		Int("pages", report.Pages).
		Int("malformed", report.Malformed).
		Strs("failed_strategies", report.FailedStrategies).
		Msg("Sync complete")
	return nil
}

type shard struct{ from, to time.Time }

func shards(from, to time.Time, days int) []shard {
	if days <= 0 {
		return []shard{{from, to}}
	}
	var out []shard
	for cur := from; cur.Before(to); {
		next := cur.AddDate(0, 0, days)
		if next.After(to) {
			next = to
		}
		out = append(out, shard{cur, next})
		cur = next
	}
	return out
}

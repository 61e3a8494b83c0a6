package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"fulfillbill/internal/config"
	"fulfillbill/internal/logger"
	"fulfillbill/internal/platform"
	"fulfillbill/internal/reconcile"
	"fulfillbill/internal/store"
	"fulfillbill/pkg/models"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Reconcile local billing state against the platform's records",
	Long: `Compare locally stored transactions against the platform's own
invoices and their declared transaction sets, and report discrepancies:
transactions the platform has that we do not, phantom local records the
platform cannot confirm, unattributed transactions, per-invoice amount
drift beyond tolerance, and invoices whose transactions span clients.

The report goes to stdout as JSON. The command exits non-zero when any
discrepancy would block invoice finalization. Data is never mutated.`,
	Example: `  # Validate the previous day
  fulfillbill validate

  # Validate a month
  fulfillbill validate --from 2026-08-01 --to 2026-09-01`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().String("from", "", "Window start (YYYY-MM-DD, inclusive)")
	validateCmd.Flags().String("to", "", "Window end (YYYY-MM-DD, exclusive)")
	validateCmd.Flags().Bool("skip-remote", false, "Validate against stored invoices only, without calling the platform")
}

func runValidate(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("validate")

	skipRemote, _ := cmd.Flags().GetBool("skip-remote")
	from, to, err := windowFlags(cmd)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx := context.Background()
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	local, err := st.ListForPeriod(ctx, from, to)
	if err != nil {
		return fmt.Errorf("loading local transactions: %w", err)
	}

	var (
		invoices     []models.ExternalInvoice
		externalTxns map[string][]models.Transaction
	)
	if skipRemote {
		invoices, err = st.ListExternalInvoices(ctx, from, to)
		if err != nil {
			return fmt.Errorf("loading stored invoices: %w", err)
		}
		invoices, err = confirmStored(ctx, st, local, invoices)
		if err != nil {
			return err
		}
	} else {
		client, fetcher := newFetcher(cfg)
		invoices, err = client.ListInvoices(ctx, from, to)
		if err != nil {
			return fmt.Errorf("listing platform invoices: %w", err)
		}
		externalTxns = make(map[string][]models.Transaction, len(invoices))
		for _, inv := range invoices {
			txns, _, err := fetcher.FetchInvoice(ctx, inv.ID)
			if err != nil {
				// Partial coverage beats no report; the gap is visible in
				// the counts.
				log.Warn().Err(err).Str("invoice_id", inv.ID).Msg("Could not fetch invoice transactions")
				continue
			}
			externalTxns[inv.ID] = txns
		}
		// An invoice can be dated after the window whose charges it bills,
		// so ids the window listing missed are confirmed individually
		// before anything is called phantom.
		invoices, err = confirmStored(ctx, st, local, invoices)
		if err != nil {
			return err
		}
		invoices = confirmRemote(ctx, fetcher, local, invoices, externalTxns)
	}

	report := reconcile.Validate(local, invoices, externalTxns)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	log.Info().
		Int("local", report.LocalCount).
		Int("external", report.ExternalCount).
		Int("missing_locally", len(report.MissingLocally)).
		Int("phantom_local", len(report.PhantomLocal)).
		Int("unattributed", len(report.Unattributed)).
		Int("amount_mismatches", len(report.AmountMismatches)).
		Int("cross_client", len(report.CrossClient)).
		Msg("Validation complete")

	if report.Blocking() {
		return fmt.Errorf("validation found blocking discrepancies")
	}
	return nil
}

// referencedInvoiceIDs returns the invoice ids the local set claims that are
// not already in the confirmed list.
func referencedInvoiceIDs(local []models.Transaction, confirmed []models.ExternalInvoice) []string {
	known := make(map[string]bool, len(confirmed))
	for _, inv := range confirmed {
		known[inv.ID] = true
	}
	seen := map[string]bool{}
	var out []string
	for _, txn := range local {
		if txn.ExternalInvoiceID == nil {
			continue
		}
		id := *txn.ExternalInvoiceID
		if known[id] || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// confirmStored resolves locally referenced invoice ids the windowed listing
// missed against the synced invoice records.
func confirmStored(ctx context.Context, st *store.Store, local []models.Transaction, confirmed []models.ExternalInvoice) ([]models.ExternalInvoice, error) {
	missing := referencedInvoiceIDs(local, confirmed)
	if len(missing) == 0 {
		return confirmed, nil
	}
	stored, err := st.GetExternalInvoices(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("confirming stored invoices: %w", err)
	}
	return append(confirmed, stored...), nil
}

// confirmRemote asks the platform's per-invoice endpoint about ids nothing
// else could confirm. A non-empty transaction set confirms the invoice; its
// amount is taken from what the platform reports billed on it. Ids the
// platform answers emptily for stay unconfirmed and are reported phantom.
func confirmRemote(ctx context.Context, fetcher *platform.Fetcher, local []models.Transaction, confirmed []models.ExternalInvoice, externalTxns map[string][]models.Transaction) []models.ExternalInvoice {
	log := logger.WithComponent("validate")
	for _, id := range referencedInvoiceIDs(local, confirmed) {
		txns, _, err := fetcher.FetchInvoice(ctx, id)
		if err != nil {
			log.Warn().Err(err).Str("invoice_id", id).Msg("Could not confirm invoice with platform")
			continue
		}
		if len(txns) == 0 {
			continue
		}
		amount := decimal.Zero
		for _, txn := range txns {
			amount = amount.Add(txn.Amount).Add(txn.Surcharge)
		}
		confirmed = append(confirmed, models.ExternalInvoice{ID: id, Amount: amount})
		if externalTxns != nil {
			externalTxns[id] = txns
		}
	}
	return confirmed
}

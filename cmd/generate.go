package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"fulfillbill/internal/billing"
	"fulfillbill/internal/config"
	"fulfillbill/internal/logger"
	"fulfillbill/internal/platform"
	"fulfillbill/internal/reconcile"
	"fulfillbill/internal/render"
	"fulfillbill/internal/store"
	"fulfillbill/pkg/models"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a client invoice for a billing period",
	Long: `Build the invoice for one client and period: load attributed
transactions, apply markup rules, aggregate with penny-exact rounding
reconciliation, validate against the platform's own invoice records, and
render the document.

Live mode refuses to finalize past blocking discrepancies or a rounding
residual beyond tolerance. Dry-run performs every computation but writes
nothing - no document, no invoice record, not even a sequence number.`,
	Example: `  # Dry-run an invoice for August
  fulfillbill generate --client 0b5c... --from 2026-08-01 --to 2026-09-01 --dry-run

  # Generate the real thing as PDF
  fulfillbill generate --client 0b5c... --from 2026-08-01 --to 2026-09-01 --format pdf`,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().String("client", "", "Client id (UUID), required")
	generateCmd.Flags().String("from", "", "Period start (YYYY-MM-DD, inclusive)")
	generateCmd.Flags().String("to", "", "Period end (YYYY-MM-DD, exclusive)")
	generateCmd.Flags().String("format", "csv", "Document format: csv or pdf")
	generateCmd.Flags().String("out", ".", "Directory to write the document into")
	generateCmd.Flags().Bool("dry-run", false, "Compute and report without writing")
	_ = generateCmd.MarkFlagRequired("client")
}

// dryRunAllocator stands in for the store's atomic sequence step so a
// dry run burns no sequence numbers.
type dryRunAllocator struct{}

func (dryRunAllocator) AllocateInvoiceNumber(ctx context.Context, clientID uuid.UUID) (string, error) {
	return "DRY-RUN", nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("generate")

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	format, _ := cmd.Flags().GetString("format")
	outDir, _ := cmd.Flags().GetString("out")
	clientStr, _ := cmd.Flags().GetString("client")

	clientID, err := uuid.Parse(clientStr)
	if err != nil {
		return fmt.Errorf("invalid --client id: %w", err)
	}
	from, to, err := windowFlags(cmd)
	if err != nil {
		return err
	}
	renderer := render.ForFormat(format)
	if renderer == nil {
		return fmt.Errorf("unknown format %q, use csv or pdf", format)
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

	client, err := st.GetClient(ctx, clientID)
	if err != nil {
		return fmt.Errorf("loading client: %w", err)
	}
	clog := logger.WithClient(client.ID.String())
	clog.Info().
		Str("from", from.Format("2006-01-02")).
		Str("to", to.Format("2006-01-02")).
		Bool("dry_run", dryRun).
		Msg("Starting invoice generation")

	txns, err := st.ListAttributedForPeriod(ctx, clientID, from, to)
	if err != nil {
		return fmt.Errorf("loading transactions: %w", err)
	}
	rules, err := st.ListRulesForClient(ctx, clientID)
	if err != nil {
		return fmt.Errorf("loading markup rules: %w", err)
	}

	// Pre-finalization gate: check this client's slice of each platform
	// invoice against the platform's reported totals.
	_, fetcher := newFetcher(cfg)
	report, err := gateReport(ctx, st, fetcher, txns)
	if err != nil {
		return err
	}
	if report.Blocking() {
		clog.Error().
			Int("missing_locally", len(report.MissingLocally)).
			Int("phantom_local", len(report.PhantomLocal)).
			Int("unattributed", len(report.Unattributed)).
			Int("amount_mismatches", len(report.AmountMismatches)).
			Int("cross_client", len(report.CrossClient)).
			Msg("Reconciliation gate found blocking discrepancies")
		if !dryRun {
			return fmt.Errorf("refusing to finalize: %d blocking discrepancies, run validate for detail",
				len(report.MissingLocally)+len(report.PhantomLocal)+len(report.Unattributed)+
					len(report.AmountMismatches)+len(report.CrossClient))
		}
	}

	items := billing.BuildLineItems(txns, rules, clientID)

	var seq billing.SequenceAllocator = st
	if dryRun {
		seq = dryRunAllocator{}
	}
	assembly, err := billing.NewAssembler(seq).Assemble(ctx, client, from, to, items)
	if err != nil {
		return fmt.Errorf("assembling invoice: %w", err)
	}

	docBytes, ext, err := renderer.Render(assembly)
	if err != nil {
		return fmt.Errorf("rendering invoice: %w", err)
	}

	docRef := ""
	if dryRun {
		clog.Info().
			Str("subtotal", assembly.Summary.Subtotal.StringFixed(2)).
			Str("total_markup", assembly.Summary.TotalMarkup.StringFixed(2)).
			Str("total_amount", assembly.Summary.TotalAmount.StringFixed(2)).
			Int("line_items", len(assembly.LineItems)).
			Msg("Dry run: invoice computed, nothing written")
	} else {
		docRef = filepath.Join(outDir, fmt.Sprintf("%s.%s", assembly.Number, ext))
		if err := os.WriteFile(docRef, docBytes, 0644); err != nil {
			return fmt.Errorf("writing document: %w", err)
		}

		if err := st.InsertGeneratedInvoice(ctx, models.GeneratedInvoice{
			Number:      assembly.Number,
			ClientID:    client.ID,
			PeriodStart: from,
			PeriodEnd:   to,
			Subtotal:    assembly.Summary.Subtotal,
			TotalMarkup: assembly.Summary.TotalMarkup,
			TotalAmount: assembly.Summary.TotalAmount,
			LineCount:   len(assembly.LineItems),
			GeneratedAt: time.Now().UTC(),
			DocumentRef: docRef,
		}); err != nil {
			return err
		}

		ids := make([]string, len(assembly.LineItems))
		for i, item := range assembly.LineItems {
			ids[i] = item.TransactionID
		}
		marked, err := st.MarkInvoiced(ctx, ids, assembly.Number)
		if err != nil {
			return fmt.Errorf("marking transactions invoiced: %w", err)
		}
		if marked != len(ids) {
			clog.Warn().Int("expected", len(ids)).Int("marked", marked).
				Msg("Some transactions were already invoiced")
		}
	}

	log.Info().
		Bool("dry_run", dryRun).
		Str("invoice", assembly.Number).
		Str("document", docRef).
		Str("total_amount", assembly.Summary.TotalAmount.StringFixed(2)).
		Int("line_items", len(assembly.LineItems)).
		Msg("Invoice generation complete")
	return nil
}

// gateReport validates this client's transactions against the platform
// invoices they claim, pulling in every local sibling of those invoices so
// per-invoice sums are complete. Invoice ids the store has not synced yet
// are confirmed with the platform directly; an unsynced but real invoice
// must not block generation as a phantom.
func gateReport(ctx context.Context, st *store.Store, fetcher *platform.Fetcher, txns []models.Transaction) (reconcile.Report, error) {
	invoiceIDs := map[string]bool{}
	for _, txn := range txns {
		if txn.ExternalInvoiceID != nil {
			invoiceIDs[*txn.ExternalInvoiceID] = true
		}
	}
	if len(invoiceIDs) == 0 {
		return reconcile.Validate(txns, nil, nil), nil
	}

	ids := make([]string, 0, len(invoiceIDs))
	for id := range invoiceIDs {
		ids = append(ids, id)
	}
	invoices, err := st.GetExternalInvoices(ctx, ids)
	if err != nil {
		return reconcile.Report{}, fmt.Errorf("loading external invoices: %w", err)
	}
	externalTxns := make(map[string][]models.Transaction)
	invoices = confirmRemote(ctx, fetcher, txns, invoices, externalTxns)

	seen := map[string]bool{}
	local := make([]models.Transaction, 0, len(txns))
	for _, txn := range txns {
		seen[txn.ExternalID] = true
		local = append(local, txn)
	}
	for id := range invoiceIDs {
		siblings, err := st.ListByExternalInvoice(ctx, id)
		if err != nil {
			return reconcile.Report{}, fmt.Errorf("loading invoice siblings: %w", err)
		}
		for _, txn := range siblings {
			if !seen[txn.ExternalID] {
				seen[txn.ExternalID] = true
				local = append(local, txn)
			}
		}
	}

	return reconcile.Validate(local, invoices, externalTxns), nil
}

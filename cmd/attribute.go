package cmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"fulfillbill/internal/attribution"
	"fulfillbill/internal/config"
	"fulfillbill/internal/logger"
)

var attributeCmd = &cobra.Command{
	Use:   "attribute",
	Short: "Resolve owning clients for unattributed transactions",
	Long: `Walk every unattributed transaction and resolve its owning client via
the reference the platform billed it against (shipment, receiving order,
return, inventory location). Tenant-direct records are excluded from client
billing. Transactions that cannot be resolved stay unattributed and show up
in validate output; they are never guessed.

Attribution is first-wins: re-running never changes an existing owner.`,
	Example: `  # Attribute everything pending
  fulfillbill attribute

  # See what would be attributed
  fulfillbill attribute --dry-run`,
	RunE: runAttribute,
}

func init() {
	rootCmd.AddCommand(attributeCmd)

	attributeCmd.Flags().Bool("dry-run", false, "Resolve and report without writing")
	attributeCmd.Flags().Int("batch-size", 500, "Transactions per page")
}

func runAttribute(cmd *cobra.Command, args []string) error {
	log := logger.WithJob("attribute", uuid.NewString())

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	batchSize, _ := cmd.Flags().GetInt("batch-size")
	if batchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
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

	resolver := attribution.NewResolver(attribution.Sources{
		Shipments:       st,
		ReceivingOrders: st,
		Orders:          st,
		Inventory:       st,
		Siblings:        st,
	})

	log.Info().Bool("dry_run", dryRun).Int("batch_size", batchSize).Msg("Starting attribution")

	counts := map[attribution.Outcome]int{}
	failures := 0
	after := ""
	for {
		page, err := st.ListUnattributed(ctx, after, batchSize)
		if err != nil {
			return fmt.Errorf("listing unattributed transactions: %w", err)
		}
		if len(page) == 0 {
			break
		}
		after = page[len(page)-1].ExternalID

		for _, txn := range page {
			res, err := resolver.Resolve(ctx, txn)
			if err != nil {
				failures++
				log.Error().Err(err).Str("transaction_id", txn.ExternalID).Msg("Resolution failed")
				continue
			}
			counts[res.Outcome]++

			writable := res.ClientID != nil || res.Outcome == attribution.OutcomeExcluded
			if dryRun || !writable {
				continue
			}
			applied, err := st.SetAttribution(ctx, txn.ExternalID, res.ClientID,
				res.Outcome == attribution.OutcomeExcluded)
			if err != nil {
				failures++
				log.Error().Err(err).Str("transaction_id", txn.ExternalID).Msg("Writing attribution failed")
				continue
			}
			if !applied {
				// Another run attributed it first; first write wins.
				log.Debug().Str("transaction_id", txn.ExternalID).Msg("Attribution already set, leaving as is")
			}
		}

		if len(page) < batchSize {
			break
		}
	}

	log.Info().
		Bool("dry_run", dryRun).
		Int("resolved", counts[attribution.OutcomeResolved]).
		Int("inherited", counts[attribution.OutcomeInherited]).
		Int("excluded", counts[attribution.OutcomeExcluded]).
		Int("parse_miss", counts[attribution.OutcomeParseMiss]).
		Int("unresolved", counts[attribution.OutcomeUnresolved]).
		Int("failures", failures).
		Msg("Attribution complete")
	return nil
}

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"fulfillbill/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "fulfillbill",
	Short: "Fulfillment billing pipeline - sync, attribute, invoice, validate",
	Long: `fulfillbill ingests billable transactions from the fulfillment platform,
attributes them to clients, applies contractual markup rules, and produces
auditable invoices reconciled against the platform's own invoice totals.

Jobs run as batches: sync -> attribute -> generate, with validate available
both standalone and as the pre-finalization gate. Every mutating job takes
--dry-run.`,
	Version: version,
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information")
}

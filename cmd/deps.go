package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"fulfillbill/internal/config"
	"fulfillbill/internal/platform"
	"fulfillbill/internal/store"
)

// knownCategories seeds the fetcher's per-category query strategies. The
// unfiltered and per-kind strategies still cover anything not listed here.
var knownCategories = []string{
	"Fulfillment", "Shipping", "Storage", "Returns", "Receiving",
}

func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	s, err := store.Connect(ctx, cfg.DatabaseURL, cfg.StorePageSize)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return s, nil
}

func newFetcher(cfg *config.Config) (*platform.Client, *platform.Fetcher) {
	client := platform.NewClient(platform.ClientConfig{
		BaseURL:            cfg.PlatformBaseURL,
		APIKey:             cfg.PlatformAPIKey,
		MinDelay:           cfg.PlatformMinDelay,
		BackoffInitial:     cfg.BackoffInitial,
		BackoffMax:         cfg.BackoffMax,
		BackoffMaxAttempts: cfg.BackoffMaxAttempts,
	})
	return client, platform.NewFetcher(client, cfg.FetchConcurrency, knownCategories)
}

// windowFlags parses the --from/--to day flags. --to is exclusive; the
// default window is the previous full day.
func windowFlags(cmd *cobra.Command) (time.Time, time.Time, error) {
	fromStr, _ := cmd.Flags().GetString("from")
	toStr, _ := cmd.Flags().GetString("to")

	if fromStr == "" && toStr == "" {
		to := time.Now().UTC().Truncate(24 * time.Hour)
		return to.AddDate(0, 0, -1), to, nil
	}
	from, err := time.Parse("2006-01-02", fromStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --from date, use YYYY-MM-DD: %w", err)
	}
	to, err := time.Parse("2006-01-02", toStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --to date, use YYYY-MM-DD: %w", err)
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("--to must be after --from")
	}
	return from, to, nil
}

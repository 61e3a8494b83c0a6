package platform

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"fulfillbill/internal/logger"
	"fulfillbill/pkg/models"
)

// defaultPageSize keeps each page well under the platform's per-query cap.
const defaultPageSize = 250

// maxPagesPerStrategy stops a sub-query that keeps handing back cursors
// without ever terminating.
const maxPagesPerStrategy = 200

// FetchReport summarizes one fetch run for the end-of-job summary.
type FetchReport struct {
	Strategies       int
	FailedStrategies []string
	Pages            int
	Distinct         int
	Malformed        int
}

// Fetcher enumerates the platform's transactions for a window by running
// overlapping filtered queries and merging on external transaction id.
// Membership in any one strategy's result set is sufficient for inclusion.
type Fetcher struct {
	api         API
	concurrency int

	// categories seeds the per-category strategies. The set does not need
	// to be exhaustive: the unfiltered and per-kind strategies still cover
	// transactions in categories we have never seen.
	categories []string
}

// NewFetcher creates a fetcher over the given API with a bounded number of
// concurrent sub-queries.
func NewFetcher(api API, concurrency int, categories []string) *Fetcher {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Fetcher{api: api, concurrency: concurrency, categories: categories}
}

// strategies builds the overlapping query set for a window: the unfiltered
// base query, one per reference kind, one per invoiced status, the
// status x kind cross product, and one per known category.
func (f *Fetcher) strategies(from, to time.Time) []Query {
	base := Query{From: from, To: to, PageSize: defaultPageSize}

	kinds := []models.ReferenceKind{
		models.RefShipment,
		models.RefReceivingOrder,
		models.RefReturn,
		models.RefInventoryLocation,
		models.RefTenantDirect,
		models.RefOther,
	}
	statuses := []InvoiceStatus{StatusPending, StatusInvoiced}

	out := []Query{base}
	for _, k := range kinds {
		q := base
		q.ReferenceKind = k
		out = append(out, q)
	}
	for _, s := range statuses {
		q := base
		q.Status = s
		out = append(out, q)
		for _, k := range kinds {
			qq := q
			qq.ReferenceKind = k
			out = append(out, qq)
		}
	}
	for _, c := range f.categories {
		q := base
		q.Category = c
		out = append(out, q)
	}
	return out
}

// FetchWindow returns the complete deduplicated transaction set for the
// window. Individual strategy failures degrade to a partial result and are
// listed in the report; the fetch only errors when every strategy failed.
func (f *Fetcher) FetchWindow(ctx context.Context, from, to time.Time) ([]models.Transaction, FetchReport, error) {
	log := logger.WithComponent("fetcher")

	queries := f.strategies(from, to)
	report := FetchReport{Strategies: len(queries)}

	var mu sync.Mutex
	seen := make(map[string]models.Transaction)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)

	for _, q := range queries {
		q := q
		g.Go(func() error {
			pages, malformed, err := f.runStrategy(gctx, q, seen, &mu)
			mu.Lock()
			report.Pages += pages
			report.Malformed += malformed
			if err != nil {
				report.FailedStrategies = append(report.FailedStrategies, q.label())
			}
			mu.Unlock()
			if err != nil {
				// Partial result: the other strategies keep going.
				log.Warn().Err(err).Str("strategy", q.label()).Msg("Fetch strategy failed, skipping")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, report, err
	}

	if len(report.FailedStrategies) == len(queries) {
		return nil, report, ErrNoStrategies
	}

	out := make([]models.Transaction, 0, len(seen))
	for _, txn := range seen {
		out = append(out, txn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	report.Distinct = len(out)

	log.Info().
		Int("strategies", report.Strategies).
		Int("failed_strategies", len(report.FailedStrategies)).
		Int("pages", report.Pages).
		Int("distinct", report.Distinct).
		Int("malformed", report.Malformed).
		Msg("Fetch window complete")

	return out, report, nil
}

// runStrategy pages one sub-query to exhaustion. It stops when the platform
// returns no cursor, or when a page contributes zero records this sub-query
// has not already returned (a looping cursor). Freshness is judged against
// the sub-query's own history, not the global merge: another strategy
// having covered a page first must not truncate this one.
func (f *Fetcher) runStrategy(ctx context.Context, q Query, seen map[string]models.Transaction, mu *sync.Mutex) (pages, malformed int, err error) {
	local := make(map[string]bool)
	for page := 0; page < maxPagesPerStrategy; page++ {
		p, err := f.api.QueryTransactions(ctx, q)
		if err != nil {
			return pages, malformed, err
		}
		pages++
		malformed += p.Malformed

		fresh := 0
		for _, txn := range p.Transactions {
			if !local[txn.ExternalID] {
				local[txn.ExternalID] = true
				fresh++
			}
		}

		mu.Lock()
		for _, txn := range p.Transactions {
			if _, ok := seen[txn.ExternalID]; !ok {
				seen[txn.ExternalID] = txn
			}
		}
		mu.Unlock()

		if p.NextCursor == "" {
			return pages, malformed, nil
		}
		if fresh == 0 && len(p.Transactions) > 0 {
			return pages, malformed, nil
		}
		q.Cursor = p.NextCursor
	}
	return pages, malformed, ErrPaginationLoop
}

// FetchInvoice returns the deduplicated transactions the platform billed on
// one invoice.
func (f *Fetcher) FetchInvoice(ctx context.Context, invoiceID string) ([]models.Transaction, FetchReport, error) {
	report := FetchReport{Strategies: 1}
	seen := make(map[string]models.Transaction)

	cursor := ""
	for page := 0; page < maxPagesPerStrategy; page++ {
		p, err := f.api.InvoiceTransactions(ctx, invoiceID, cursor)
		if err != nil {
			return nil, report, err
		}
		report.Pages++
		report.Malformed += p.Malformed

		fresh := 0
		for _, txn := range p.Transactions {
			if _, ok := seen[txn.ExternalID]; !ok {
				seen[txn.ExternalID] = txn
				fresh++
			}
		}
		if p.NextCursor == "" {
			break
		}
		if fresh == 0 && len(p.Transactions) > 0 {
			break
		}
		cursor = p.NextCursor
	}

	out := make([]models.Transaction, 0, len(seen))
	for _, txn := range seen {
		out = append(out, txn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	report.Distinct = len(out)
	return out, report, nil
}

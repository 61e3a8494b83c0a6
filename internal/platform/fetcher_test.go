package platform

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fulfillbill/pkg/models"
)

// fakeAPI serves an in-memory transaction set and enforces the platform's
// per-query result cap: no single filter combination ever returns more than
// cap records, regardless of pagination.
type fakeAPI struct {
	txns     []models.Transaction
	cap      int
	pageSize int

	// failStrategies lists query labels that return an error.
	failStrategies map[string]bool

	// loopStrategies lists query labels that return the same page forever.
	loopStrategies map[string]bool

	calls atomic.Int64
}

func (f *fakeAPI) QueryTransactions(ctx context.Context, q Query) (Page, error) {
	f.calls.Add(1)
	label := q.label()
	if f.failStrategies[label] {
		return Page{}, &APIError{Op: "QueryTransactions", StatusCode: 500, Body: "boom"}
	}

	var matched []models.Transaction
	for _, txn := range f.txns {
		if q.Category != "" && txn.Category != q.Category {
			continue
		}
		if q.ReferenceKind != "" && txn.ReferenceKind != q.ReferenceKind {
			continue
		}
		if q.Status == StatusInvoiced && txn.ExternalInvoiceID == nil {
			continue
		}
		if q.Status == StatusPending && txn.ExternalInvoiceID != nil {
			continue
		}
		matched = append(matched, txn)
	}
	if len(matched) > f.cap {
		matched = matched[:f.cap]
	}

	offset := 0
	if q.Cursor != "" {
		offset, _ = strconv.Atoi(q.Cursor)
	}
	if f.loopStrategies[label] {
		offset = 0 // broken cursor: always page one, always a next cursor
	}
	if offset >= len(matched) {
		return Page{}, nil
	}
	end := offset + f.pageSize
	if end > len(matched) {
		end = len(matched)
	}
	page := Page{Transactions: matched[offset:end]}
	if end < len(matched) || f.loopStrategies[label] {
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}

func (f *fakeAPI) ListInvoices(ctx context.Context, from, to time.Time) ([]models.ExternalInvoice, error) {
	return nil, nil
}

func (f *fakeAPI) InvoiceTransactions(ctx context.Context, invoiceID, cursor string) (Page, error) {
	q := Query{Cursor: cursor}
	var matched []models.Transaction
	for _, txn := range f.txns {
		if txn.ExternalInvoiceID != nil && *txn.ExternalInvoiceID == invoiceID {
			matched = append(matched, txn)
		}
	}
	offset := 0
	if q.Cursor != "" {
		offset, _ = strconv.Atoi(q.Cursor)
	}
	if offset >= len(matched) {
		return Page{}, nil
	}
	end := offset + f.pageSize
	if end > len(matched) {
		end = len(matched)
	}
	page := Page{Transactions: matched[offset:end]}
	if end < len(matched) {
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}

func makeTxns(n int, categories []string) []models.Transaction {
	txns := make([]models.Transaction, n)
	for i := range txns {
		txns[i] = models.Transaction{
			ExternalID:    fmt.Sprintf("TXN-%06d", i),
			ReferenceKind: models.RefShipment,
			Category:      categories[i%len(categories)],
			Amount:        decimal.NewFromInt(1),
			ChargedAt:     time.Now(),
		}
	}
	return txns
}

func window() (time.Time, time.Time) {
	to := time.Now()
	return to.AddDate(0, 0, -1), to
}

func TestFetchWindowBeatsPerQueryCap(t *testing.T) {
	// 900 records, capped at 400 per filter combination. No single query
	// can enumerate them, but the three per-category strategies together
	// cover everything exactly once.
	categories := []string{"Fulfillment", "Shipping", "Storage"}
	api := &fakeAPI{txns: makeTxns(900, categories), cap: 400, pageSize: 100}
	f := NewFetcher(api, 3, categories)

	from, to := window()
	txns, report, err := f.FetchWindow(context.Background(), from, to)
	require.NoError(t, err)

	assert.Len(t, txns, 900, "must yield the true distinct count, not the capped or double-counted one")
	assert.Equal(t, 900, report.Distinct)
	assert.Empty(t, report.FailedStrategies)

	seen := map[string]bool{}
	for _, txn := range txns {
		assert.False(t, seen[txn.ExternalID], "duplicate %s", txn.ExternalID)
		seen[txn.ExternalID] = true
	}
}

func TestFetchWindowPartialFailure(t *testing.T) {
	categories := []string{"Fulfillment", "Shipping"}
	api := &fakeAPI{
		txns:           makeTxns(200, categories),
		cap:            1000,
		pageSize:       50,
		failStrategies: map[string]bool{"category=Shipping": true},
	}
	f := NewFetcher(api, 2, categories)

	from, to := window()
	txns, report, err := f.FetchWindow(context.Background(), from, to)
	require.NoError(t, err, "one failed strategy degrades to a partial result, not an error")
	assert.Len(t, txns, 200, "other strategies still cover the records")
	assert.Equal(t, []string{"category=Shipping"}, report.FailedStrategies)
}

func TestFetchWindowStopsOnPaginationLoop(t *testing.T) {
	categories := []string{"Fulfillment"}
	api := &fakeAPI{
		txns:           makeTxns(80, categories),
		cap:            1000,
		pageSize:       40,
		loopStrategies: map[string]bool{"category=Fulfillment": true},
	}
	f := NewFetcher(api, 1, categories)

	from, to := window()
	txns, _, err := f.FetchWindow(context.Background(), from, to)
	require.NoError(t, err)
	assert.Len(t, txns, 80, "looping cursor must not duplicate or hang")
	assert.Less(t, api.calls.Load(), int64(100), "loop detection must bound the page count")
}

func TestFetchInvoice(t *testing.T) {
	invID := "INV-1"
	txns := makeTxns(120, []string{"Fulfillment"})
	for i := range txns {
		if i < 75 {
			txns[i].ExternalInvoiceID = &invID
		}
	}
	api := &fakeAPI{txns: txns, cap: 1000, pageSize: 50}
	f := NewFetcher(api, 1, nil)

	got, report, err := f.FetchInvoice(context.Background(), invID)
	require.NoError(t, err)
	assert.Len(t, got, 75)
	assert.Equal(t, 75, report.Distinct)
}

func TestFetchWindowAllStrategiesFailed(t *testing.T) {
	api := &fakeAPI{txns: nil, cap: 10, pageSize: 10}
	api.failStrategies = map[string]bool{}
	f := NewFetcher(api, 1, nil)
	from, to := window()
	for _, q := range f.strategies(from, to) {
		api.failStrategies[q.label()] = true
	}

	_, _, err := f.FetchWindow(context.Background(), from, to)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoStrategies)
}

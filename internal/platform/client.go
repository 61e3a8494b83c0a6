// Package platform talks to the fulfillment platform's billing API. The API
// caps the result set of any single filtered query, so completeness comes
// from the Fetcher running several overlapping queries and deduplicating,
// not from any one call.
package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"fulfillbill/internal/logger"
	"fulfillbill/pkg/models"
)

// API is the platform surface the rest of the pipeline consumes.
type API interface {
	// QueryTransactions returns one page of transactions matching the query.
	QueryTransactions(ctx context.Context, q Query) (Page, error)

	// ListInvoices returns the platform's own invoices in the window.
	ListInvoices(ctx context.Context, from, to time.Time) ([]models.ExternalInvoice, error)

	// InvoiceTransactions returns one page of the transactions the platform
	// billed on the given invoice.
	InvoiceTransactions(ctx context.Context, invoiceID, cursor string) (Page, error)
}

// ClientConfig configures pacing toward the platform. One backoff policy is
// shared by every call.
type ClientConfig struct {
	BaseURL  string
	APIKey   string
	MinDelay time.Duration // minimum delay between consecutive calls

	BackoffInitial     time.Duration
	BackoffMax         time.Duration
	BackoffMaxAttempts int

	HTTPClient *http.Client
}

// Client implements API over HTTP.
type Client struct {
	cfg     ClientConfig
	http    *http.Client
	limiter *rate.Limiter
}

var _ API = (*Client)(nil)

// NewClient creates a platform API client.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	minDelay := cfg.MinDelay
	if minDelay <= 0 {
		minDelay = 250 * time.Millisecond
	}
	return &Client{
		cfg:     cfg,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Every(minDelay), 1),
	}
}

type txnPageResponse struct {
	Transactions []txnRecord `json:"transactions"`
	NextCursor   string      `json:"next_cursor"`
}

type invoicePageResponse struct {
	Invoices   []invoiceRecord `json:"invoices"`
	NextCursor string          `json:"next_cursor"`
}

// QueryTransactions returns one page of transactions matching the query.
// Records that fail boundary validation are logged and dropped, counted on
// the returned page.
func (c *Client) QueryTransactions(ctx context.Context, q Query) (Page, error) {
	params := url.Values{}
	params.Set("from", q.From.UTC().Format(time.RFC3339))
	params.Set("to", q.To.UTC().Format(time.RFC3339))
	if q.Category != "" {
		params.Set("fee_category", q.Category)
	}
	if q.ReferenceKind != "" {
		params.Set("reference_type", string(q.ReferenceKind))
	}
	if q.Status != StatusAny {
		params.Set("status", string(q.Status))
	}
	if q.Cursor != "" {
		params.Set("cursor", q.Cursor)
	}
	if q.PageSize > 0 {
		params.Set("page_size", fmt.Sprintf("%d", q.PageSize))
	}

	var resp txnPageResponse
	if err := c.do(ctx, "QueryTransactions", "/v1/transactions", params, &resp); err != nil {
		return Page{}, err
	}
	return c.decodePage(resp)
}

// InvoiceTransactions returns one page of the transactions billed on the
// given platform invoice.
func (c *Client) InvoiceTransactions(ctx context.Context, invoiceID, cursor string) (Page, error) {
	params := url.Values{}
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	var resp txnPageResponse
	path := "/v1/invoices/" + url.PathEscape(invoiceID) + "/transactions"
	if err := c.do(ctx, "InvoiceTransactions", path, params, &resp); err != nil {
		return Page{}, err
	}
	return c.decodePage(resp)
}

// ListInvoices pages through the platform's invoice listing for the window.
func (c *Client) ListInvoices(ctx context.Context, from, to time.Time) ([]models.ExternalInvoice, error) {
	const op = "ListInvoices"
	log := logger.WithComponent("platform")

	params := url.Values{}
	params.Set("from", from.UTC().Format(time.RFC3339))
	params.Set("to", to.UTC().Format(time.RFC3339))

	var out []models.ExternalInvoice
	cursor := ""
	for {
		if cursor != "" {
			params.Set("cursor", cursor)
		}
		var resp invoicePageResponse
		if err := c.do(ctx, op, "/v1/invoices", params, &resp); err != nil {
			return nil, err
		}
		for _, rec := range resp.Invoices {
			inv, err := rec.toModel()
			if err != nil {
				log.Warn().Err(err).Str("invoice_id", rec.ID).Msg("Dropping malformed invoice record")
				continue
			}
			out = append(out, inv)
		}
		if resp.NextCursor == "" {
			return out, nil
		}
		cursor = resp.NextCursor
	}
}

func (c *Client) decodePage(resp txnPageResponse) (Page, error) {
	log := logger.WithComponent("platform")
	page := Page{NextCursor: resp.NextCursor}
	for _, rec := range resp.Transactions {
		txn, err := rec.toModel()
		if err != nil {
			log.Warn().Err(err).Str("transaction_id", rec.ID).Msg("Dropping malformed transaction record")
			page.Malformed++
			continue
		}
		page.Transactions = append(page.Transactions, txn)
	}
	return page, nil
}

// do executes one GET under the rate limiter and the shared backoff policy.
// Throttling and server errors retry up to the attempt ceiling; other
// client errors fail immediately.
func (c *Client) do(ctx context.Context, op, path string, params url.Values, out interface{}) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.BackoffInitial
	policy.MaxInterval = c.cfg.BackoffMax
	policy.MaxElapsedTime = 0 // bounded by attempt count, not wall clock

	attempts := uint64(c.cfg.BackoffMaxAttempts)
	if attempts == 0 {
		attempts = 6
	}

	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path+"?"+params.Encode(), nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return err // network errors are transient
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			apiErr := &APIError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
			if apiErr.Retryable() {
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("%s: decoding response: %w", op, err))
		}
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, attempts), ctx))

	// Throttling that survives every retry gets its own sentinel so callers
	// can tell "slow down and come back later" from a hard failure.
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.IsThrottle() {
		return fmt.Errorf("%s: %w: %w", op, ErrRateLimited, err)
	}
	return err
}

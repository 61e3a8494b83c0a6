package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"fulfillbill/pkg/models"
)

// UpsertExternalInvoices stores the platform's own invoice records, keyed
// on the platform's invoice id. They are an oracle: amounts are always
// overwritten with whatever the platform reports.
func (s *Store) UpsertExternalInvoices(ctx context.Context, invoices []models.ExternalInvoice) error {
	const op = "UpsertExternalInvoices"

	batch := &pgx.Batch{}
	for _, inv := range invoices {
		batch.Queue(`
			INSERT INTO external_invoices (external_id, invoice_type, invoice_date, amount)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (external_id) DO UPDATE SET
				invoice_type = EXCLUDED.invoice_type,
				invoice_date = EXCLUDED.invoice_date,
				amount = EXCLUDED.amount`,
			inv.ID, inv.Type, inv.Date, inv.Amount,
		)
	}
	results := s.Pool.SendBatch(ctx, batch)
	defer results.Close()
	for range invoices {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}

// ListExternalInvoices returns the platform invoices dated in the window.
func (s *Store) ListExternalInvoices(ctx context.Context, from, to time.Time) ([]models.ExternalInvoice, error) {
	const op = "ListExternalInvoices"
	rows, err := s.Pool.Query(ctx, `
		SELECT external_id, invoice_type, invoice_date, amount
		FROM external_invoices
		WHERE invoice_date >= $1 AND invoice_date < $2
		ORDER BY external_id`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []models.ExternalInvoice
	for rows.Next() {
		var inv models.ExternalInvoice
		if err := rows.Scan(&inv.ID, &inv.Type, &inv.Date, &inv.Amount); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// GetExternalInvoices returns the platform invoices with the given ids.
// Unknown ids are simply absent from the result.
func (s *Store) GetExternalInvoices(ctx context.Context, ids []string) ([]models.ExternalInvoice, error) {
	const op = "GetExternalInvoices"
	rows, err := s.Pool.Query(ctx, `
		SELECT external_id, invoice_type, invoice_date, amount
		FROM external_invoices
		WHERE external_id = ANY($1)
		ORDER BY external_id`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []models.ExternalInvoice
	for rows.Next() {
		var inv models.ExternalInvoice
		if err := rows.Scan(&inv.ID, &inv.Type, &inv.Date, &inv.Amount); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// InsertGeneratedInvoice records a finalized invoice. The invoice number
// carries a unique constraint; a violation means two generation runs raced
// and this attempt must abort.
func (s *Store) InsertGeneratedInvoice(ctx context.Context, inv models.GeneratedInvoice) error {
	const op = "InsertGeneratedInvoice"
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO generated_invoices (number, client_id, period_start, period_end,
			subtotal, total_markup, total_amount, line_count, generated_at, document_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		inv.Number, inv.ClientID, inv.PeriodStart, inv.PeriodEnd,
		inv.Subtotal, inv.TotalMarkup, inv.TotalAmount, inv.LineCount,
		inv.GeneratedAt, inv.DocumentRef,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%s: number %s: %w", op, inv.Number, ErrInvoiceNumberCollision)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

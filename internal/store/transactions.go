package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"fulfillbill/pkg/models"
)

const txnColumns = `external_id, reference_id, reference_kind, fee_type, category,
	service_tier, weight, amount, surcharge, currency, charged_at,
	external_invoice_id, comment, client_id, excluded, invoice_ref`

// UpsertTransactions writes a batch of fetched transactions. The upsert is
// keyed on external_id, which is what makes re-fetching idempotent.
// Attribution and invoice linkage survive a re-sync: client_id, excluded and
// invoice_ref are never overwritten once set.
func (s *Store) UpsertTransactions(ctx context.Context, txns []models.Transaction) (inserted, updated int, err error) {
	const op = "UpsertTransactions"

	batch := &pgx.Batch{}
	for _, t := range txns {
		batch.Queue(`
			INSERT INTO transactions (external_id, reference_id, reference_kind, fee_type,
				category, service_tier, weight, amount, surcharge, currency, charged_at,
				external_invoice_id, comment)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (external_id) DO UPDATE SET
				reference_id = EXCLUDED.reference_id,
				reference_kind = EXCLUDED.reference_kind,
				fee_type = EXCLUDED.fee_type,
				category = EXCLUDED.category,
				service_tier = EXCLUDED.service_tier,
				weight = EXCLUDED.weight,
				amount = EXCLUDED.amount,
				surcharge = EXCLUDED.surcharge,
				currency = EXCLUDED.currency,
				charged_at = EXCLUDED.charged_at,
				external_invoice_id = COALESCE(transactions.external_invoice_id, EXCLUDED.external_invoice_id),
				comment = EXCLUDED.comment
			RETURNING (xmax = 0) AS inserted`,
			t.ExternalID, t.ReferenceID, t.ReferenceKind, t.FeeType, t.Category,
			t.ServiceTier, t.Weight, t.Amount, t.Surcharge, t.Currency, t.ChargedAt,
			t.ExternalInvoiceID, t.Comment,
		)
	}

	results := s.Pool.SendBatch(ctx, batch)
	defer results.Close()

	for range txns {
		var wasInsert bool
		if err := results.QueryRow().Scan(&wasInsert); err != nil {
			return inserted, updated, fmt.Errorf("%s: %w", op, err)
		}
		if wasInsert {
			inserted++
		} else {
			updated++
		}
	}
	return inserted, updated, nil
}

// ListUnattributed pages through transactions with no client and no
// exclusion flag, keyset-paginated on external_id.
func (s *Store) ListUnattributed(ctx context.Context, afterExternalID string, limit int) ([]models.Transaction, error) {
	const op = "ListUnattributed"
	if limit <= 0 || limit > s.pageSize {
		limit = s.pageSize
	}

	rows, err := s.Pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM transactions
		WHERE client_id IS NULL AND NOT excluded AND external_id > $1
		ORDER BY external_id
		LIMIT $2`, txnColumns),
		afterExternalID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return scanTransactions(rows)
}

// ListAttributedForPeriod returns every attributed, not-yet-invoiced
// transaction for one client in the window, paginating internally.
func (s *Store) ListAttributedForPeriod(ctx context.Context, clientID uuid.UUID, from, to time.Time) ([]models.Transaction, error) {
	const op = "ListAttributedForPeriod"

	var out []models.Transaction
	after := ""
	for {
		rows, err := s.Pool.Query(ctx, fmt.Sprintf(`
			SELECT %s FROM transactions
			WHERE client_id = $1 AND invoice_ref IS NULL
			  AND charged_at >= $2 AND charged_at < $3
			  AND external_id > $4
			ORDER BY external_id
			LIMIT $5`, txnColumns),
			clientID, from, to, after, s.pageSize,
		)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		page, err := scanTransactions(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, page...)
		if len(page) < s.pageSize {
			return out, nil
		}
		after = page[len(page)-1].ExternalID
	}
}

// ListForPeriod returns every local transaction charged in the window,
// paginating internally.
func (s *Store) ListForPeriod(ctx context.Context, from, to time.Time) ([]models.Transaction, error) {
	const op = "ListForPeriod"

	var out []models.Transaction
	after := ""
	for {
		rows, err := s.Pool.Query(ctx, fmt.Sprintf(`
			SELECT %s FROM transactions
			WHERE charged_at >= $1 AND charged_at < $2 AND external_id > $3
			ORDER BY external_id
			LIMIT $4`, txnColumns),
			from, to, after, s.pageSize,
		)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		page, err := scanTransactions(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, page...)
		if len(page) < s.pageSize {
			return out, nil
		}
		after = page[len(page)-1].ExternalID
	}
}

// ListByExternalInvoice returns the local transactions linked to one
// platform invoice.
func (s *Store) ListByExternalInvoice(ctx context.Context, externalInvoiceID string) ([]models.Transaction, error) {
	const op = "ListByExternalInvoice"
	rows, err := s.Pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM transactions
		WHERE external_invoice_id = $1
		ORDER BY external_id`, txnColumns),
		externalInvoiceID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return scanTransactions(rows)
}

// SetAttribution records a resolved owner. The WHERE clause makes the write
// first-wins: an existing attribution is never silently changed.
func (s *Store) SetAttribution(ctx context.Context, externalID string, clientID *uuid.UUID, excluded bool) (bool, error) {
	const op = "SetAttribution"
	tag, err := s.Pool.Exec(ctx, `
		UPDATE transactions
		SET client_id = $2, excluded = $3
		WHERE external_id = $1 AND client_id IS NULL AND NOT excluded`,
		externalID, clientID, excluded,
	)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkInvoiced stamps transactions with our invoice number. The transition
// is one-way: already-invoiced rows are left alone and reported back.
func (s *Store) MarkInvoiced(ctx context.Context, externalIDs []string, invoiceRef string) (int, error) {
	const op = "MarkInvoiced"
	tag, err := s.Pool.Exec(ctx, `
		UPDATE transactions
		SET invoice_ref = $2
		WHERE external_id = ANY($1) AND invoice_ref IS NULL`,
		externalIDs, invoiceRef,
	)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(tag.RowsAffected()), nil
}

// AttributedSibling finds the client attributed to any other transaction on
// the same platform invoice. Same invoice implies same tenant.
func (s *Store) AttributedSibling(ctx context.Context, externalInvoiceID string) (*uuid.UUID, error) {
	const op = "AttributedSibling"
	var clientID uuid.UUID
	err := s.Pool.QueryRow(ctx, `
		SELECT client_id FROM transactions
		WHERE external_invoice_id = $1 AND client_id IS NOT NULL
		LIMIT 1`,
		externalInvoiceID,
	).Scan(&clientID)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &clientID, nil
}

func scanTransactions(rows pgx.Rows) ([]models.Transaction, error) {
	defer rows.Close()
	var out []models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(
			&t.ExternalID, &t.ReferenceID, &t.ReferenceKind, &t.FeeType, &t.Category,
			&t.ServiceTier, &t.Weight, &t.Amount, &t.Surcharge, &t.Currency, &t.ChargedAt,
			&t.ExternalInvoiceID, &t.Comment, &t.ClientID, &t.Excluded, &t.InvoiceRef,
		); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

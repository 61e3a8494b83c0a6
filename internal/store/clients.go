package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"fulfillbill/pkg/models"
)

// GetClient fetches one client by id.
func (s *Store) GetClient(ctx context.Context, id uuid.UUID) (models.Client, error) {
	const op = "GetClient"
	var c models.Client
	err := s.Pool.QueryRow(ctx, `
		SELECT id, name, short_code, next_sequence, active, created_at
		FROM clients WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.Name, &c.ShortCode, &c.NextSequence, &c.Active, &c.CreatedAt)
	if err == pgx.ErrNoRows {
		return models.Client{}, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return models.Client{}, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}

// ListActiveClients returns every active client, paginating internally.
func (s *Store) ListActiveClients(ctx context.Context) ([]models.Client, error) {
	const op = "ListActiveClients"

	var out []models.Client
	after := uuid.Nil
	for {
		rows, err := s.Pool.Query(ctx, `
			SELECT id, name, short_code, next_sequence, active, created_at
			FROM clients
			WHERE active AND id > $1
			ORDER BY id
			LIMIT $2`,
			after, s.pageSize,
		)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		n := 0
		for rows.Next() {
			var c models.Client
			if err := rows.Scan(&c.ID, &c.Name, &c.ShortCode, &c.NextSequence, &c.Active, &c.CreatedAt); err != nil {
				rows.Close()
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			out = append(out, c)
			after = c.ID
			n++
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if n < s.pageSize {
			return out, nil
		}
	}
}

// AllocateInvoiceNumber advances the client's sequence and formats the
// invoice number in one statement, giving single-writer semantics per
// client under concurrent generation runs. The number carries the value
// next_sequence held before the advance, so a client seeded at 1 issues
// <shortcode>-00001 first.
func (s *Store) AllocateInvoiceNumber(ctx context.Context, clientID uuid.UUID) (string, error) {
	const op = "AllocateInvoiceNumber"
	var shortCode string
	var seq int64
	err := s.Pool.QueryRow(ctx, `
		UPDATE clients c
		SET next_sequence = c.next_sequence + 1
		FROM (SELECT id, next_sequence FROM clients WHERE id = $1 FOR UPDATE) cur
		WHERE c.id = cur.id
		RETURNING c.short_code, cur.next_sequence`,
		clientID,
	).Scan(&shortCode, &seq)
	if err == pgx.ErrNoRows {
		return "", fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Sprintf("%s-%05d", shortCode, seq), nil
}

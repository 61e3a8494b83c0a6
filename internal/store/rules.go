package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"fulfillbill/pkg/models"
)

// ListRulesForClient returns the active rules visible to one client: the
// client's own rules plus global rules. The matcher does specificity
// selection; the store just hands back candidates.
func (s *Store) ListRulesForClient(ctx context.Context, clientID uuid.UUID) ([]models.MarkupRule, error) {
	const op = "ListRulesForClient"

	rows, err := s.Pool.Query(ctx, `
		SELECT id, client_id, category, fee_type, service_tier,
			weight_min, weight_max, kind, value, active, valid_from, valid_until, created_at
		FROM markup_rules
		WHERE active AND (client_id = $1 OR client_id IS NULL)
		ORDER BY created_at`,
		clientID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []models.MarkupRule
	for rows.Next() {
		var r models.MarkupRule
		if err := rows.Scan(
			&r.ID, &r.ClientID, &r.Category, &r.FeeType, &r.ServiceTier,
			&r.WeightMin, &r.WeightMax, &r.Kind, &r.Value, &r.Active,
			&r.ValidFrom, &r.ValidUntil, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

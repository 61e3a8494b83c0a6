// Package markup selects and applies contractual markup rules. Matching is
// pure: given the same rule set and context it returns the same rule no
// matter how storage happened to order the rows.
package markup

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fulfillbill/pkg/models"
)

var oneHundred = decimal.NewFromInt(100)

// Context is the matching context of one transaction.
type Context struct {
	ClientID    uuid.UUID
	Category    string
	FeeType     string
	ServiceTier string
	Weight      *decimal.Decimal
}

// Specificity counts the non-wildcard conditions set on a rule. The
// candidate with the highest count wins.
func Specificity(r models.MarkupRule) int {
	n := 0
	if r.ClientID != nil {
		n++
	}
	if r.Category != nil {
		n++
	}
	if r.FeeType != nil {
		n++
	}
	if r.ServiceTier != nil {
		n++
	}
	if r.WeightMin != nil || r.WeightMax != nil {
		n++
	}
	return n
}

// Matches reports whether every non-nil condition on the rule matches the
// context. Nil fields are wildcards.
func Matches(r models.MarkupRule, ctx Context, at time.Time) bool {
	if !r.Active {
		return false
	}
	if r.ValidFrom != nil && at.Before(*r.ValidFrom) {
		return false
	}
	if r.ValidUntil != nil && !at.Before(*r.ValidUntil) {
		return false
	}
	if r.ClientID != nil && *r.ClientID != ctx.ClientID {
		return false
	}
	if r.Category != nil && !strings.EqualFold(*r.Category, ctx.Category) {
		return false
	}
	if r.FeeType != nil && !strings.EqualFold(*r.FeeType, ctx.FeeType) {
		return false
	}
	if r.ServiceTier != nil && !strings.EqualFold(*r.ServiceTier, ctx.ServiceTier) {
		return false
	}
	if r.WeightMin != nil || r.WeightMax != nil {
		if ctx.Weight == nil {
			return false
		}
		if r.WeightMin != nil && ctx.Weight.LessThan(*r.WeightMin) {
			return false
		}
		if r.WeightMax != nil && ctx.Weight.GreaterThan(*r.WeightMax) {
			return false
		}
	}
	return true
}

// Match picks the single most specific matching rule, or nil when none
// match (a valid outcome: markup is zero). Ties resolve to the most
// recently created rule, then the lexically larger id, so the result is
// deterministic for any storage order.
func Match(rules []models.MarkupRule, ctx Context, at time.Time) *models.MarkupRule {
	var candidates []models.MarkupRule
	for _, r := range rules {
		if Matches(r, ctx, at) {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		si, sj := Specificity(candidates[i]), Specificity(candidates[j])
		if si != sj {
			return si > sj
		}
		if !candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
		}
		return candidates[i].ID.String() > candidates[j].ID.String()
	})
	best := candidates[0]
	return &best
}

// Apply computes the markup for a base amount under a rule. A nil rule
// yields zero markup. The returned percent is the derived display rate.
func Apply(rule *models.MarkupRule, base decimal.Decimal) (amount, percent decimal.Decimal) {
	if rule == nil {
		return decimal.Zero, decimal.Zero
	}
	switch rule.Kind {
	case models.MarkupFixed:
		return rule.Value.Round(2), decimal.Zero
	default: // percentage
		return base.Mul(rule.Value).Div(oneHundred).Round(2), rule.Value
	}
}

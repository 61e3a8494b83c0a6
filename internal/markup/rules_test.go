package markup

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fulfillbill/pkg/models"
)

func strPtr(s string) *string { return &s }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func pctRule(id byte, created time.Time, value string, conds func(*models.MarkupRule)) models.MarkupRule {
	r := models.MarkupRule{
		ID:        uuid.UUID{id},
		Kind:      models.MarkupPercentage,
		Value:     decimal.RequireFromString(value),
		Active:    true,
		CreatedAt: created,
	}
	if conds != nil {
		conds(&r)
	}
	return r
}

func TestSpecificity(t *testing.T) {
	clientID := uuid.New()
	now := time.Now()

	tests := []struct {
		name string
		rule models.MarkupRule
		want int
	}{
		{"all wildcards", pctRule(1, now, "10", nil), 0},
		{"client only", pctRule(1, now, "10", func(r *models.MarkupRule) {
			r.ClientID = &clientID
		}), 1},
		{"client and fee type", pctRule(1, now, "10", func(r *models.MarkupRule) {
			r.ClientID = &clientID
			r.FeeType = strPtr("Pick")
		}), 2},
		{"weight range counts once", pctRule(1, now, "10", func(r *models.MarkupRule) {
			r.WeightMin = decPtr("0")
			r.WeightMax = decPtr("5")
		}), 1},
		{"everything", pctRule(1, now, "10", func(r *models.MarkupRule) {
			r.ClientID = &clientID
			r.Category = strPtr("Fulfillment")
			r.FeeType = strPtr("Pick")
			r.ServiceTier = strPtr("Standard")
			r.WeightMax = decPtr("5")
		}), 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Specificity(tt.rule))
		})
	}
}

func TestMatchPicksMostSpecificForAnyOrder(t *testing.T) {
	clientID := uuid.New()
	now := time.Now()
	ctx := Context{ClientID: clientID, Category: "Fulfillment", FeeType: "Pick"}

	broad := pctRule(1, now, "10", func(r *models.MarkupRule) {
		r.Category = strPtr("Fulfillment")
	})
	specific := pctRule(2, now, "15", func(r *models.MarkupRule) {
		r.ClientID = &clientID
		r.Category = strPtr("Fulfillment")
		r.FeeType = strPtr("Pick")
	})
	unrelated := pctRule(3, now, "99", func(r *models.MarkupRule) {
		r.FeeType = strPtr("Shipping Label")
	})

	orders := [][]models.MarkupRule{
		{broad, specific, unrelated},
		{specific, broad, unrelated},
		{unrelated, broad, specific},
		{unrelated, specific, broad},
		{broad, unrelated, specific},
		{specific, unrelated, broad},
	}
	for i, rules := range orders {
		got := Match(rules, ctx, now)
		require.NotNil(t, got, "order %d", i)
		assert.Equal(t, specific.ID, got.ID, "order %d", i)
	}
}

func TestMatchTieBreaksOnNewestRule(t *testing.T) {
	now := time.Now()
	ctx := Context{ClientID: uuid.New(), Category: "Shipping"}

	older := pctRule(1, now.Add(-time.Hour), "5", func(r *models.MarkupRule) {
		r.Category = strPtr("Shipping")
	})
	newer := pctRule(2, now, "7", func(r *models.MarkupRule) {
		r.Category = strPtr("Shipping")
	})

	for _, rules := range [][]models.MarkupRule{{older, newer}, {newer, older}} {
		got := Match(rules, ctx, now)
		require.NotNil(t, got)
		assert.Equal(t, newer.ID, got.ID)
	}
}

func TestMatchFilters(t *testing.T) {
	now := time.Now()
	clientID := uuid.New()
	otherClient := uuid.New()
	ctx := Context{ClientID: clientID, Category: "Storage", FeeType: "Bin"}

	tests := []struct {
		name string
		rule models.MarkupRule
		want bool
	}{
		{"inactive", pctRule(1, now, "10", func(r *models.MarkupRule) { r.Active = false }), false},
		{"wrong client", pctRule(1, now, "10", func(r *models.MarkupRule) { r.ClientID = &otherClient }), false},
		{"category case-insensitive", pctRule(1, now, "10", func(r *models.MarkupRule) {
			r.Category = strPtr("storage")
		}), true},
		{"not yet valid", pctRule(1, now, "10", func(r *models.MarkupRule) {
			from := now.Add(time.Hour)
			r.ValidFrom = &from
		}), false},
		{"expired", pctRule(1, now, "10", func(r *models.MarkupRule) {
			until := now.Add(-time.Hour)
			r.ValidUntil = &until
		}), false},
		{"weight condition without context weight", pctRule(1, now, "10", func(r *models.MarkupRule) {
			r.WeightMax = decPtr("10")
		}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(tt.rule, ctx, now))
		})
	}
}

func TestMatchWeightRange(t *testing.T) {
	now := time.Now()
	rule := pctRule(1, now, "10", func(r *models.MarkupRule) {
		r.WeightMin = decPtr("1")
		r.WeightMax = decPtr("5")
	})

	in := Context{ClientID: uuid.New(), Weight: decPtr("3")}
	below := Context{ClientID: in.ClientID, Weight: decPtr("0.5")}
	above := Context{ClientID: in.ClientID, Weight: decPtr("5.01")}

	assert.True(t, Matches(rule, in, now))
	assert.False(t, Matches(rule, below, now))
	assert.False(t, Matches(rule, above, now))
}

func TestApply(t *testing.T) {
	pct := pctRule(1, time.Now(), "15", nil)
	amount, percent := Apply(&pct, decimal.RequireFromString("10.00"))
	assert.True(t, amount.Equal(decimal.RequireFromString("1.50")), "got %s", amount)
	assert.True(t, percent.Equal(decimal.RequireFromString("15")))

	fixed := models.MarkupRule{Kind: models.MarkupFixed, Value: decimal.RequireFromString("2.25"), Active: true}
	amount, percent = Apply(&fixed, decimal.RequireFromString("500.00"))
	assert.True(t, amount.Equal(decimal.RequireFromString("2.25")), "fixed markup ignores base magnitude")
	assert.True(t, percent.IsZero())

	amount, percent = Apply(nil, decimal.RequireFromString("10.00"))
	assert.True(t, amount.IsZero())
	assert.True(t, percent.IsZero())
}

func TestApplyRoundsHalfAwayFromZero(t *testing.T) {
	// 3.33% of 10.01 = 0.333333 -> 0.33
	pct := pctRule(1, time.Now(), "3.33", nil)
	amount, _ := Apply(&pct, decimal.RequireFromString("10.01"))
	assert.True(t, amount.Equal(decimal.RequireFromString("0.33")), "got %s", amount)
}

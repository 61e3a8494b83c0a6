package billing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fulfillbill/pkg/models"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func strPtr(s string) *string { return &s }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func TestBuildLineItemsScenario(t *testing.T) {
	// Three transactions: a 15% pick fee, a zero-fixed-markup shipping fee
	// with a surcharge, and a rule-less credit.
	clientID := uuid.New()
	now := time.Now()

	rules := []models.MarkupRule{
		{
			ID:        uuid.New(),
			FeeType:   strPtr("Pick"),
			Kind:      models.MarkupPercentage,
			Value:     dec("15"),
			Active:    true,
			CreatedAt: now,
		},
		{
			ID:        uuid.New(),
			FeeType:   strPtr("Shipping"),
			Kind:      models.MarkupFixed,
			Value:     dec("0"),
			Active:    true,
			CreatedAt: now,
		},
	}
	txns := []models.Transaction{
		{ExternalID: "T1", FeeType: "Pick", Category: "Fulfillment", Amount: dec("10.00"), Surcharge: dec("0"), ChargedAt: now},
		{ExternalID: "T2", FeeType: "Shipping", Category: "Shipping", Amount: dec("5.00"), Surcharge: dec("0.20"), ChargedAt: now},
		{ExternalID: "T3", FeeType: "Adjustment", Category: "Credits", Amount: dec("-3.00"), Surcharge: dec("0"), ChargedAt: now},
	}

	items := BuildLineItems(txns, rules, clientID)
	require.Len(t, items, 3)

	assert.True(t, items[0].MarkupAmount.Equal(dec("1.50")), "pick markup: %s", items[0].MarkupAmount)
	assert.True(t, items[0].BilledAmount.Equal(dec("11.50")))
	require.NotNil(t, items[0].RuleID)

	assert.True(t, items[1].MarkupAmount.IsZero())
	assert.True(t, items[1].BilledAmount.Equal(dec("5.20")), "surcharge passes through unmarked")
	require.NotNil(t, items[1].RuleID)

	assert.True(t, items[2].BilledAmount.Equal(dec("-3.00")))
	assert.Nil(t, items[2].RuleID, "no matching rule is a valid, visible outcome")
	assert.True(t, items[2].IsCredit)

	totals, _, err := Aggregate(items)
	require.NoError(t, err)
	require.Len(t, totals, 3)

	byName := map[string]models.CategoryTotal{}
	for _, c := range totals {
		byName[c.Category] = c
	}
	assert.True(t, byName["Fulfillment"].Billed.Equal(dec("11.50")))
	assert.True(t, byName["Shipping"].Billed.Equal(dec("5.20")))
	assert.True(t, byName["Credits"].Billed.Equal(dec("-3.00")))
}

func TestBuildLineItemsTierAndWeightRules(t *testing.T) {
	clientID := uuid.New()
	now := time.Now()
	weight := dec("2.5")

	rules := []models.MarkupRule{{
		ID:          uuid.New(),
		ServiceTier: strPtr("Expedited"),
		WeightMin:   decPtr("1"),
		WeightMax:   decPtr("5"),
		Kind:        models.MarkupPercentage,
		Value:       dec("20"),
		Active:      true,
		CreatedAt:   now,
	}}
	txns := []models.Transaction{
		{ExternalID: "W1", FeeType: "Shipping", Category: "Shipping", ServiceTier: "Expedited",
			Weight: &weight, Amount: dec("10.00"), Surcharge: dec("0"), ChargedAt: now},
		{ExternalID: "W2", FeeType: "Shipping", Category: "Shipping", ServiceTier: "Expedited",
			Amount: dec("10.00"), Surcharge: dec("0"), ChargedAt: now},
	}

	items := BuildLineItems(txns, rules, clientID)
	require.Len(t, items, 2)

	assert.True(t, items[0].MarkupAmount.Equal(dec("2.00")),
		"tier and weight flow from the transaction into rule matching: %s", items[0].MarkupAmount)
	require.NotNil(t, items[0].RuleID)

	assert.True(t, items[1].MarkupAmount.IsZero(),
		"a weight-conditioned rule never fires on a weightless transaction")
	assert.Nil(t, items[1].RuleID)
}

func TestLineItemInvariant(t *testing.T) {
	clientID := uuid.New()
	now := time.Now()
	rules := []models.MarkupRule{{
		ID: uuid.New(), Kind: models.MarkupPercentage, Value: dec("17.5"),
		Active: true, CreatedAt: now,
	}}
	txns := []models.Transaction{
		{ExternalID: "A", FeeType: "Pick", Category: "Fulfillment", Amount: dec("3.33"), Surcharge: dec("0.11"), ChargedAt: now},
		{ExternalID: "B", FeeType: "Pack", Category: "Fulfillment", Amount: dec("7.77"), Surcharge: dec("0"), ChargedAt: now},
	}
	for _, item := range BuildLineItems(txns, rules, clientID) {
		want := item.BaseAmount.Add(item.Surcharge).Add(item.MarkupAmount).Round(2)
		assert.True(t, item.BilledAmount.Equal(want),
			"%s: billed %s != base+surcharge+markup %s", item.TransactionID, item.BilledAmount, want)
	}
}

func TestAggregateReconcilesRounding(t *testing.T) {
	// Three lines whose markup rounds individually to a different penny sum
	// than rounding once after summing. 1.115 rounds to 1.12 per line
	// (3.36 summed) while the raw sum 3.345 rounds to 3.35 once.
	mk := func(id string, markup string) models.LineItem {
		base := dec("10.00")
		m := dec(markup)
		return models.LineItem{
			TransactionID: id,
			Category:      "Fulfillment",
			BaseAmount:    base,
			Surcharge:     decimal.Zero,
			MarkupAmount:  m,
			BilledAmount:  base.Add(m).Round(2),
		}
	}
	items := []models.LineItem{mk("A", "1.115"), mk("B", "1.115"), mk("C", "1.115")}

	totals, adjusted, err := Aggregate(items)
	require.NoError(t, err)
	require.Len(t, totals, 1)

	lineSum := decimal.Zero
	for _, item := range adjusted {
		lineSum = lineSum.Add(item.BilledAmount)
		want := item.BaseAmount.Add(item.Surcharge).Add(item.MarkupAmount).Round(2)
		assert.True(t, item.BilledAmount.Equal(want), "per-line invariant holds after adjustment")
	}
	assert.True(t, totals[0].Billed.Equal(lineSum),
		"category total %s must equal sum of rounded lines %s", totals[0].Billed, lineSum)
	assert.True(t, totals[0].Billed.Equal(dec("33.35")), "got %s", totals[0].Billed)
}

func TestAggregateRejectsLargeResidual(t *testing.T) {
	// A billed amount drifting a dollar from base+markup is a calculation
	// error, not rounding noise.
	items := []models.LineItem{{
		TransactionID: "BAD",
		Category:      "Storage",
		BaseAmount:    dec("10.00"),
		Surcharge:     decimal.Zero,
		MarkupAmount:  dec("1.00"),
		BilledAmount:  dec("10.00"),
	}}
	_, _, err := Aggregate(items)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRoundingResidual)
}

func TestAggregateGroupsByDisplayCategory(t *testing.T) {
	items := []models.LineItem{
		{TransactionID: "1", Category: "Shipping", BaseAmount: dec("5.00"), Surcharge: decimal.Zero, MarkupAmount: decimal.Zero, BilledAmount: dec("5.00")},
		{TransactionID: "2", Category: "Storage", BaseAmount: dec("2.00"), Surcharge: decimal.Zero, MarkupAmount: decimal.Zero, BilledAmount: dec("2.00")},
		{TransactionID: "3", Category: "Shipping", BaseAmount: dec("1.00"), Surcharge: decimal.Zero, MarkupAmount: decimal.Zero, BilledAmount: dec("1.00")},
	}
	totals, _, err := Aggregate(items)
	require.NoError(t, err)
	require.Len(t, totals, 2)
	assert.Equal(t, "Shipping", totals[0].Category)
	assert.Equal(t, 2, totals[0].Count)
	assert.True(t, totals[0].Billed.Equal(dec("6.00")))
	assert.Equal(t, "Storage", totals[1].Category)
}

func TestDisplayCategory(t *testing.T) {
	now := time.Now()
	assert.Equal(t, "Credits", DisplayCategory(models.Transaction{Amount: dec("-1.00"), Category: "Shipping", ChargedAt: now}))
	assert.Equal(t, "Shipping", DisplayCategory(models.Transaction{Amount: dec("1.00"), Category: "Postage", ChargedAt: now}))
	assert.Equal(t, "Other", DisplayCategory(models.Transaction{Amount: dec("1.00"), Category: "Mystery", ChargedAt: now}))
}

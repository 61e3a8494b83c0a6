package billing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fulfillbill/pkg/models"
)

type fakeAllocator struct {
	calls int
	err   error
}

func (f *fakeAllocator) AllocateInvoiceNumber(ctx context.Context, clientID uuid.UUID) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.calls++
	return fmt.Sprintf("ACME-%05d", f.calls), nil
}

func scenarioItems(t *testing.T) []models.LineItem {
	t.Helper()
	now := time.Now()
	clientID := uuid.New()
	rules := []models.MarkupRule{
		{ID: uuid.New(), FeeType: strPtr("Pick"), Kind: models.MarkupPercentage, Value: dec("15"), Active: true, CreatedAt: now},
		{ID: uuid.New(), FeeType: strPtr("Shipping"), Kind: models.MarkupFixed, Value: dec("0"), Active: true, CreatedAt: now},
	}
	txns := []models.Transaction{
		{ExternalID: "T1", FeeType: "Pick", Category: "Fulfillment", Amount: dec("10.00"), Surcharge: dec("0"), ChargedAt: now},
		{ExternalID: "T2", FeeType: "Shipping", Category: "Shipping", Amount: dec("5.00"), Surcharge: dec("0.20"), ChargedAt: now},
		{ExternalID: "T3", FeeType: "Adjustment", Category: "Credits", Amount: dec("-3.00"), Surcharge: dec("0"), ChargedAt: now},
	}
	return BuildLineItems(txns, rules, clientID)
}

func TestAssembleScenarioTotals(t *testing.T) {
	client := models.Client{ID: uuid.New(), Name: "Acme", ShortCode: "ACME"}
	alloc := &fakeAllocator{}

	assembly, err := NewAssembler(alloc).Assemble(context.Background(), client,
		time.Now().AddDate(0, -1, 0), time.Now(), scenarioItems(t))
	require.NoError(t, err)

	s := assembly.Summary
	assert.True(t, s.Subtotal.Equal(dec("15.00")), "subtotal: %s", s.Subtotal)
	assert.True(t, s.TotalMarkup.Equal(dec("1.50")), "markup: %s", s.TotalMarkup)
	assert.True(t, s.TotalAmount.Equal(dec("16.70")), "total: %s", s.TotalAmount)
	assert.True(t, s.TotalCredits.Equal(dec("-3.00")), "credits: %s", s.TotalCredits)
	assert.True(t, s.AmountDue.Equal(dec("13.70")), "amount due: %s", s.AmountDue)

	// Charge categories sum to the total exactly; the credit category
	// carries the credit total.
	chargeSum := decimal.Zero
	for _, c := range s.Categories {
		if c.Category == "Credits" {
			assert.True(t, c.Billed.Equal(s.TotalCredits))
			continue
		}
		chargeSum = chargeSum.Add(c.Billed)
	}
	assert.True(t, chargeSum.Equal(s.TotalAmount))

	assert.Equal(t, "ACME-00001", assembly.Number)
	assert.Equal(t, 1, alloc.calls, "exactly one sequence allocation per invoice")
}

func TestAssembleOrdersLineItems(t *testing.T) {
	client := models.Client{ID: uuid.New(), ShortCode: "ACME"}
	assembly, err := NewAssembler(&fakeAllocator{}).Assemble(context.Background(), client,
		time.Now().AddDate(0, -1, 0), time.Now(), scenarioItems(t))
	require.NoError(t, err)

	require.Len(t, assembly.LineItems, 3)
	for i := 1; i < len(assembly.LineItems); i++ {
		prev, cur := assembly.LineItems[i-1], assembly.LineItems[i]
		ok := prev.Category < cur.Category ||
			(prev.Category == cur.Category && prev.TransactionID <= cur.TransactionID)
		assert.True(t, ok, "items must be ordered by category then transaction id")
	}
}

func TestAssembleEmptyPeriod(t *testing.T) {
	client := models.Client{ID: uuid.New(), ShortCode: "ACME"}
	_, err := NewAssembler(&fakeAllocator{}).Assemble(context.Background(), client,
		time.Now().AddDate(0, -1, 0), time.Now(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoLineItems)
}

func TestAssembleAllocatorFailureDoesNotPanic(t *testing.T) {
	client := models.Client{ID: uuid.New(), ShortCode: "ACME"}
	alloc := &fakeAllocator{err: fmt.Errorf("sequence row locked")}
	_, err := NewAssembler(alloc).Assemble(context.Background(), client,
		time.Now().AddDate(0, -1, 0), time.Now(), scenarioItems(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "allocating invoice number")
}

package render

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fulfillbill/internal/billing"
	"fulfillbill/pkg/models"
)

func testAssembly() billing.Assembly {
	dec := decimal.RequireFromString
	return billing.Assembly{
		Number: "ACME-00042",
		Client: models.Client{ID: uuid.New(), Name: "Acme", ShortCode: "ACME"},
		Summary: models.InvoiceSummary{
			PeriodStart:  time.Now().AddDate(0, -1, 0),
			PeriodEnd:    time.Now(),
			Subtotal:     dec("15.00"),
			TotalMarkup:  dec("1.50"),
			TotalAmount:  dec("16.70"),
			TotalCredits: dec("-3.00"),
			AmountDue:    dec("13.70"),
			Categories: []models.CategoryTotal{
				{Category: "Fulfillment", Count: 1, Base: dec("10.00"), Surcharge: dec("0"), Markup: dec("1.50"), Billed: dec("11.50")},
			},
		},
		LineItems: []models.LineItem{
			{TransactionID: "T1", Category: "Fulfillment", Description: "Pick",
				BaseAmount: dec("10.00"), Surcharge: dec("0"), MarkupAmount: dec("1.50"),
				MarkupPercent: dec("15"), BilledAmount: dec("11.50")},
		},
	}
}

func TestCSVRenderer(t *testing.T) {
	data, ext, err := (&CSVRenderer{}).Render(testAssembly())
	require.NoError(t, err)
	assert.Equal(t, "csv", ext)

	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)

	// header + 1 line item + separator-less totals block
	require.GreaterOrEqual(t, len(rows), 4)
	assert.Equal(t, "transaction_id", rows[0][2])
	assert.Equal(t, "T1", rows[1][2])
	assert.Equal(t, "11.50", rows[1][8])

	last := rows[len(rows)-1]
	assert.Equal(t, "AMOUNT DUE", last[1])
	assert.Equal(t, "13.70", last[8])
}

func TestPDFRendererProducesDocument(t *testing.T) {
	data, ext, err := (&PDFRenderer{}).Render(testAssembly())
	require.NoError(t, err)
	assert.Equal(t, "pdf", ext)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")), "output must be a PDF document")
}

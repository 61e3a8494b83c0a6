package render

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"fulfillbill/internal/billing"
)

// CSVRenderer writes the line items and category totals as a spreadsheet.
type CSVRenderer struct{}

// Render implements Renderer.
func (r *CSVRenderer) Render(a billing.Assembly) ([]byte, string, error) {
	const op = "CSVRenderer.Render"

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"invoice", "category", "transaction_id", "description",
		"base", "surcharge", "markup", "markup_pct", "billed"}
	if err := w.Write(header); err != nil {
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}

	for _, item := range a.LineItems {
		row := []string{
			a.Number,
			item.Category,
			item.TransactionID,
			item.Description,
			item.BaseAmount.StringFixed(2),
			item.Surcharge.StringFixed(2),
			item.MarkupAmount.StringFixed(2),
			item.MarkupPercent.StringFixed(2),
			item.BilledAmount.StringFixed(2),
		}
		if err := w.Write(row); err != nil {
			return nil, "", fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := w.Write([]string{}); err != nil {
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}
	for _, t := range a.Summary.Categories {
		row := []string{
			a.Number,
			t.Category + " (total)",
			fmt.Sprintf("%d items", t.Count),
			"",
			t.Base.StringFixed(2),
			t.Surcharge.StringFixed(2),
			t.Markup.StringFixed(2),
			"",
			t.Billed.StringFixed(2),
		}
		if err := w.Write(row); err != nil {
			return nil, "", fmt.Errorf("%s: %w", op, err)
		}
	}
	summaryRows := [][]string{
		{a.Number, "TOTAL CHARGES", "", "",
			a.Summary.Subtotal.StringFixed(2), "",
			a.Summary.TotalMarkup.StringFixed(2), "",
			a.Summary.TotalAmount.StringFixed(2)},
		{a.Number, "CREDITS", "", "", "", "", "", "",
			a.Summary.TotalCredits.StringFixed(2)},
		{a.Number, "AMOUNT DUE", "", "", "", "", "", "",
			a.Summary.AmountDue.StringFixed(2)},
	}
	for _, row := range summaryRows {
		if err := w.Write(row); err != nil {
			return nil, "", fmt.Errorf("%s: %w", op, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}
	return buf.Bytes(), "csv", nil
}

package render

import (
	"bytes"
	"fmt"

	"github.com/phpdave11/gofpdf"

	"fulfillbill/internal/billing"
)

// PDFRenderer writes a minimal tabular invoice PDF.
type PDFRenderer struct{}

// Render implements Renderer.
func (r *PDFRenderer) Render(a billing.Assembly) ([]byte, string, error) {
	const op = "PDFRenderer.Render"

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(14, 14, 14)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "Invoice "+a.Number)
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(80, 80, 80)
	pdf.Cell(0, 6, "Client: "+a.Client.Name)
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Period: %s to %s",
		a.Summary.PeriodStart.Format("2006-01-02"),
		a.Summary.PeriodEnd.Format("2006-01-02")))
	pdf.Ln(10)

	colW := []float64{34, 56, 24, 24, 24, 24}
	pdf.SetDrawColor(200, 200, 200)
	pdf.SetFillColor(248, 248, 248)
	pdf.SetTextColor(20, 20, 20)
	pdf.SetFont("Helvetica", "B", 9)
	for i, h := range []string{"Category", "Description", "Base", "Surcharge", "Markup", "Billed"} {
		pdf.CellFormat(colW[i], 8, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, item := range a.LineItems {
		pdf.CellFormat(colW[0], 7, item.Category, "1", 0, "L", false, 0, "")
		pdf.CellFormat(colW[1], 7, item.Description, "1", 0, "L", false, 0, "")
		pdf.CellFormat(colW[2], 7, item.BaseAmount.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(colW[3], 7, item.Surcharge.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(colW[4], 7, item.MarkupAmount.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(colW[5], 7, item.BilledAmount.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 10)
	for _, t := range a.Summary.Categories {
		pdf.CellFormat(114, 7, fmt.Sprintf("%s (%d items)", t.Category, t.Count), "", 0, "L", false, 0, "")
		pdf.CellFormat(72, 7, t.Billed.StringFixed(2), "", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.Ln(2)
	pdf.CellFormat(114, 8, "Total markup", "T", 0, "L", false, 0, "")
	pdf.CellFormat(72, 8, a.Summary.TotalMarkup.StringFixed(2), "T", 0, "R", false, 0, "")
	pdf.Ln(-1)
	pdf.CellFormat(114, 8, "Total charges", "", 0, "L", false, 0, "")
	pdf.CellFormat(72, 8, a.Summary.TotalAmount.StringFixed(2), "", 0, "R", false, 0, "")
	pdf.Ln(-1)
	if !a.Summary.TotalCredits.IsZero() {
		pdf.CellFormat(114, 8, "Credits", "", 0, "L", false, 0, "")
		pdf.CellFormat(72, 8, a.Summary.TotalCredits.StringFixed(2), "", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(114, 8, "Amount due", "T", 0, "L", false, 0, "")
	pdf.CellFormat(72, 8, a.Summary.AmountDue.StringFixed(2), "T", 0, "R", false, 0, "")
	pdf.Ln(-1)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}
	return buf.Bytes(), "pdf", nil
}

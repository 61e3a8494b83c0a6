// Package render turns a finished invoice model into document bytes. The
// billing core owns every number; renderers own nothing but layout.
package render

import (
	"fulfillbill/internal/billing"
)

// Renderer produces one document format from an assembled invoice.
type Renderer interface {
	// Render returns the document bytes and a file extension (without dot).
	Render(a billing.Assembly) ([]byte, string, error)
}

// ForFormat returns the renderer for a format flag value, or nil if the
// format is unknown.
func ForFormat(format string) Renderer {
	switch format {
	case "csv":
		return &CSVRenderer{}
	case "pdf":
		return &PDFRenderer{}
	default:
		return nil
	}
}

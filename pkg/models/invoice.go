package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineItem is a transaction after markup has been applied. LineItems are
// derived, recomputed on every generation pass, and never the source of
// truth.
type LineItem struct {
	TransactionID string // External id of the source transaction

	Category    string // Display grouping, distinct from the matching category
	Description string

	BaseAmount    decimal.Decimal
	Surcharge     decimal.Decimal // Pass-through, never marked up
	MarkupAmount  decimal.Decimal
	MarkupPercent decimal.Decimal // Derived; zero for fixed or no markup
	BilledAmount  decimal.Decimal // round2(base + surcharge + markup)

	// RuleID is the markup rule that produced MarkupAmount, nil when no
	// rule matched (a valid outcome that stays visible for audit).
	RuleID *uuid.UUID

	IsCredit bool
}

// CategoryTotal aggregates the line items of one display category.
type CategoryTotal struct {
	Category  string
	Count     int
	Base      decimal.Decimal
	Surcharge decimal.Decimal
	Markup    decimal.Decimal
	Tax       decimal.Decimal
	Billed    decimal.Decimal
}

// InvoiceSummary is the aggregated view over one client and billing period.
// After rounding reconciliation, summing the category totals reproduces the
// top-level totals exactly.
type InvoiceSummary struct {
	ClientID    uuid.UUID
	PeriodStart time.Time
	PeriodEnd   time.Time

	Subtotal    decimal.Decimal // Sum of non-credit base amounts
	TotalMarkup decimal.Decimal
	TotalAmount decimal.Decimal // Sum of non-credit billed amounts (charges only)

	// Credits are reported separately rather than netted into the charge
	// totals, so the charge categories still sum to TotalAmount exactly.
	TotalCredits decimal.Decimal // Negative or zero
	AmountDue    decimal.Decimal // TotalAmount + TotalCredits

	Categories []CategoryTotal
}

// GeneratedInvoice is the durable record of a finalized invoice.
type GeneratedInvoice struct {
	Number      string // "<shortcode>-<sequence>", unique
	ClientID    uuid.UUID
	PeriodStart time.Time
	PeriodEnd   time.Time
	Subtotal    decimal.Decimal
	TotalMarkup decimal.Decimal
	TotalAmount decimal.Decimal
	LineCount   int
	GeneratedAt time.Time
	DocumentRef string // Opaque reference to the rendered document
}

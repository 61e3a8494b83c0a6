package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReferenceKind classifies the entity a transaction is billed against.
type ReferenceKind string

const (
	RefShipment          ReferenceKind = "SHIPMENT"
	RefReceivingOrder    ReferenceKind = "RECEIVING_ORDER"
	RefReturn            ReferenceKind = "RETURN"
	RefInventoryLocation ReferenceKind = "INVENTORY_LOCATION"
	RefTenantDirect      ReferenceKind = "TENANT_DIRECT"
	RefOther             ReferenceKind = "OTHER"
)

// Transaction is one billable event reported by the fulfillment platform.
// It is immutable except for attribution (ClientID, set at most once) and
// the internal invoice reference (set once when the transaction is included
// in a finalized invoice).
type Transaction struct {
	// Core identifiers
	ExternalID    string        // Platform-assigned transaction id, globally unique
	ReferenceID   string        // Id of the referenced entity (shipment, order, ...)
	ReferenceKind ReferenceKind // What kind of entity ReferenceID points at

	// Billing context
	FeeType     string // Platform fee type label (e.g. "Pick", "Shipping")
	Category    string // Platform billing category (e.g. "Fulfillment", "Storage")
	ServiceTier string // Platform service tier (e.g. "Standard"), empty when not reported

	// Weight is the billed weight for weight-scaled fees, nil when the
	// platform does not report one. Weight-conditioned markup rules only
	// fire when it is present.
	Weight *decimal.Decimal

	// Amounts (signed; credits and refunds are negative)
	Amount    decimal.Decimal // Platform base cost
	Surcharge decimal.Decimal // Pass-through surcharge (fuel, insurance), never marked up
	Currency  string          // Currency code (USD, EUR, ...)

	ChargedAt time.Time // When the platform charged the fee

	// ExternalInvoiceID is the platform's own invoice id, nil until the
	// platform invoices the transaction.
	ExternalInvoiceID *string

	// Comment is free text attached by the platform; for returns it may
	// embed the originating order number.
	Comment string

	// Attribution. ClientID is nil until the resolver attributes the
	// transaction. Excluded marks tenant-direct records (platform payments,
	// account credits) that never belong on a client invoice.
	ClientID *uuid.UUID
	Excluded bool

	// InvoiceRef is our invoice number once the transaction has been billed.
	// The transition nil -> non-nil is one-way.
	InvoiceRef *string
}

// IsCredit reports whether the transaction reduces the client's bill.
func (t *Transaction) IsCredit() bool {
	return t.Amount.IsNegative()
}

// Attributed reports whether an owning client has been resolved.
func (t *Transaction) Attributed() bool {
	return t.ClientID != nil
}

// ExternalInvoice is the platform's own invoice record. It is consumed as a
// reconciliation oracle and never mutated.
type ExternalInvoice struct {
	ID     string
	Type   string
	Date   time.Time
	Amount decimal.Decimal
}

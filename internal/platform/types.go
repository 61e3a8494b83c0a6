package platform

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fulfillbill/pkg/models"
)

// InvoiceStatus filters a transaction query by whether the platform has
// invoiced the transaction yet.
type InvoiceStatus string

const (
	StatusAny      InvoiceStatus = ""
	StatusPending  InvoiceStatus = "pending"
	StatusInvoiced InvoiceStatus = "invoiced"
)

// Query describes one filtered, cursor-paginated transaction query. The
// platform caps the result set of a single filter combination, so a busy
// window needs several overlapping queries to enumerate fully.
type Query struct {
	From          time.Time
	To            time.Time
	Category      string
	ReferenceKind models.ReferenceKind
	Status        InvoiceStatus
	Cursor        string
	PageSize      int
}

func (q Query) label() string {
	parts := []string{}
	if q.Category != "" {
		parts = append(parts, "category="+q.Category)
	}
	if q.ReferenceKind != "" {
		parts = append(parts, "kind="+string(q.ReferenceKind))
	}
	if q.Status != StatusAny {
		parts = append(parts, "status="+string(q.Status))
	}
	if len(parts) == 0 {
		return "unfiltered"
	}
	return strings.Join(parts, ",")
}

// Page is one page of query results. Malformed counts wire records dropped
// at boundary validation.
type Page struct {
	Transactions []models.Transaction
	NextCursor   string
	Malformed    int
}

// txnRecord is the wire shape of a platform transaction. Amounts arrive as
// decimal strings and dates as RFC 3339 timestamps.
type txnRecord struct {
	ID                string  `json:"transaction_id"`
	ReferenceID       string  `json:"reference_id"`
	ReferenceType     string  `json:"reference_type"`
	FeeType           string  `json:"fee_type"`
	Category          string  `json:"fee_category"`
	ServiceTier       string  `json:"service_tier"`
	Weight            string  `json:"weight"`
	Amount            string  `json:"amount"`
	Surcharge         string  `json:"surcharge"`
	Currency          string  `json:"currency"`
	ChargedAt         string  `json:"charge_date"`
	ExternalInvoiceID *string `json:"invoice_id"`
	Comment           string  `json:"comment"`
}

// toModel validates the wire record and converts it into a typed
// transaction. Malformed external data fails here rather than propagating
// downstream.
func (r txnRecord) toModel() (models.Transaction, error) {
	if r.ID == "" {
		return models.Transaction{}, fmt.Errorf("%w: empty transaction_id", ErrMalformedRecord)
	}
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("%w: amount %q: %v", ErrMalformedRecord, r.Amount, err)
	}
	surcharge := decimal.Zero
	if r.Surcharge != "" {
		surcharge, err = decimal.NewFromString(r.Surcharge)
		if err != nil {
			return models.Transaction{}, fmt.Errorf("%w: surcharge %q: %v", ErrMalformedRecord, r.Surcharge, err)
		}
	}
	chargedAt, err := time.Parse(time.RFC3339, r.ChargedAt)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("%w: charge_date %q: %v", ErrMalformedRecord, r.ChargedAt, err)
	}
	var weight *decimal.Decimal
	if r.Weight != "" {
		w, err := decimal.NewFromString(r.Weight)
		if err != nil {
			return models.Transaction{}, fmt.Errorf("%w: weight %q: %v", ErrMalformedRecord, r.Weight, err)
		}
		weight = &w
	}

	return models.Transaction{
		ExternalID:        r.ID,
		ReferenceID:       r.ReferenceID,
		ReferenceKind:     parseReferenceKind(r.ReferenceType),
		FeeType:           r.FeeType,
		Category:          r.Category,
		ServiceTier:       r.ServiceTier,
		Weight:            weight,
		Amount:            amount,
		Surcharge:         surcharge,
		Currency:          r.Currency,
		ChargedAt:         chargedAt,
		ExternalInvoiceID: r.ExternalInvoiceID,
		Comment:           r.Comment,
	}, nil
}

func parseReferenceKind(s string) models.ReferenceKind {
	switch strings.ToUpper(s) {
	case "SHIPMENT":
		return models.RefShipment
	case "RECEIVING_ORDER", "WRO":
		return models.RefReceivingOrder
	case "RETURN":
		return models.RefReturn
	case "INVENTORY_LOCATION", "INVENTORY":
		return models.RefInventoryLocation
	case "TENANT", "TENANT_DIRECT", "PAYMENT":
		return models.RefTenantDirect
	default:
		return models.RefOther
	}
}

// invoiceRecord is the wire shape of a platform invoice.
type invoiceRecord struct {
	ID     string `json:"invoice_id"`
	Type   string `json:"invoice_type"`
	Date   string `json:"invoice_date"`
	Amount string `json:"amount"`
}

func (r invoiceRecord) toModel() (models.ExternalInvoice, error) {
	if r.ID == "" {
		return models.ExternalInvoice{}, fmt.Errorf("%w: empty invoice_id", ErrMalformedRecord)
	}
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return models.ExternalInvoice{}, fmt.Errorf("%w: amount %q: %v", ErrMalformedRecord, r.Amount, err)
	}
	date, err := time.Parse(time.RFC3339, r.Date)
	if err != nil {
		return models.ExternalInvoice{}, fmt.Errorf("%w: invoice_date %q: %v", ErrMalformedRecord, r.Date, err)
	}
	return models.ExternalInvoice{ID: r.ID, Type: r.Type, Date: date, Amount: amount}, nil
}

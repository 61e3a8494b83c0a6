package billing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fulfillbill/pkg/models"
)

// SequenceAllocator hands out the next invoice number for a client. The
// increment and the number assignment are one atomic step in the store, so
// two generation runs racing on the same client cannot collide.
type SequenceAllocator interface {
	AllocateInvoiceNumber(ctx context.Context, clientID uuid.UUID) (string, error)
}

// Assembly is the finished invoice model handed to renderers.
type Assembly struct {
	Number    string
	Client    models.Client
	Summary   models.InvoiceSummary
	LineItems []models.LineItem
}

// Assembler builds the final invoice from reconciled line items.
type Assembler struct {
	seq SequenceAllocator
}

// NewAssembler creates an assembler over the given sequence allocator.
func NewAssembler(seq SequenceAllocator) *Assembler {
	return &Assembler{seq: seq}
}

// Assemble aggregates, reconciles and numbers one client invoice. The
// invoice number is allocated last, after every computation that could
// still fail, so a failed run does not burn a sequence number for nothing.
func (a *Assembler) Assemble(ctx context.Context, client models.Client, periodStart, periodEnd time.Time, items []models.LineItem) (Assembly, error) {
	const op = "Assemble"

	if len(items) == 0 {
		return Assembly{}, fmt.Errorf("%s: client %s: %w", op, client.ID, ErrNoLineItems)
	}

	totals, reconciled, err := Aggregate(items)
	if err != nil {
		return Assembly{}, fmt.Errorf("%s: %w", op, err)
	}

	sort.SliceStable(reconciled, func(i, j int) bool {
		if reconciled[i].Category != reconciled[j].Category {
			return reconciled[i].Category < reconciled[j].Category
		}
		return reconciled[i].TransactionID < reconciled[j].TransactionID
	})

	summary := models.InvoiceSummary{
		ClientID:     client.ID,
		PeriodStart:  periodStart,
		PeriodEnd:    periodEnd,
		Subtotal:     decimal.Zero,
		TotalMarkup:  decimal.Zero,
		TotalAmount:  decimal.Zero,
		TotalCredits: decimal.Zero,
		Categories:   totals,
	}
	for _, item := range reconciled {
		if item.IsCredit {
			summary.TotalCredits = summary.TotalCredits.Add(item.BilledAmount)
			continue
		}
		summary.Subtotal = summary.Subtotal.Add(item.BaseAmount)
		summary.TotalMarkup = summary.TotalMarkup.Add(item.MarkupAmount)
		summary.TotalAmount = summary.TotalAmount.Add(item.BilledAmount)
	}
	summary.Subtotal = summary.Subtotal.Round(2)
	summary.TotalMarkup = summary.TotalMarkup.Round(2)
	summary.TotalAmount = summary.TotalAmount.Round(2)
	summary.TotalCredits = summary.TotalCredits.Round(2)
	summary.AmountDue = summary.TotalAmount.Add(summary.TotalCredits)

	number, err := a.seq.AllocateInvoiceNumber(ctx, client.ID)
	if err != nil {
		return Assembly{}, fmt.Errorf("%s: allocating invoice number: %w", op, err)
	}

	return Assembly{
		Number:    number,
		Client:    client,
		Summary:   summary,
		LineItems: reconciled,
	}, nil
}

// Package reconcile compares locally computed billing state against the
// platform's own invoice records. It only ever reads and reports; fixing
// anything it finds is a human decision.
package reconcile

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fulfillbill/pkg/models"
)

// AmountTolerance is the cent-level slack allowed between a platform
// invoice's reported amount and the sum of our local base costs for it.
var AmountTolerance = decimal.NewFromFloat(0.02)

// AmountMismatch is one platform invoice whose reported amount drifts from
// our local sum beyond tolerance.
type AmountMismatch struct {
	InvoiceID      string
	ReportedAmount decimal.Decimal
	LocalAmount    decimal.Decimal
	Difference     decimal.Decimal
}

// CrossClientInvoice is a platform invoice whose local transactions are
// attributed to more than one client. Same invoice implies same tenant, so
// this always means an attribution defect.
type CrossClientInvoice struct {
	InvoiceID string
	ClientIDs []uuid.UUID
}

// Report is the validator's output.
type Report struct {
	LocalCount    int
	ExternalCount int // transactions reported by the platform across checked invoices

	// MissingLocally lists transaction ids the platform reports but we do
	// not hold. These are fetch gaps.
	MissingLocally []string

	// PhantomLocal lists local transaction ids claiming a platform invoice
	// the platform does not confirm. Flagged for manual review, never
	// auto-deleted.
	PhantomLocal []string

	// Unattributed lists local transaction ids with no owner and no
	// exclusion flag.
	Unattributed []string

	AmountMismatches []AmountMismatch
	CrossClient      []CrossClientInvoice
}

// Blocking reports whether the discrepancies must stop invoice
// finalization. Unattributed transactions and phantom records block;
// so do amount drifts and cross-client invoices.
func (r Report) Blocking() bool {
	return len(r.MissingLocally) > 0 ||
		len(r.PhantomLocal) > 0 ||
		len(r.Unattributed) > 0 ||
		len(r.AmountMismatches) > 0 ||
		len(r.CrossClient) > 0
}

// Validate compares local transactions against the platform's invoices and
// their declared transaction sets. externalTxns maps a platform invoice id
// to the transactions the platform says it billed on that invoice.
//
// invoices is the set of externally confirmed invoices. Callers must
// resolve every invoice id the local set references (windowed listing plus
// per-id confirmation), because a local transaction referencing an invoice
// absent from this set is reported as phantom.
func Validate(local []models.Transaction, invoices []models.ExternalInvoice, externalTxns map[string][]models.Transaction) Report {
	report := Report{LocalCount: len(local)}

	localByID := make(map[string]models.Transaction, len(local))
	localByInvoice := make(map[string][]models.Transaction)
	for _, txn := range local {
		localByID[txn.ExternalID] = txn
		if txn.ExternalInvoiceID != nil {
			localByInvoice[*txn.ExternalInvoiceID] = append(localByInvoice[*txn.ExternalInvoiceID], txn)
		}
		if !txn.Attributed() && !txn.Excluded {
			report.Unattributed = append(report.Unattributed, txn.ExternalID)
		}
	}

	confirmedInvoices := make(map[string]bool, len(invoices))
	for _, inv := range invoices {
		confirmedInvoices[inv.ID] = true

		extTxns := externalTxns[inv.ID]
		report.ExternalCount += len(extTxns)

		localSum := decimal.Zero
		for _, txn := range localByInvoice[inv.ID] {
			localSum = localSum.Add(txn.Amount).Add(txn.Surcharge)
		}
		diff := inv.Amount.Sub(localSum)
		if diff.Abs().GreaterThan(AmountTolerance) {
			report.AmountMismatches = append(report.AmountMismatches, AmountMismatch{
				InvoiceID:      inv.ID,
				ReportedAmount: inv.Amount,
				LocalAmount:    localSum,
				Difference:     diff,
			})
		}

		for _, txn := range extTxns {
			if _, ok := localByID[txn.ExternalID]; !ok {
				report.MissingLocally = append(report.MissingLocally, txn.ExternalID)
			}
		}

		clients := map[uuid.UUID]bool{}
		for _, txn := range localByInvoice[inv.ID] {
			if txn.ClientID != nil {
				clients[*txn.ClientID] = true
			}
		}
		if len(clients) > 1 {
			ids := make([]uuid.UUID, 0, len(clients))
			for id := range clients {
				ids = append(ids, id)
			}
			sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
			report.CrossClient = append(report.CrossClient, CrossClientInvoice{InvoiceID: inv.ID, ClientIDs: ids})
		}
	}

	// Phantom means positively denied, not merely unconfirmed: with no
	// external source consulted there is nothing to deny against, and an
	// invoice dated outside the caller's window must not condemn its
	// transactions. Callers confirm locally referenced invoice ids
	// individually before validating; a non-nil externalTxns map marks that
	// the platform was asked, even when it denied every id.
	if len(invoices) > 0 || externalTxns != nil {
		for invoiceID, txns := range localByInvoice {
			if confirmedInvoices[invoiceID] {
				continue
			}
			for _, txn := range txns {
				report.PhantomLocal = append(report.PhantomLocal, txn.ExternalID)
			}
		}
	}

	sort.Strings(report.MissingLocally)
	sort.Strings(report.PhantomLocal)
	sort.Strings(report.Unattributed)
	return report
}

// Package attribution maps raw platform transactions to owning clients.
// Every join is indirect: the transaction only carries a reference id and a
// reference kind, and the owner lives on the referenced entity.
package attribution

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"fulfillbill/internal/logger"
	"fulfillbill/pkg/models"
)

// Outcome classifies one resolution attempt.
type Outcome string

const (
	// OutcomeResolved means a direct join found the owner.
	OutcomeResolved Outcome = "resolved"

	// OutcomeInherited means the owner was inherited from an attributed
	// sibling on the same platform invoice.
	OutcomeInherited Outcome = "inherited"

	// OutcomeExcluded marks tenant-direct records (platform payments,
	// credits) that never belong on a client invoice.
	OutcomeExcluded Outcome = "excluded"

	// OutcomeParseMiss means the free-text order reference in a return
	// comment could not be extracted. Reportable, not silent.
	OutcomeParseMiss Outcome = "parse_miss"

	// OutcomeUnresolved means no join and no sibling produced an owner.
	// The transaction stays unattributed and the validator surfaces it.
	OutcomeUnresolved Outcome = "unresolved"

	// OutcomeAlreadyAttributed means the transaction had an owner before
	// this run. Attribution is never changed by re-running.
	OutcomeAlreadyAttributed Outcome = "already_attributed"
)

// Resolution is the result of resolving one transaction.
type Resolution struct {
	ClientID *uuid.UUID
	Outcome  Outcome
	Detail   string
}

// Lookup sources, implemented by the store and by test fakes. A (nil, nil)
// return means the source has no record for the key.
type (
	ShipmentSource interface {
		ClientForShipment(ctx context.Context, shipmentID string) (*uuid.UUID, error)
	}
	ReceivingOrderSource interface {
		ClientForReceivingOrder(ctx context.Context, orderID string) (*uuid.UUID, error)
	}
	OrderSource interface {
		ClientForOrderNumber(ctx context.Context, orderNumber string) (*uuid.UUID, error)
	}
	InventorySource interface {
		ClientForInventory(ctx context.Context, inventoryID string) (*uuid.UUID, error)
	}
	SiblingSource interface {
		AttributedSibling(ctx context.Context, externalInvoiceID string) (*uuid.UUID, error)
	}
)

// Sources bundles every lookup the resolver needs.
type Sources struct {
	Shipments       ShipmentSource
	ReceivingOrders ReceivingOrderSource
	Orders          OrderSource
	Inventory       InventorySource
	Siblings        SiblingSource
}

// Resolver attributes transactions to clients.
type Resolver struct {
	src Sources
}

// NewResolver creates a resolver over the given sources.
func NewResolver(src Sources) *Resolver {
	return &Resolver{src: src}
}

// orderRefPattern extracts an order number embedded in return comments,
// e.g. "Return for order #SO-123456" or "order: 98765".
var orderRefPattern = regexp.MustCompile(`(?i)order\s*[#:]?\s*([A-Za-z0-9][A-Za-z0-9_-]*)`)

// Resolve determines the owning client for one transaction. It never
// mutates the transaction and never guesses: an unresolvable transaction
// comes back OutcomeUnresolved with a nil client.
func (r *Resolver) Resolve(ctx context.Context, txn models.Transaction) (Resolution, error) {
	const op = "Resolve"
	log := logger.WithComponent("attribution")

	if txn.Attributed() {
		return Resolution{ClientID: txn.ClientID, Outcome: OutcomeAlreadyAttributed}, nil
	}
	if txn.Excluded {
		return Resolution{Outcome: OutcomeExcluded}, nil
	}

	switch txn.ReferenceKind {
	case models.RefShipment:
		clientID, err := r.src.Shipments.ClientForShipment(ctx, txn.ReferenceID)
		if err != nil {
			return Resolution{}, fmt.Errorf("%s: shipment %s: %w", op, txn.ReferenceID, err)
		}
		if clientID != nil {
			return Resolution{ClientID: clientID, Outcome: OutcomeResolved}, nil
		}

	case models.RefReceivingOrder:
		clientID, err := r.src.ReceivingOrders.ClientForReceivingOrder(ctx, txn.ReferenceID)
		if err != nil {
			return Resolution{}, fmt.Errorf("%s: receiving order %s: %w", op, txn.ReferenceID, err)
		}
		if clientID != nil {
			return Resolution{ClientID: clientID, Outcome: OutcomeResolved}, nil
		}

	case models.RefReturn:
		orderNumber, ok := extractOrderRef(txn.Comment)
		if !ok {
			log.Warn().
				Str("transaction_id", txn.ExternalID).
				Str("comment", txn.Comment).
				Msg("Could not extract order reference from return comment")
			if res, err := r.inheritFromSibling(ctx, txn); err != nil || res != nil {
				return deref(res), err
			}
			return Resolution{Outcome: OutcomeParseMiss, Detail: txn.Comment}, nil
		}
		clientID, err := r.src.Orders.ClientForOrderNumber(ctx, orderNumber)
		if err != nil {
			return Resolution{}, fmt.Errorf("%s: order %s: %w", op, orderNumber, err)
		}
		if clientID != nil {
			return Resolution{ClientID: clientID, Outcome: OutcomeResolved, Detail: orderNumber}, nil
		}

	case models.RefInventoryLocation:
		inventoryID, ok := inventoryIDFromReference(txn.ReferenceID)
		if !ok {
			return Resolution{Outcome: OutcomeParseMiss, Detail: txn.ReferenceID}, nil
		}
		clientID, err := r.src.Inventory.ClientForInventory(ctx, inventoryID)
		if err != nil {
			return Resolution{}, fmt.Errorf("%s: inventory %s: %w", op, inventoryID, err)
		}
		if clientID != nil {
			return Resolution{ClientID: clientID, Outcome: OutcomeResolved, Detail: inventoryID}, nil
		}

	case models.RefTenantDirect:
		// Platform-level payments and credits are never billed to a client.
		return Resolution{Outcome: OutcomeExcluded}, nil
	}

	if res, err := r.inheritFromSibling(ctx, txn); err != nil || res != nil {
		return deref(res), err
	}
	return Resolution{Outcome: OutcomeUnresolved}, nil
}

// inheritFromSibling falls back to the client of an attributed transaction
// sharing the same platform invoice. Used only when no direct join resolves.
func (r *Resolver) inheritFromSibling(ctx context.Context, txn models.Transaction) (*Resolution, error) {
	if txn.ExternalInvoiceID == nil {
		return nil, nil
	}
	clientID, err := r.src.Siblings.AttributedSibling(ctx, *txn.ExternalInvoiceID)
	if err != nil {
		return nil, fmt.Errorf("sibling lookup for invoice %s: %w", *txn.ExternalInvoiceID, err)
	}
	if clientID == nil {
		return nil, nil
	}
	return &Resolution{ClientID: clientID, Outcome: OutcomeInherited, Detail: *txn.ExternalInvoiceID}, nil
}

func deref(r *Resolution) Resolution {
	if r == nil {
		return Resolution{}
	}
	return *r
}

// extractOrderRef pulls an order number out of free text. Best effort by
// nature; a miss is a first-class outcome, not a silent fallback.
func extractOrderRef(comment string) (string, bool) {
	m := orderRefPattern.FindStringSubmatch(comment)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// inventoryIDFromReference unpacks the composite inventory reference
// "facility:inventory:locationType" and returns the inventory id.
func inventoryIDFromReference(ref string) (string, bool) {
	parts := strings.Split(ref, ":")
	if len(parts) != 3 || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

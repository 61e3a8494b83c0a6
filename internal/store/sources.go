package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Attribution source lookups. Each resolves an external reference to the
// owning client against the synced source tables. A nil result with no
// error means the source simply has no record.

func (s *Store) clientFor(ctx context.Context, op, query, key string) (*uuid.UUID, error) {
	var clientID uuid.UUID
	err := s.Pool.QueryRow(ctx, query, key).Scan(&clientID)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &clientID, nil
}

// ClientForShipment resolves an external shipment id to its client.
func (s *Store) ClientForShipment(ctx context.Context, shipmentID string) (*uuid.UUID, error) {
	return s.clientFor(ctx, "ClientForShipment",
		`SELECT client_id FROM shipments WHERE external_id = $1`, shipmentID)
}

// ClientForReceivingOrder resolves an external receiving order id.
func (s *Store) ClientForReceivingOrder(ctx context.Context, orderID string) (*uuid.UUID, error) {
	return s.clientFor(ctx, "ClientForReceivingOrder",
		`SELECT client_id FROM receiving_orders WHERE external_id = $1`, orderID)
}

// ClientForOrderNumber resolves an order number (as extracted from return
// comments) to its client.
func (s *Store) ClientForOrderNumber(ctx context.Context, orderNumber string) (*uuid.UUID, error) {
	return s.clientFor(ctx, "ClientForOrderNumber",
		`SELECT client_id FROM orders WHERE order_number = $1`, orderNumber)
}

// ClientForInventory resolves an inventory id against the synced
// inventory-to-client index.
func (s *Store) ClientForInventory(ctx context.Context, inventoryID string) (*uuid.UUID, error) {
	return s.clientFor(ctx, "ClientForInventory",
		`SELECT client_id FROM inventory_index WHERE inventory_id = $1`, inventoryID)
}

// Package store is the backing relational store. All writes are upserts
// keyed on a stable external identifier, and every multi-row read paginates
// past the store's per-query row cap.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Common store errors
var (
	// ErrNotFound is returned when a single-row lookup matches nothing.
	ErrNotFound = errors.New("record not found")

	// ErrInvoiceNumberCollision is returned when a generated invoice number
	// already exists. Fatal for that generation attempt.
	ErrInvoiceNumberCollision = errors.New("invoice number collision")
)

// Store wraps the connection pool. Repositories hang off it so one pool is
// shared by every job stage.
type Store struct {
	Pool     *pgxpool.Pool
	pageSize int
}

// New creates a Store with the given read page size.
func New(pool *pgxpool.Pool, pageSize int) *Store {
	if pageSize <= 0 {
		pageSize = 500
	}
	return &Store{Pool: pool, pageSize: pageSize}
}

// Connect opens a pgx pool against the given database URL.
func Connect(ctx context.Context, databaseURL string, pageSize int) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to store: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging store: %w", err)
	}
	return New(pool, pageSize), nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.Pool.Close()
}

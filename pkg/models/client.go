package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Client is a paying tenant.
type Client struct {
	ID        uuid.UUID
	Name      string
	ShortCode string // Used to build invoice numbers, e.g. "ACME"
	// NextSequence is the next invoice sequence number for this client.
	// It is only ever advanced by the store's atomic allocation step.
	NextSequence int64
	Active       bool
	CreatedAt    time.Time
}

// MarkupKind selects how a rule converts a base cost into a markup.
type MarkupKind string

const (
	MarkupPercentage MarkupKind = "percentage"
	MarkupFixed      MarkupKind = "fixed"
)

// MarkupRule is a conditional pricing rule. Nil condition fields are
// wildcards; multiple rules may match one transaction and the most specific
// active rule wins.
type MarkupRule struct {
	ID uuid.UUID

	// Conditions. Nil means the rule does not constrain that dimension.
	ClientID    *uuid.UUID // nil = global rule
	Category    *string
	FeeType     *string
	ServiceTier *string
	WeightMin   *decimal.Decimal // inclusive, in the platform's weight unit
	WeightMax   *decimal.Decimal // inclusive

	Kind  MarkupKind
	Value decimal.Decimal // percent (e.g. 15 for 15%) or fixed amount

	Active     bool
	ValidFrom  *time.Time
	ValidUntil *time.Time
	CreatedAt  time.Time
}

package billing

import "errors"

// Common billing errors
var (
	// ErrRoundingResidual is returned when a category's rounding residual
	// exceeds the adjustment tolerance. That is a data-integrity defect,
	// not something to paper over; generation must not proceed past it.
	ErrRoundingResidual = errors.New("rounding residual beyond tolerance")

	// ErrNoLineItems is returned when an invoice would have nothing on it.
	ErrNoLineItems = errors.New("no line items for period")
)

package billing

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"fulfillbill/internal/logger"
	"fulfillbill/pkg/models"
)

// MaxRoundingAdjustment bounds the per-category rounding correction, in
// currency minor units. The residual between "sum of rounded lines" and
// "round of the summed lines" is legitimately a penny or two; anything
// larger means a real calculation error and must abort, not be absorbed.
var MaxRoundingAdjustment = decimal.NewFromFloat(0.05)

// Aggregate groups line items by display category and reconciles rounding
// so that each category's billed total equals the sum of its rounded line
// items exactly, and the grand totals equal the sum of category totals.
//
// The residual, when within tolerance, is pushed into the category's
// largest-magnitude line item. That item's markup and billed amounts move
// together so the per-line invariant holds after adjustment. The trade-off
// is explicit: matching the externally reported total exactly beats keeping
// every per-line value untouched.
func Aggregate(items []models.LineItem) ([]models.CategoryTotal, []models.LineItem, error) {
	const op = "Aggregate"
	log := logger.WithComponent("billing")

	byCategory := make(map[string][]int)
	for i, item := range items {
		byCategory[item.Category] = append(byCategory[item.Category], i)
	}

	adjusted := make([]models.LineItem, len(items))
	copy(adjusted, items)

	categories := make([]string, 0, len(byCategory))
	for c := range byCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	totals := make([]models.CategoryTotal, 0, len(categories))
	for _, category := range categories {
		idxs := byCategory[category]

		raw := decimal.Zero     // unrounded sum of base+surcharge+markup
		rounded := decimal.Zero // sum of per-line rounded billed amounts
		largest := idxs[0]
		for _, i := range idxs {
			item := adjusted[i]
			raw = raw.Add(item.BaseAmount).Add(item.Surcharge).Add(item.MarkupAmount)
			rounded = rounded.Add(item.BilledAmount)
			if item.BilledAmount.Abs().GreaterThan(adjusted[largest].BilledAmount.Abs()) {
				largest = i
			}
		}

		residual := raw.Round(2).Sub(rounded)
		if !residual.IsZero() {
			if residual.Abs().GreaterThan(MaxRoundingAdjustment) {
				return nil, nil, fmt.Errorf("%s: category %s residual %s: %w",
					op, category, residual.String(), ErrRoundingResidual)
			}
			log.Debug().
				Str("category", category).
				Str("residual", residual.String()).
				Str("transaction_id", adjusted[largest].TransactionID).
				Msg("Absorbing rounding residual into largest line item")
			adjusted[largest].MarkupAmount = adjusted[largest].MarkupAmount.Add(residual)
			adjusted[largest].BilledAmount = adjusted[largest].BilledAmount.Add(residual)
		}

		total := models.CategoryTotal{Category: category, Count: len(idxs),
			Base: decimal.Zero, Surcharge: decimal.Zero, Markup: decimal.Zero,
			Tax: decimal.Zero, Billed: decimal.Zero}
		for _, i := range idxs {
			item := adjusted[i]
			total.Base = total.Base.Add(item.BaseAmount)
			total.Surcharge = total.Surcharge.Add(item.Surcharge)
			total.Markup = total.Markup.Add(item.MarkupAmount)
			total.Billed = total.Billed.Add(item.BilledAmount)
		}
		total.Base = total.Base.Round(2)
		total.Surcharge = total.Surcharge.Round(2)
		total.Markup = total.Markup.Round(2)
		total.Billed = total.Billed.Round(2)
		totals = append(totals, total)
	}

	return totals, adjusted, nil
}

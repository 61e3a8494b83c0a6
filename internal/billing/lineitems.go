// Package billing turns attributed transactions into invoice line items,
// aggregates them into category totals whose pennies add up, and assembles
// the final invoice.
package billing

import (
	"strings"

	"github.com/google/uuid"

	"fulfillbill/internal/markup"
	"fulfillbill/pkg/models"
)

// DisplayCategory maps a platform billing category and fee type onto the
// grouping shown on the invoice. Display grouping is deliberately coarser
// than the platform's matching categories.
func DisplayCategory(txn models.Transaction) string {
	if txn.IsCredit() {
		return "Credits"
	}
	switch strings.ToLower(txn.Category) {
	case "fulfillment", "pick", "pack":
		return "Fulfillment"
	case "shipping", "postage", "freight":
		return "Shipping"
	case "storage", "warehousing":
		return "Storage"
	case "returns", "return processing":
		return "Returns"
	case "receiving", "wro":
		return "Receiving"
	default:
		return "Other"
	}
}

// BuildLineItems applies markup rules to a client's transactions. Every
// transaction produces a visible line item, including zero-markup and
// no-matching-rule cases, so the audit trail stays complete.
func BuildLineItems(txns []models.Transaction, rules []models.MarkupRule, clientID uuid.UUID) []models.LineItem {
	items := make([]models.LineItem, 0, len(txns))
	for _, txn := range txns {
		ctx := markup.Context{
			ClientID:    clientID,
			Category:    txn.Category,
			FeeType:     txn.FeeType,
			ServiceTier: txn.ServiceTier,
			Weight:      txn.Weight,
		}
		rule := markup.Match(rules, ctx, txn.ChargedAt)
		markupAmount, pct := markup.Apply(rule, txn.Amount)

		item := models.LineItem{
			TransactionID: txn.ExternalID,
			Category:      DisplayCategory(txn),
			Description:   txn.FeeType,
			BaseAmount:    txn.Amount,
			Surcharge:     txn.Surcharge,
			MarkupAmount:  markupAmount,
			MarkupPercent: pct,
			IsCredit:      txn.IsCredit(),
		}
		if rule != nil {
			id := rule.ID
			item.RuleID = &id
		}
		item.BilledAmount = item.BaseAmount.Add(item.Surcharge).Add(item.MarkupAmount).Round(2)
		items = append(items, item)
	}
	return items
}

package pricing

import (
	"fmt"
	"time"

	"ms-checkout/internal/models"
)

// PromoResult reports whether a promo code applied and why not when it
// didn't. An invalid code never aborts a checkout; it degrades to a zero
// discount plus the reason.
type PromoResult struct {
	Valid       bool
	Reason      string
	Discount    int64
	PromoCodeID string
	Code        string
}

// Quote is the fully priced cart: line subtotals, promo discount, buyer-payer
// fees and the grand total, all in minor currency units.
type Quote struct {
	Lines     []models.PricedLine
	Subtotal  int64
	Promo     PromoResult
	Fees      []models.FeeLine
	TotalFees int64
	Total     int64
}

// Line is a validated cart line with its authoritative unit price.
type Line struct {
	TicketTypeID   string
	TicketTypeName string
	UnitPrice      int64
	Quantity       int
}

// Price computes a quote from validated cart lines, an optional promo code
// record (nil when the code was not found) and the fee schedule. It is a
// pure function of its inputs; nothing here touches a store.
func Price(lines []Line, promo *models.PromoCode, promoRequested bool, fees []models.Fee, now time.Time) Quote {
	quote := Quote{Lines: make([]models.PricedLine, 0, len(lines))}

	var unitCount int
	for _, line := range lines {
		lineSubtotal := line.UnitPrice * int64(line.Quantity)
		quote.Lines = append(quote.Lines, models.PricedLine{
			TicketTypeID:   line.TicketTypeID,
			TicketTypeName: line.TicketTypeName,
			UnitPrice:      line.UnitPrice,
			Quantity:       line.Quantity,
			LineSubtotal:   lineSubtotal,
		})
		quote.Subtotal += lineSubtotal
		unitCount += line.Quantity
	}

	if promoRequested {
		quote.Promo = evaluatePromo(promo, lines, quote.Subtotal, now)
	}

	base := quote.Subtotal - quote.Promo.Discount
	for _, fee := range fees {
		if !fee.Active || fee.Payer != models.FeePayerBuyer {
			continue
		}

		var amount int64
		switch fee.Type {
		case models.FeeTypePercent:
			amount = roundPercent(base, fee.Amount)
		case models.FeeTypeFixed, models.FeeTypePerOrder:
			amount = fee.Amount
		case models.FeeTypePerTicket:
			amount = fee.Amount * int64(unitCount)
		default:
			continue
		}

		if fee.Cap > 0 && amount > fee.Cap {
			amount = fee.Cap
		}
		if amount <= 0 {
			continue
		}

		quote.Fees = append(quote.Fees, models.FeeLine{
			Name:   fee.Name,
			Type:   fee.Type,
			Amount: amount,
		})
		quote.TotalFees += amount
	}

	quote.Total = quote.Subtotal - quote.Promo.Discount + quote.TotalFees
	return quote
}

// evaluatePromo walks the validation rules in order and stops at the first
// failure. Every failure is non-fatal: the result carries the reason and a
// zero discount.
func evaluatePromo(promo *models.PromoCode, lines []Line, subtotal int64, now time.Time) PromoResult {
	result := PromoResult{}

	if promo == nil {
		result.Reason = "Promo code not found"
		return result
	}
	result.Code = promo.Code

	if !promo.Active {
		result.Reason = "Promo code is not active"
		return result
	}
	// Zero bounds mean no validity window on that side.
	if !promo.ValidFrom.IsZero() && now.Before(promo.ValidFrom) {
		result.Reason = "Promo code is not yet valid"
		return result
	}
	if !promo.ValidTo.IsZero() && now.After(promo.ValidTo) {
		result.Reason = "Promo code has expired"
		return result
	}
	if promo.MaxUses > 0 && promo.CurrentUses >= promo.MaxUses {
		result.Reason = "Promo code usage limit reached"
		return result
	}
	if subtotal < promo.MinOrderValue {
		result.Reason = fmt.Sprintf("Order subtotal below promo minimum of %d", promo.MinOrderValue)
		return result
	}
	if len(promo.AppliesToTicketTypeIDs) > 0 && !anyLineApplies(promo.AppliesToTicketTypeIDs, lines) {
		result.Reason = "Promo code does not apply to any item in the cart"
		return result
	}

	var discount int64
	switch promo.Type {
	case models.PromoTypePercent:
		discount = roundPercent(subtotal, promo.Amount)
	case models.PromoTypeFixed:
		discount = promo.Amount
	default:
		result.Reason = fmt.Sprintf("Unsupported promo type: %s", promo.Type)
		return result
	}

	// A discount can never make the order negative.
	if discount > subtotal {
		discount = subtotal
	}
	if discount < 0 {
		discount = 0
	}

	result.Valid = true
	result.Discount = discount
	result.PromoCodeID = promo.ID
	return result
}

func anyLineApplies(allowed []string, lines []Line) bool {
	allowedSet := make(map[string]bool, len(allowed))
	for _, id := range allowed {
		allowedSet[id] = true
	}
	for _, line := range lines {
		if allowedSet[line.TicketTypeID] {
			return true
		}
	}
	return false
}

// roundPercent computes base*percent/100 on integers, rounding half away
// from zero. Monetary math never goes through floating point.
func roundPercent(base, percent int64) int64 {
	product := base * percent
	quotient := product / 100
	remainder := product % 100
	if remainder < 0 {
		remainder = -remainder
	}
	if remainder*2 >= 100 {
		if product < 0 {
			quotient--
		} else {
			quotient++
		}
	}
	return quotient
}

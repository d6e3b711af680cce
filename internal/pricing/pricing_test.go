package pricing_test

import (
	"testing"
	"time"

	"ms-checkout/internal/models"
	"ms-checkout/internal/pricing"

	"github.com/stretchr/testify/assert"
)

var now = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func activePromo() *models.PromoCode {
	return &models.PromoCode{
		ID:        "promo-1",
		Code:      "SAVE10",
		Type:      models.PromoTypePercent,
		Amount:    10,
		Active:    true,
		ValidFrom: now.Add(-24 * time.Hour),
		ValidTo:   now.Add(24 * time.Hour),
	}
}

func twoUnitsAtTenEach() []pricing.Line {
	return []pricing.Line{
		{TicketTypeID: "A", TicketTypeName: "GA", UnitPrice: 1000, Quantity: 2},
	}
}

func TestSubtotalWithoutPromoOrFees(t *testing.T) {
	quote := pricing.Price(twoUnitsAtTenEach(), nil, false, nil, now)

	assert.Equal(t, int64(2000), quote.Subtotal)
	assert.Equal(t, int64(0), quote.Promo.Discount)
	assert.Equal(t, int64(0), quote.TotalFees)
	assert.Equal(t, int64(2000), quote.Total)
	assert.Equal(t, int64(2000), quote.Lines[0].LineSubtotal)
}

func TestPercentPromoDiscount(t *testing.T) {
	quote := pricing.Price(twoUnitsAtTenEach(), activePromo(), true, nil, now)

	assert.True(t, quote.Promo.Valid)
	assert.Equal(t, int64(200), quote.Promo.Discount)
	assert.Equal(t, int64(1800), quote.Total)
}

func TestFixedPromoClampedToSubtotal(t *testing.T) {
	promo := activePromo()
	promo.Type = models.PromoTypeFixed
	promo.Amount = 5000

	quote := pricing.Price(twoUnitsAtTenEach(), promo, true, nil, now)

	assert.True(t, quote.Promo.Valid)
	assert.Equal(t, int64(2000), quote.Promo.Discount)
	assert.Equal(t, int64(0), quote.Total)
}

func TestPromoRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*models.PromoCode)
		reason string
	}{
		{"inactive", func(p *models.PromoCode) { p.Active = false }, "Promo code is not active"},
		{"not yet valid", func(p *models.PromoCode) { p.ValidFrom = now.Add(time.Hour) }, "Promo code is not yet valid"},
		{"expired", func(p *models.PromoCode) { p.ValidTo = now.Add(-time.Hour) }, "Promo code has expired"},
		{"exhausted", func(p *models.PromoCode) { p.MaxUses = 3; p.CurrentUses = 3 }, "Promo code usage limit reached"},
		{"below minimum", func(p *models.PromoCode) { p.MinOrderValue = 5000 }, "Order subtotal below promo minimum of 5000"},
		{"allow-list miss", func(p *models.PromoCode) { p.AppliesToTicketTypeIDs = []string{"B"} }, "Promo code does not apply to any item in the cart"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			promo := activePromo()
			tc.mutate(promo)

			quote := pricing.Price(twoUnitsAtTenEach(), promo, true, nil, now)

			assert.False(t, quote.Promo.Valid)
			assert.Equal(t, tc.reason, quote.Promo.Reason)
			assert.Equal(t, int64(0), quote.Promo.Discount)
			assert.Equal(t, int64(2000), quote.Total)
		})
	}
}

func TestPromoCodeNotFound(t *testing.T) {
	quote := pricing.Price(twoUnitsAtTenEach(), nil, true, nil, now)

	assert.False(t, quote.Promo.Valid)
	assert.Equal(t, "Promo code not found", quote.Promo.Reason)
	assert.Equal(t, int64(2000), quote.Total)
}

func TestUnlimitedUsesWhenMaxUsesZero(t *testing.T) {
	promo := activePromo()
	promo.MaxUses = 0
	promo.CurrentUses = 100000

	quote := pricing.Price(twoUnitsAtTenEach(), promo, true, nil, now)
	assert.True(t, quote.Promo.Valid)
}

func TestPromoAllowListMatch(t *testing.T) {
	promo := activePromo()
	promo.AppliesToTicketTypeIDs = []string{"A", "C"}

	quote := pricing.Price(twoUnitsAtTenEach(), promo, true, nil, now)
	assert.True(t, quote.Promo.Valid)
}

func TestBuyerFeesComputedOnDiscountedBase(t *testing.T) {
	fees := []models.Fee{
		{Name: "Service", Type: models.FeeTypePercent, Amount: 5, Payer: models.FeePayerBuyer, Active: true},
		{Name: "Processing", Type: models.FeeTypePerOrder, Amount: 150, Payer: models.FeePayerBuyer, Active: true},
		{Name: "Facility", Type: models.FeeTypePerTicket, Amount: 50, Payer: models.FeePayerBuyer, Active: true},
		{Name: "Platform", Type: models.FeeTypePercent, Amount: 10, Payer: models.FeePayerOrganizer, Active: true},
	}

	quote := pricing.Price(twoUnitsAtTenEach(), activePromo(), true, fees, now)

	// base = 2000 - 200; 5% of 1800 = 90; per_order = 150; per_ticket = 2*50.
	assert.Len(t, quote.Fees, 3)
	assert.Equal(t, int64(90+150+100), quote.TotalFees)
	assert.Equal(t, int64(1800+340), quote.Total)
}

func TestFeeCapAndZeroFeeDropped(t *testing.T) {
	fees := []models.Fee{
		{Name: "Service", Type: models.FeeTypePercent, Amount: 10, Payer: models.FeePayerBuyer, Cap: 120, Active: true},
		{Name: "Nil", Type: models.FeeTypeFixed, Amount: 0, Payer: models.FeePayerBuyer, Active: true},
		{Name: "Dormant", Type: models.FeeTypeFixed, Amount: 500, Payer: models.FeePayerBuyer, Active: false},
	}

	quote := pricing.Price(twoUnitsAtTenEach(), nil, false, fees, now)

	assert.Len(t, quote.Fees, 1)
	assert.Equal(t, "Service", quote.Fees[0].Name)
	assert.Equal(t, int64(120), quote.Fees[0].Amount)
	assert.Equal(t, int64(2120), quote.Total)
}

func TestPercentRoundingHalfAwayFromZero(t *testing.T) {
	// 3% of 1050 = 31.5 → rounds to 32, not 31.
	lines := []pricing.Line{{TicketTypeID: "A", UnitPrice: 1050, Quantity: 1}}
	fees := []models.Fee{
		{Name: "Service", Type: models.FeeTypePercent, Amount: 3, Payer: models.FeePayerBuyer, Active: true},
	}

	quote := pricing.Price(lines, nil, false, fees, now)
	assert.Equal(t, int64(32), quote.Fees[0].Amount)
}

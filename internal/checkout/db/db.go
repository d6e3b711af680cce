package db

import (
	"context"
	"fmt"

	"ms-checkout/internal/models"

	"github.com/uptrace/bun"
)

// DB is the durable store behind checkout: events, ticket types, promo
// codes, the fee schedule, orders and order items. Inventory counters are
// not touched here; that is the ledger's job.
type DB struct {
	Bun *bun.DB
}

func (d *DB) GetEventByID(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (d *DB) GetTicketTypeByID(ctx context.Context, id string) (*models.TicketType, error) {
	var tt models.TicketType
	err := d.Bun.NewSelect().
		Model(&tt).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &tt, nil
}

func (d *DB) GetPromoCodeByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	var promo models.PromoCode
	err := d.Bun.NewSelect().
		Model(&promo).
		Where("code = ?", code).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &promo, nil
}

// IncrementPromoUsage bumps current_uses by one, guarded so a concurrent
// burst of completions cannot push usage past max_uses.
func (d *DB) IncrementPromoUsage(ctx context.Context, promoID string) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.PromoCode)(nil)).
		Set("current_uses = current_uses + 1").
		Where("id = ?", promoID).
		Where("max_uses = 0 OR current_uses < max_uses").
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("promo code %s exhausted or missing", promoID)
	}
	return nil
}

func (d *DB) ListActiveFees(ctx context.Context) ([]models.Fee, error) {
	var fees []models.Fee
	err := d.Bun.NewSelect().
		Model(&fees).
		Where("active = ?", true).
		Order("name").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return fees, nil
}

func (d *DB) CreateOrder(ctx context.Context, order *models.Order) error {
	_, err := d.Bun.NewInsert().Model(order).Exec(ctx)
	return err
}

func (d *DB) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	_, err := d.Bun.NewInsert().Model(item).Exec(ctx)
	return err
}

func (d *DB) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("order_id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (d *DB) GetOrderItemsByOrder(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := d.Bun.NewSelect().
		Model(&items).
		Where("order_id = ?", orderID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return items, nil
}

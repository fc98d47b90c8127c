package repository

import (
	"context"

	"keyshop-bot/internal/model"
)

// ShopRepository owns all persisted shop state: key inventory, orders and
// the panel reference. Every method is atomic with respect to the others.
type ShopRepository interface {
	// Counts returns the number of available keys per tier.
	Counts(ctx context.Context) (model.Stock, error)

	// Keys returns the keys of a tier in delivery order.
	Keys(ctx context.Context, tier model.Tier) ([]string, error)

	// AddKey appends key to the tier and returns the new tier count.
	AddKey(ctx context.Context, tier model.Tier, key string) (int, error)

	// CreateOrder persists a pending order if the tier still has enough keys.
	CreateOrder(ctx context.Context, order *model.Order) error

	// FulfillOrder finds the pending order matching note and amount, removes
	// its keys from the head of the tier and marks it paid in one step.
	FulfillOrder(ctx context.Context, note string, amount int64) (*model.Order, error)

	// ExpireOrder moves a pending order to expired.
	ExpireOrder(ctx context.Context, orderID string) (*model.Order, error)

	// MarkDelivered records that a paid order's keys reached the buyer.
	MarkDelivered(ctx context.Context, orderID string) error

	// Order returns a single order by id.
	Order(ctx context.Context, orderID string) (*model.Order, error)

	// ListOrders returns orders in creation order.
	ListOrders(ctx context.Context, filter model.OrderFilter) ([]*model.Order, error)

	// Panel returns the current panel reference (zero value if none).
	Panel(ctx context.Context) (model.PanelRef, error)

	// SetPanel overwrites the panel reference.
	SetPanel(ctx context.Context, ref model.PanelRef) error

	// Ping checks the backing storage is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying storage.
	Close() error
}

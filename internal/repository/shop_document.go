package repository

import (
	"fmt"

	"keyshop-bot/internal/model"
)

// document is the whole shop as one record. The JSON file store writes it to
// disk and the MongoDB store keeps it in a single versioned document.
type document struct {
	Keys           map[model.Tier][]string `json:"keys" bson:"keys"`
	Orders         []*model.Order          `json:"orders" bson:"orders"`
	PanelMessageID string                  `json:"panelMessageId" bson:"panelMessageId"`
	PanelChannelID string                  `json:"panelChannelId" bson:"panelChannelId"`
}

func newDocument() *document {
	d := &document{Keys: make(map[model.Tier][]string), Orders: []*model.Order{}}
	d.normalize()
	return d
}

// normalize makes sure every tier has a (possibly empty) key list.
func (d *document) normalize() {
	if d.Keys == nil {
		d.Keys = make(map[model.Tier][]string)
	}
	for _, t := range model.Tiers {
		if d.Keys[t] == nil {
			d.Keys[t] = []string{}
		}
	}
	if d.Orders == nil {
		d.Orders = []*model.Order{}
	}
}

// validate rejects documents carrying unknown tiers.
func (d *document) validate() error {
	for t := range d.Keys {
		if !t.Valid() {
			return fmt.Errorf("%w: %q", model.ErrInvalidTier, t)
		}
	}
	return nil
}

func (d *document) clone() *document {
	c := &document{
		Keys:           make(map[model.Tier][]string, len(d.Keys)),
		Orders:         make([]*model.Order, len(d.Orders)),
		PanelMessageID: d.PanelMessageID,
		PanelChannelID: d.PanelChannelID,
	}
	for t, keys := range d.Keys {
		c.Keys[t] = append([]string{}, keys...)
	}
	for i, o := range d.Orders {
		c.Orders[i] = o.Clone()
	}
	return c
}

func (d *document) find(orderID string) *model.Order {
	for _, o := range d.Orders {
		if o.ID == orderID {
			return o
		}
	}
	return nil
}

func (d *document) counts() model.Stock {
	stock := make(model.Stock, len(model.Tiers))
	for _, t := range model.Tiers {
		stock[t] = len(d.Keys[t])
	}
	return stock
}

func (d *document) addKey(tier model.Tier, key string) int {
	d.Keys[tier] = append(d.Keys[tier], key)
	return len(d.Keys[tier])
}

func (d *document) createOrder(order *model.Order) error {
	if len(d.Keys[order.Tier]) < order.Quantity {
		return model.ErrInsufficientInventory
	}
	if d.find(order.ID) != nil {
		return fmt.Errorf("order %s already exists", order.ID)
	}
	d.Orders = append(d.Orders, order.Clone())
	return nil
}

// fulfill pays the first pending order matching note and amount with keys
// taken from the head of its tier.
func (d *document) fulfill(note string, amount int64) (*model.Order, error) {
	var order *model.Order
	for _, o := range d.Orders {
		if o.Matches(note, amount) {
			order = o
			break
		}
	}
	if order == nil {
		return nil, model.ErrOrderNotFound
	}

	available := d.Keys[order.Tier]
	if len(available) < order.Quantity {
		return nil, model.ErrInsufficientInventory
	}
	consumed := append([]string{}, available[:order.Quantity]...)
	d.Keys[order.Tier] = append([]string{}, available[order.Quantity:]...)

	if err := order.MarkPaid(consumed); err != nil {
		return nil, err
	}
	return order.Clone(), nil
}

func (d *document) expire(orderID string) (*model.Order, error) {
	o := d.find(orderID)
	if o == nil {
		return nil, model.ErrOrderNotFound
	}
	if err := o.Expire(); err != nil {
		return nil, err
	}
	return o.Clone(), nil
}

func (d *document) markDelivered(orderID string) error {
	o := d.find(orderID)
	if o == nil {
		return model.ErrOrderNotFound
	}
	return o.MarkDelivered()
}

func (d *document) order(orderID string) (*model.Order, error) {
	o := d.find(orderID)
	if o == nil {
		return nil, model.ErrOrderNotFound
	}
	return o.Clone(), nil
}

func (d *document) listOrders(filter model.OrderFilter) []*model.Order {
	orders := make([]*model.Order, 0, len(d.Orders))
	for _, o := range d.Orders {
		if filter.Match(o) {
			orders = append(orders, o.Clone())
		}
	}
	return orders
}

func (d *document) panel() model.PanelRef {
	return model.PanelRef{ChannelID: d.PanelChannelID, MessageID: d.PanelMessageID}
}

func (d *document) setPanel(ref model.PanelRef) {
	d.PanelChannelID = ref.ChannelID
	d.PanelMessageID = ref.MessageID
}

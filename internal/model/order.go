package model

import "time"

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	StatusPending OrderStatus = "pending"
	StatusPaid    OrderStatus = "paid"
	StatusExpired OrderStatus = "expired"
)

// Order is a buyer's request for a quantity of keys at a tier.
// Total is fixed at creation and must equal the reported transfer amount.
type Order struct {
	ID        string      `json:"orderId" bson:"orderId"`
	UserID    string      `json:"userId" bson:"userId"`
	Tier      Tier        `json:"type" bson:"type"`
	Quantity  int         `json:"quantity" bson:"quantity"`
	Total     int64       `json:"total" bson:"total"`
	Status    OrderStatus `json:"status" bson:"status"`
	Keys      []string    `json:"keys,omitempty" bson:"keys,omitempty"`
	Delivered bool        `json:"delivered,omitempty" bson:"delivered,omitempty"`
	CreatedAt time.Time   `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt" bson:"updatedAt"`
}

// NewOrder builds a pending order with its total computed from the tier price.
func NewOrder(id, userID string, tier Tier, quantity int) (*Order, error) {
	if !tier.Valid() {
		return nil, ErrInvalidTier
	}
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	now := time.Now().UTC()
	return &Order{
		ID:        id,
		UserID:    userID,
		Tier:      tier,
		Quantity:  quantity,
		Total:     tier.Total(quantity),
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Matches reports whether a transfer with the given note and amount pays for o.
func (o *Order) Matches(note string, amount int64) bool {
	return o.Status == StatusPending && o.ID == note && o.Total == amount
}

// MarkPaid moves a pending order to paid and records the consumed keys.
func (o *Order) MarkPaid(keys []string) error {
	if o.Status != StatusPending {
		return ErrInvalidTransition
	}
	o.Status = StatusPaid
	o.Keys = keys
	o.touch()
	return nil
}

// Expire moves a pending order to expired.
func (o *Order) Expire() error {
	if o.Status != StatusPending {
		return ErrInvalidTransition
	}
	o.Status = StatusExpired
	o.touch()
	return nil
}

// MarkDelivered flags a paid order whose keys reached the buyer.
func (o *Order) MarkDelivered() error {
	if o.Status != StatusPaid {
		return ErrInvalidTransition
	}
	o.Delivered = true
	o.touch()
	return nil
}

// Clone returns a deep copy so callers never share store-owned slices.
func (o *Order) Clone() *Order {
	c := *o
	if o.Keys != nil {
		c.Keys = append([]string(nil), o.Keys...)
	}
	return &c
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}

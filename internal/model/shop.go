package model

// PanelRef locates the single posted purchase panel.
type PanelRef struct {
	ChannelID string `json:"channelId"`
	MessageID string `json:"messageId"`
}

// IsZero reports whether no panel has been set up yet.
func (p PanelRef) IsZero() bool {
	return p.ChannelID == "" || p.MessageID == ""
}

// Stock holds the number of available keys per tier.
type Stock map[Tier]int

// PaymentStatusSuccess is the only provider status that triggers fulfillment.
const PaymentStatusSuccess = "SUCCESS"

// Payment is an inbound bank-transfer notification.
// TransferAmount is in integer minor currency units.
type Payment struct {
	Content        string `json:"content"`
	TransferAmount int64  `json:"transferAmount"`
	Status         string `json:"status"`
}

// Completed reports whether the transfer finished successfully.
func (p Payment) Completed() bool {
	return p.Status == PaymentStatusSuccess
}

// OrderFilter narrows ListOrders results. Zero values match everything.
type OrderFilter struct {
	Status      OrderStatus
	Undelivered bool
}

// Match reports whether o passes the filter.
func (f OrderFilter) Match(o *Order) bool {
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.Undelivered && o.Delivered {
		return false
	}
	return true
}

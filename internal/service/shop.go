package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"keyshop-bot/internal/lock"
	"keyshop-bot/internal/metrics"
	"keyshop-bot/internal/model"
	"keyshop-bot/internal/pkg/logging"
	"keyshop-bot/internal/repository"
	"keyshop-bot/pkg/uid"

	"go.uber.org/zap"
)

// shopLock is the single name every shop mutation is serialized under.
const shopLock = "shop"

// deliveryGrace keeps RetryDeliveries away from orders whose first delivery
// attempt may still be in flight.
const deliveryGrace = 30 * time.Second

// Notifier is implemented by the chat front end.
type Notifier interface {
	// RefreshPanel re-renders the posted panel from current stock.
	RefreshPanel(ctx context.Context) error

	// Deliver sends text privately to the user.
	Deliver(ctx context.Context, userID, text string) error
}

// PaymentOutcome describes what a payment notification did.
type PaymentOutcome string

const (
	PaymentIgnored PaymentOutcome = "ignored"
	PaymentPaid    PaymentOutcome = "paid"
)

// PaymentResult is returned by ConfirmPayment.
type PaymentResult struct {
	Outcome   PaymentOutcome
	Order     *model.Order
	Delivered bool
}

// Shop is the only writer of shop state. Callers go through its narrow API
// instead of touching the repository.
type Shop struct {
	repo     repository.ShopRepository
	locker   lock.Locker
	metrics  *metrics.Metrics
	notifier Notifier
	newID    func() string

	retryAfter time.Duration
}

// NewShop creates a shop service. locker may be nil for an in-process lock.
func NewShop(repo repository.ShopRepository, locker lock.Locker, m *metrics.Metrics) *Shop {
	if locker == nil {
		locker = lock.NewMemoryLocker()
	}
	return &Shop{
		repo:    repo,
		locker:  locker,
		metrics: m,
		newID:   uid.New,

		retryAfter: deliveryGrace,
	}
}

// SetNotifier attaches the chat front end once it exists.
func (s *Shop) SetNotifier(n Notifier) {
	s.notifier = n
}

func (s *Shop) logger(ctx context.Context) *zap.Logger {
	return logging.FromContext(ctx).With(zap.String("component", "shop"))
}

func (s *Shop) withLock(ctx context.Context, fn func() error) error {
	unlock, err := s.locker.Lock(ctx, shopLock)
	if err != nil {
		return fmt.Errorf("failed to lock shop: %w", err)
	}
	defer unlock()
	return fn()
}

// Stock returns available keys per tier.
func (s *Shop) Stock(ctx context.Context) (model.Stock, error) {
	return s.repo.Counts(ctx)
}

// Panel returns the current panel reference.
func (s *Shop) Panel(ctx context.Context) (model.PanelRef, error) {
	return s.repo.Panel(ctx)
}

// SetPanel replaces the tracked panel.
func (s *Shop) SetPanel(ctx context.Context, ref model.PanelRef) error {
	return s.withLock(ctx, func() error {
		return s.repo.SetPanel(ctx, ref)
	})
}

// AddKey appends a raw key to a tier and refreshes the panel.
func (s *Shop) AddKey(ctx context.Context, tierText, key string) (int, error) {
	tier, err := model.ParseTier(tierText)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(key) == "" {
		return 0, model.ErrEmptyKey
	}

	var count int
	err = s.withLock(ctx, func() error {
		count, err = s.repo.AddKey(ctx, tier, key)
		return err
	})
	if err != nil {
		return 0, err
	}

	if s.metrics != nil {
		s.metrics.KeysAdded.WithLabelValues(string(tier)).Inc()
	}
	s.logger(ctx).Info("key_added", zap.String("tier", string(tier)), zap.Int("stock", count))
	s.refreshPanel(ctx)
	return count, nil
}

// ParseQuantity reads a positive integer from form input.
func ParseQuantity(text string) (int, error) {
	q, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || q <= 0 {
		return 0, model.ErrInvalidQuantity
	}
	return q, nil
}

// PlaceOrder validates a purchase request and records a pending order.
func (s *Shop) PlaceOrder(ctx context.Context, userID, tierText, quantityText string) (*model.Order, error) {
	tier, err := model.ParseTier(tierText)
	if err != nil {
		return nil, err
	}
	quantity, err := ParseQuantity(quantityText)
	if err != nil {
		return nil, err
	}

	var order *model.Order
	err = s.withLock(ctx, func() error {
		stock, err := s.repo.Counts(ctx)
		if err != nil {
			return err
		}
		if stock[tier] < quantity {
			return model.ErrInsufficientInventory
		}

		order, err = model.NewOrder(s.newID(), userID, tier, quantity)
		if err != nil {
			return err
		}
		return s.repo.CreateOrder(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.OrdersCreated.WithLabelValues(string(tier)).Inc()
	}
	s.logger(ctx).Info("order_created",
		zap.String("order_id", order.ID),
		zap.String("user_id", userID),
		zap.String("tier", string(tier)),
		zap.Int("quantity", quantity),
		zap.Int64("total", order.Total),
	)
	return order, nil
}

// ConfirmPayment fulfils the order a completed transfer pays for. Delivery
// failures are logged and left for RetryDeliveries; they do not fail the call.
func (s *Shop) ConfirmPayment(ctx context.Context, p model.Payment) (*PaymentResult, error) {
	logger := s.logger(ctx).With(zap.String("reference", p.Content), zap.Int64("amount", p.TransferAmount))

	if !p.Completed() {
		logger.Info("payment_ignored", zap.String("status", p.Status))
		return &PaymentResult{Outcome: PaymentIgnored}, nil
	}

	var order *model.Order
	err := s.withLock(ctx, func() error {
		var err error
		order, err = s.repo.FulfillOrder(ctx, p.Content, p.TransferAmount)
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, model.ErrOrderNotFound):
			logger.Warn("payment_order_not_found")
		case errors.Is(err, model.ErrInsufficientInventory):
			logger.Error("payment_stock_short")
		default:
			logger.Error("payment_fulfill_failed", zap.Error(err))
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.OrdersPaid.WithLabelValues(string(order.Tier)).Inc()
	}
	logger.Info("order_paid",
		zap.String("order_id", order.ID),
		zap.String("user_id", order.UserID),
		zap.Int("keys", len(order.Keys)),
	)

	s.refreshPanel(ctx)
	delivered := s.deliver(ctx, order)

	return &PaymentResult{Outcome: PaymentPaid, Order: order, Delivered: delivered}, nil
}

// ExpireOrder cancels a pending order.
func (s *Shop) ExpireOrder(ctx context.Context, orderID string) (*model.Order, error) {
	var order *model.Order
	err := s.withLock(ctx, func() error {
		var err error
		order, err = s.repo.ExpireOrder(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.OrdersExpired.Inc()
	}
	s.logger(ctx).Info("order_expired", zap.String("order_id", orderID))
	return order, nil
}

// ExpireStale expires pending orders created before now-olderThan. Orders
// without a creation time predate timestamps and are left alone.
func (s *Shop) ExpireStale(ctx context.Context, olderThan time.Duration, now time.Time) (int, error) {
	pending, err := s.repo.ListOrders(ctx, model.OrderFilter{Status: model.StatusPending})
	if err != nil {
		return 0, err
	}

	cutoff := now.Add(-olderThan)
	expired := 0
	for _, o := range pending {
		if o.CreatedAt.IsZero() || !o.CreatedAt.Before(cutoff) {
			continue
		}
		if _, err := s.ExpireOrder(ctx, o.ID); err != nil {
			// paid between the listing and the lock
			if errors.Is(err, model.ErrInvalidTransition) {
				continue
			}
			return expired, err
		}
		expired++
	}
	return expired, nil
}

// RetryDeliveries re-sends keys of paid orders whose delivery failed.
func (s *Shop) RetryDeliveries(ctx context.Context) (int, error) {
	if s.notifier == nil {
		return 0, nil
	}
	orders, err := s.repo.ListOrders(ctx, model.OrderFilter{Status: model.StatusPaid, Undelivered: true})
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, o := range orders {
		if time.Since(o.UpdatedAt) < s.retryAfter {
			continue
		}
		if s.deliver(ctx, o) {
			sent++
		}
	}
	return sent, nil
}

// DeliveryMessage is the private message carrying purchased keys.
func DeliveryMessage(keys []string) string {
	return "Thanh toán thành công!\nKey của bạn:\n" + strings.Join(keys, "\n")
}

func (s *Shop) deliver(ctx context.Context, order *model.Order) bool {
	logger := s.logger(ctx).With(zap.String("order_id", order.ID), zap.String("user_id", order.UserID))
	if s.notifier == nil {
		logger.Warn("delivery_skipped_no_notifier")
		return false
	}

	if err := s.notifier.Deliver(ctx, order.UserID, DeliveryMessage(order.Keys)); err != nil {
		if s.metrics != nil {
			s.metrics.Deliveries.WithLabelValues("failed").Inc()
		}
		logger.Error("delivery_failed", zap.Error(err))
		return false
	}
	if s.metrics != nil {
		s.metrics.Deliveries.WithLabelValues("sent").Inc()
	}

	if err := s.withLock(ctx, func() error { return s.repo.MarkDelivered(ctx, order.ID) }); err != nil {
		logger.Error("delivery_mark_failed", zap.Error(err))
	}
	logger.Info("keys_delivered", zap.Int("keys", len(order.Keys)))
	return true
}

func (s *Shop) refreshPanel(ctx context.Context) {
	if s.metrics != nil {
		if stock, err := s.repo.Counts(ctx); err == nil {
			s.metrics.ObserveStock(stock)
		}
	}
	if s.notifier == nil {
		return
	}
	if err := s.notifier.RefreshPanel(ctx); err != nil {
		s.logger(ctx).Warn("panel_refresh_failed", zap.Error(err))
	}
}

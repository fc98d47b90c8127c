package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"keyshop-bot/internal/model"

	"go.uber.org/zap"
)

func TestSweeperRunNow(t *testing.T) {
	shop, repo, n := newTestShop(t)
	ctx := context.Background()
	stock(t, shop, map[string][]string{"day": {"K1", "K2"}})

	stale, _ := shop.PlaceOrder(ctx, "a", "day", "1")
	paid, _ := shop.PlaceOrder(ctx, "b", "day", "1")
	n.deliverErr = errors.New("dm closed")
	if _, err := shop.ConfirmPayment(ctx, model.Payment{Content: paid.ID, TransferAmount: 10000, Status: "SUCCESS"}); err != nil {
		t.Fatal(err)
	}
	n.deliverErr = nil

	s := NewSweeper(shop, SweeperConfig{Interval: time.Minute, ExpireAfter: time.Hour}, zap.NewNop())
	s.now = func() time.Time { return time.Now().Add(3 * time.Hour) }

	delivered, expired := s.RunNow()
	if delivered != 1 || expired != 1 {
		t.Fatalf("delivered=%d expired=%d, want 1/1", delivered, expired)
	}
	o, _ := repo.Order(ctx, stale.ID)
	if o.Status != model.StatusExpired {
		t.Errorf("stale status = %s", o.Status)
	}
}

func TestSweeperWithoutExpiryKeepsPendingOrders(t *testing.T) {
	shop, repo, _ := newTestShop(t)
	ctx := context.Background()
	stock(t, shop, map[string][]string{"week": {"W1"}})
	o, _ := shop.PlaceOrder(ctx, "a", "week", "1")

	s := NewSweeper(shop, SweeperConfig{}, zap.NewNop())
	s.now = func() time.Time { return time.Now().Add(24 * 365 * time.Hour) }
	if _, expired := s.RunNow(); expired != 0 {
		t.Fatalf("expired = %d with expiry disabled", expired)
	}
	stored, _ := repo.Order(ctx, o.ID)
	if stored.Status != model.StatusPending {
		t.Errorf("status = %s", stored.Status)
	}
}

func TestSweeperStartStop(t *testing.T) {
	shop, _, _ := newTestShop(t)
	s := NewSweeper(shop, SweeperConfig{Interval: time.Hour}, zap.NewNop())
	s.Start()
	s.Start()
	s.Stop()
	s.Stop()
}

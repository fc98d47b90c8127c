package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"keyshop-bot/internal/metrics"
	"keyshop-bot/internal/model"
	"keyshop-bot/internal/repository"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeNotifier struct {
	mu         sync.Mutex
	refreshes  int
	messages   map[string][]string
	deliverErr error
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{messages: make(map[string][]string)}
}

func (n *fakeNotifier) RefreshPanel(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.refreshes++
	return nil
}

func (n *fakeNotifier) Deliver(ctx context.Context, userID, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.deliverErr != nil {
		return n.deliverErr
	}
	n.messages[userID] = append(n.messages[userID], text)
	return nil
}

func (n *fakeNotifier) sent(userID string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages[userID]...)
}

func newTestShop(t *testing.T) (*Shop, repository.ShopRepository, *fakeNotifier) {
	t.Helper()
	repo, err := repository.NewJSONShopRepository(filepath.Join(t.TempDir(), "database.json"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { repo.Close() })

	shop := NewShop(repo, nil, metrics.New(prometheus.NewRegistry()))
	shop.retryAfter = 0
	n := newFakeNotifier()
	shop.SetNotifier(n)
	return shop, repo, n
}

func stock(t *testing.T, shop *Shop, keys map[string][]string) {
	t.Helper()
	for tier, ks := range keys {
		for _, k := range ks {
			if _, err := shop.AddKey(context.Background(), tier, k); err != nil {
				t.Fatalf("AddKey(%s, %s): %v", tier, k, err)
			}
		}
	}
}

func TestPlaceOrder(t *testing.T) {
	shop, repo, _ := newTestShop(t)
	ctx := context.Background()
	stock(t, shop, map[string][]string{"day": {"K1", "K2", "K3"}, "month": {"M1"}})

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		o, err := shop.PlaceOrder(ctx, "buyer", "day", "2")
		if err != nil {
			t.Fatalf("PlaceOrder: %v", err)
		}
		if o.Total != 20000 || o.Status != model.StatusPending || o.Quantity != 2 {
			t.Errorf("order = %+v", o)
		}
		if seen[o.ID] {
			t.Fatalf("duplicate order id %s", o.ID)
		}
		seen[o.ID] = true
	}

	o, err := shop.PlaceOrder(ctx, "buyer", "month", " 1 ")
	if err != nil {
		t.Fatal(err)
	}
	if o.Total != 150000 {
		t.Errorf("month total = %d", o.Total)
	}

	orders, _ := repo.ListOrders(ctx, model.OrderFilter{})
	if len(orders) != 4 {
		t.Errorf("orders = %d, want 4", len(orders))
	}
	// availability is checked, not reserved
	left, _ := shop.Stock(ctx)
	if left[model.TierDay] != 3 {
		t.Errorf("day stock = %d, want 3", left[model.TierDay])
	}
}

func TestPlaceOrderRejectsBadQuantity(t *testing.T) {
	shop, repo, _ := newTestShop(t)
	ctx := context.Background()
	stock(t, shop, map[string][]string{"day": {"K1"}})

	for _, text := range []string{"", "abc", "0", "-1", "1.5", "3abc", "99999999999999999999"} {
		if _, err := shop.PlaceOrder(ctx, "buyer", "day", text); !errors.Is(err, model.ErrInvalidQuantity) {
			t.Errorf("PlaceOrder(%q) error = %v, want ErrInvalidQuantity", text, err)
		}
	}

	if _, err := shop.PlaceOrder(ctx, "buyer", "day", "2"); !errors.Is(err, model.ErrInsufficientInventory) {
		t.Errorf("over stock error = %v", err)
	}
	if _, err := shop.PlaceOrder(ctx, "buyer", "year", "1"); !errors.Is(err, model.ErrInvalidTier) {
		t.Errorf("bad tier error = %v", err)
	}

	orders, _ := repo.ListOrders(ctx, model.OrderFilter{})
	if len(orders) != 0 {
		t.Errorf("orders created on rejected input: %v", orders)
	}
}

func TestConfirmPaymentEndToEnd(t *testing.T) {
	shop, repo, n := newTestShop(t)
	ctx := context.Background()
	stock(t, shop, map[string][]string{"day": {"K1", "K2", "K3"}})

	order, err := shop.PlaceOrder(ctx, "buyer", "day", "2")
	if err != nil {
		t.Fatal(err)
	}
	if order.Total != 20000 {
		t.Fatalf("total = %d", order.Total)
	}
	refreshesBefore := n.refreshes

	res, err := shop.ConfirmPayment(ctx, model.Payment{Content: order.ID, TransferAmount: 20000, Status: "SUCCESS"})
	if err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	if res.Outcome != PaymentPaid || !res.Delivered {
		t.Errorf("result = %+v", res)
	}

	stored, _ := repo.Order(ctx, order.ID)
	if stored.Status != model.StatusPaid || !stored.Delivered {
		t.Errorf("stored order = %+v", stored)
	}
	keys, _ := repo.Keys(ctx, model.TierDay)
	if !reflect.DeepEqual(keys, []string{"K3"}) {
		t.Errorf("remaining = %v", keys)
	}

	msgs := n.sent("buyer")
	if len(msgs) != 1 || !strings.HasSuffix(msgs[0], "K1\nK2") {
		t.Errorf("delivered messages = %q", msgs)
	}
	if n.refreshes != refreshesBefore+1 {
		t.Errorf("panel refreshes = %d, want %d", n.refreshes, refreshesBefore+1)
	}

	// replay of the same notification
	if _, err := shop.ConfirmPayment(ctx, model.Payment{Content: order.ID, TransferAmount: 20000, Status: "SUCCESS"}); !errors.Is(err, model.ErrOrderNotFound) {
		t.Errorf("replay error = %v, want ErrOrderNotFound", err)
	}
	if len(n.sent("buyer")) != 1 {
		t.Error("replay delivered keys again")
	}
}

func TestConfirmPaymentAmountMismatch(t *testing.T) {
	shop, repo, n := newTestShop(t)
	ctx := context.Background()
	stock(t, shop, map[string][]string{"week": {"W1"}})

	order, _ := shop.PlaceOrder(ctx, "buyer", "week", "1")
	if _, err := shop.ConfirmPayment(ctx, model.Payment{Content: order.ID, TransferAmount: 49000, Status: "SUCCESS"}); !errors.Is(err, model.ErrOrderNotFound) {
		t.Fatalf("error = %v, want ErrOrderNotFound", err)
	}

	stored, _ := repo.Order(ctx, order.ID)
	if stored.Status != model.StatusPending {
		t.Errorf("status = %s", stored.Status)
	}
	left, _ := shop.Stock(ctx)
	if left[model.TierWeek] != 1 {
		t.Errorf("week stock = %d", left[model.TierWeek])
	}
	if len(n.sent("buyer")) != 0 {
		t.Error("keys delivered on mismatch")
	}
}

func TestConfirmPaymentIgnoresIncompleteStatus(t *testing.T) {
	shop, repo, _ := newTestShop(t)
	ctx := context.Background()
	stock(t, shop, map[string][]string{"day": {"K1"}})
	order, _ := shop.PlaceOrder(ctx, "buyer", "day", "1")

	for _, status := range []string{"PENDING", "FAILED", "success", ""} {
		res, err := shop.ConfirmPayment(ctx, model.Payment{Content: order.ID, TransferAmount: 10000, Status: status})
		if err != nil {
			t.Fatalf("status %q: %v", status, err)
		}
		if res.Outcome != PaymentIgnored {
			t.Errorf("status %q outcome = %s", status, res.Outcome)
		}
	}
	stored, _ := repo.Order(ctx, order.ID)
	if stored.Status != model.StatusPending {
		t.Errorf("status = %s", stored.Status)
	}
}

func TestDeliveryFailureIsRetried(t *testing.T) {
	shop, repo, n := newTestShop(t)
	ctx := context.Background()
	stock(t, shop, map[string][]string{"month": {"M1"}})
	order, _ := shop.PlaceOrder(ctx, "buyer", "month", "1")

	n.deliverErr = errors.New("cannot send messages to this user")
	res, err := shop.ConfirmPayment(ctx, model.Payment{Content: order.ID, TransferAmount: 150000, Status: "SUCCESS"})
	if err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	if res.Delivered {
		t.Error("delivery reported despite failure")
	}
	stored, _ := repo.Order(ctx, order.ID)
	if stored.Status != model.StatusPaid || stored.Delivered {
		t.Fatalf("stored = %+v", stored)
	}

	shop.retryAfter = time.Hour
	sent, err := shop.RetryDeliveries(ctx)
	if err != nil || sent != 0 {
		t.Fatalf("retry within grace period: sent=%d err=%v", sent, err)
	}
	shop.retryAfter = 0

	sent, err = shop.RetryDeliveries(ctx)
	if err != nil || sent != 0 {
		t.Fatalf("retry while failing: sent=%d err=%v", sent, err)
	}

	n.deliverErr = nil
	sent, err = shop.RetryDeliveries(ctx)
	if err != nil || sent != 1 {
		t.Fatalf("retry: sent=%d err=%v", sent, err)
	}
	if msgs := n.sent("buyer"); len(msgs) != 1 || !strings.Contains(msgs[0], "M1") {
		t.Errorf("messages = %q", msgs)
	}

	sent, _ = shop.RetryDeliveries(ctx)
	if sent != 0 {
		t.Errorf("delivered twice: %d", sent)
	}
	if got := testutil.ToFloat64(shop.metrics.Deliveries.WithLabelValues("failed")); got != 2 {
		t.Errorf("failed deliveries = %v, want 2", got)
	}
}

func TestAddKey(t *testing.T) {
	shop, repo, n := newTestShop(t)
	ctx := context.Background()

	stock(t, shop, map[string][]string{"week": {"W1"}})
	count, err := shop.AddKey(ctx, "week", "  W2 ")
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("count = %d", count)
	}
	keys, _ := repo.Keys(ctx, model.TierWeek)
	if keys[len(keys)-1] != "  W2 " {
		t.Errorf("last key = %q", keys[len(keys)-1])
	}
	if n.refreshes != 2 {
		t.Errorf("refreshes = %d, want 2", n.refreshes)
	}

	if _, err := shop.AddKey(ctx, "week", "   "); !errors.Is(err, model.ErrEmptyKey) {
		t.Errorf("empty key error = %v", err)
	}
	if _, err := shop.AddKey(ctx, "forever", "X"); !errors.Is(err, model.ErrInvalidTier) {
		t.Errorf("bad tier error = %v", err)
	}
}

func TestExpireStaleSkipsUndatedOrders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "database.json")
	legacy := `{
  "keys": {"day": ["K1"], "week": [], "month": []},
  "orders": [
    {"orderId": "legacy-1", "userId": "a", "type": "day", "quantity": 1, "total": 10000, "status": "pending"}
  ]
}`
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}
	repo, err := repository.NewJSONShopRepository(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { repo.Close() })
	shop := NewShop(repo, nil, nil)
	ctx := context.Background()

	n, err := shop.ExpireStale(ctx, time.Hour, time.Now())
	if err != nil || n != 0 {
		t.Fatalf("ExpireStale: n=%d err=%v", n, err)
	}
	stored, err := repo.Order(ctx, "legacy-1")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != model.StatusPending {
		t.Errorf("status = %s, want pending", stored.Status)
	}

	if _, err := shop.ConfirmPayment(ctx, model.Payment{Content: "legacy-1", TransferAmount: 10000, Status: "SUCCESS"}); err != nil {
		t.Fatalf("undated order should remain payable: %v", err)
	}
}

func TestExpireStale(t *testing.T) {
	shop, repo, _ := newTestShop(t)
	ctx := context.Background()
	stock(t, shop, map[string][]string{"day": {"K1", "K2"}})

	old, _ := shop.PlaceOrder(ctx, "a", "day", "1")
	paid, _ := shop.PlaceOrder(ctx, "b", "day", "1")
	if _, err := shop.ConfirmPayment(ctx, model.Payment{Content: paid.ID, TransferAmount: 10000, Status: "SUCCESS"}); err != nil {
		t.Fatal(err)
	}

	n, err := shop.ExpireStale(ctx, time.Hour, time.Now())
	if err != nil || n != 0 {
		t.Fatalf("fresh orders expired: n=%d err=%v", n, err)
	}

	n, err = shop.ExpireStale(ctx, time.Hour, time.Now().Add(2*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("ExpireStale: n=%d err=%v", n, err)
	}
	stored, _ := repo.Order(ctx, old.ID)
	if stored.Status != model.StatusExpired {
		t.Errorf("old order status = %s", stored.Status)
	}
	stored, _ = repo.Order(ctx, paid.ID)
	if stored.Status != model.StatusPaid {
		t.Errorf("paid order status = %s", stored.Status)
	}

	if _, err := shop.ExpireOrder(ctx, paid.ID); !errors.Is(err, model.ErrInvalidTransition) {
		t.Errorf("expire paid: %v", err)
	}
}

func TestConcurrentPaymentsNeverShareKeys(t *testing.T) {
	shop, _, n := newTestShop(t)
	ctx := context.Background()
	stock(t, shop, map[string][]string{"day": {"K1", "K2", "K3"}})

	// both pass the creation-time check; only one can be fulfilled
	a, _ := shop.PlaceOrder(ctx, "alice", "day", "2")
	b, _ := shop.PlaceOrder(ctx, "bob", "day", "2")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, o := range []*model.Order{a, b} {
		wg.Add(1)
		go func(i int, o *model.Order) {
			defer wg.Done()
			_, errs[i] = shop.ConfirmPayment(ctx, model.Payment{Content: o.ID, TransferAmount: o.Total, Status: "SUCCESS"})
		}(i, o)
	}
	wg.Wait()

	ok, short := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, model.ErrInsufficientInventory):
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || short != 1 {
		t.Fatalf("ok=%d short=%d, want 1/1", ok, short)
	}

	delivered := fmt.Sprint(n.sent("alice"), n.sent("bob"))
	if strings.Count(delivered, "K1") != 1 || strings.Count(delivered, "K2") != 1 || strings.Contains(delivered, "K3") {
		t.Errorf("delivered = %s", delivered)
	}
}

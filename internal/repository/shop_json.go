package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"keyshop-bot/internal/model"
)

// JSONShopRepository keeps the whole shop in one JSON document that is
// rewritten on every mutation.
type JSONShopRepository struct {
	path string
	mu   sync.RWMutex
	doc  *document
}

// NewJSONShopRepository loads the document at path. A missing file starts an
// empty shop and is written immediately; a malformed file is an error.
func NewJSONShopRepository(path string) (*JSONShopRepository, error) {
	r := &JSONShopRepository{path: path}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		r.doc = newDocument()
		if err := r.write(r.doc); err != nil {
			return nil, err
		}
		return r, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse store file %s: %w", path, err)
	}
	if err := doc.validate(); err != nil {
		return nil, fmt.Errorf("store file %s: %w", path, err)
	}
	doc.normalize()
	r.doc = &doc
	return r, nil
}

// write persists doc through a temp file and rename so readers never see a
// half-written document.
func (r *JSONShopRepository) write(doc *document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode store: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create store dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".keyshop-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp store file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("failed to replace store file: %w", err)
	}
	return nil
}

// mutate applies fn to a copy of the document and swaps it in only after the
// copy has been written, so a failed save leaves memory and disk in agreement.
func (r *JSONShopRepository) mutate(fn func(d *document) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.doc.clone()
	if err := fn(next); err != nil {
		return err
	}
	if err := r.write(next); err != nil {
		return err
	}
	r.doc = next
	return nil
}

// Counts returns the number of available keys per tier.
func (r *JSONShopRepository) Counts(ctx context.Context) (model.Stock, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.doc.counts(), nil
}

// Keys returns a copy of the tier's key list.
func (r *JSONShopRepository) Keys(ctx context.Context, tier model.Tier) ([]string, error) {
	if !tier.Valid() {
		return nil, model.ErrInvalidTier
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string{}, r.doc.Keys[tier]...), nil
}

// AddKey appends key to the tier.
func (r *JSONShopRepository) AddKey(ctx context.Context, tier model.Tier, key string) (int, error) {
	if !tier.Valid() {
		return 0, model.ErrInvalidTier
	}
	var count int
	err := r.mutate(func(d *document) error {
		count = d.addKey(tier, key)
		return nil
	})
	return count, err
}

// CreateOrder stores a pending order after re-checking availability.
func (r *JSONShopRepository) CreateOrder(ctx context.Context, order *model.Order) error {
	return r.mutate(func(d *document) error {
		return d.createOrder(order)
	})
}

// FulfillOrder consumes keys for the first pending order matching note and amount.
func (r *JSONShopRepository) FulfillOrder(ctx context.Context, note string, amount int64) (*model.Order, error) {
	var paid *model.Order
	err := r.mutate(func(d *document) error {
		var err error
		paid, err = d.fulfill(note, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

// ExpireOrder moves a pending order to expired.
func (r *JSONShopRepository) ExpireOrder(ctx context.Context, orderID string) (*model.Order, error) {
	var expired *model.Order
	err := r.mutate(func(d *document) error {
		var err error
		expired, err = d.expire(orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}

// MarkDelivered flags a paid order as delivered.
func (r *JSONShopRepository) MarkDelivered(ctx context.Context, orderID string) error {
	return r.mutate(func(d *document) error {
		return d.markDelivered(orderID)
	})
}

// Order returns a copy of a single order.
func (r *JSONShopRepository) Order(ctx context.Context, orderID string) (*model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.doc.order(orderID)
}

// ListOrders returns copies of the orders passing filter.
func (r *JSONShopRepository) ListOrders(ctx context.Context, filter model.OrderFilter) ([]*model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.doc.listOrders(filter), nil
}

// Panel returns the stored panel reference.
func (r *JSONShopRepository) Panel(ctx context.Context) (model.PanelRef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.doc.panel(), nil
}

// SetPanel overwrites the panel reference.
func (r *JSONShopRepository) SetPanel(ctx context.Context, ref model.PanelRef) error {
	return r.mutate(func(d *document) error {
		d.setPanel(ref)
		return nil
	})
}

// Ping verifies the store file is still present.
func (r *JSONShopRepository) Ping(ctx context.Context) error {
	_, err := os.Stat(r.path)
	return err
}

// Close is a no-op; every mutation is already on disk.
func (r *JSONShopRepository) Close() error {
	return nil
}

// Ensure JSONShopRepository implements ShopRepository
var _ ShopRepository = (*JSONShopRepository)(nil)

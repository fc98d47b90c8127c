package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"keyshop-bot/internal/model"
)

const (
	settingPanelChannel = "panel_channel_id"
	settingPanelMessage = "panel_message_id"
)

// dialect captures the few places the supported SQL engines disagree.
type dialect struct {
	name          string
	schema        []string
	upsertSetting string
	forUpdate     string
	numbered      bool // $1, $2 placeholders instead of ?
}

// bind rewrites ? placeholders for engines that want numbered ones.
func (d dialect) bind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// SQLShopRepository implements ShopRepository on database/sql. Each mutation
// runs in one transaction and status changes are guarded by
// "WHERE status = 'pending'" so a second writer sees zero affected rows.
type SQLShopRepository struct {
	db *sql.DB
	d  dialect
}

func newSQLShopRepository(db *sql.DB, d dialect) (*SQLShopRepository, error) {
	for _, stmt := range d.schema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("failed to create %s tables: %w", d.name, err)
		}
	}
	return &SQLShopRepository{db: db, d: d}, nil
}

func (r *SQLShopRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Counts returns the number of available keys per tier.
func (r *SQLShopRepository) Counts(ctx context.Context) (model.Stock, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT tier, COUNT(*) FROM shop_keys GROUP BY tier`)
	if err != nil {
		return nil, fmt.Errorf("failed to count keys: %w", err)
	}
	defer rows.Close()

	stock := make(model.Stock, len(model.Tiers))
	for _, t := range model.Tiers {
		stock[t] = 0
	}
	for rows.Next() {
		var tier string
		var n int
		if err := rows.Scan(&tier, &n); err != nil {
			return nil, fmt.Errorf("failed to scan key count: %w", err)
		}
		if t := model.Tier(tier); t.Valid() {
			stock[t] = n
		}
	}
	return stock, rows.Err()
}

// Keys returns the tier's keys in delivery order.
func (r *SQLShopRepository) Keys(ctx context.Context, tier model.Tier) ([]string, error) {
	if !tier.Valid() {
		return nil, model.ErrInvalidTier
	}
	rows, err := r.db.QueryContext(ctx, r.d.bind(`SELECT key_value FROM shop_keys WHERE tier = ? ORDER BY id`), string(tier))
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// AddKey appends key to the tier.
func (r *SQLShopRepository) AddKey(ctx context.Context, tier model.Tier, key string) (int, error) {
	if !tier.Valid() {
		return 0, model.ErrInvalidTier
	}
	var count int
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, r.d.bind(`INSERT INTO shop_keys (tier, key_value) VALUES (?, ?)`), string(tier), key); err != nil {
			return fmt.Errorf("failed to insert key: %w", err)
		}
		return tx.QueryRowContext(ctx, r.d.bind(`SELECT COUNT(*) FROM shop_keys WHERE tier = ?`), string(tier)).Scan(&count)
	})
	return count, err
}

// CreateOrder inserts a pending order after re-checking availability.
func (r *SQLShopRepository) CreateOrder(ctx context.Context, order *model.Order) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		var available int
		if err := tx.QueryRowContext(ctx, r.d.bind(`SELECT COUNT(*) FROM shop_keys WHERE tier = ?`), string(order.Tier)).Scan(&available); err != nil {
			return fmt.Errorf("failed to count keys: %w", err)
		}
		if available < order.Quantity {
			return model.ErrInsufficientInventory
		}

		keys, err := encodeKeys(order.Keys)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, r.d.bind(`
			INSERT INTO shop_orders (id, user_id, tier, quantity, total, status, delivered_keys, delivered, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			order.ID, order.UserID, string(order.Tier), order.Quantity, order.Total, string(order.Status),
			keys, boolToInt(order.Delivered), order.CreatedAt.UnixMilli(), order.UpdatedAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("failed to insert order: %w", err)
		}
		return nil
	})
}

// FulfillOrder consumes keys for the pending order matching note and amount.
func (r *SQLShopRepository) FulfillOrder(ctx context.Context, note string, amount int64) (*model.Order, error) {
	var paid *model.Order
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		order, err := r.scanOrder(tx.QueryRowContext(ctx, r.d.bind(orderColumns+
			` WHERE id = ? AND total = ? AND status = ?`+r.d.forUpdate), note, amount, string(model.StatusPending)))
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to find order: %w", err)
		}

		rows, err := tx.QueryContext(ctx, r.d.bind(`SELECT id, key_value FROM shop_keys WHERE tier = ? ORDER BY id LIMIT ?`+r.d.forUpdate),
			string(order.Tier), order.Quantity)
		if err != nil {
			return fmt.Errorf("failed to select keys: %w", err)
		}
		ids := make([]any, 0, order.Quantity)
		consumed := make([]string, 0, order.Quantity)
		for rows.Next() {
			var id int64
			var k string
			if err := rows.Scan(&id, &k); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan key: %w", err)
			}
			ids = append(ids, id)
			consumed = append(consumed, k)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("failed to read keys: %w", err)
		}
		if len(ids) < order.Quantity {
			return model.ErrInsufficientInventory
		}

		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
		res, err := tx.ExecContext(ctx, r.d.bind(`DELETE FROM shop_keys WHERE id IN (`+placeholders+`)`), ids...)
		if err != nil {
			return fmt.Errorf("failed to consume keys: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil || n != int64(len(ids)) {
			return model.ErrInsufficientInventory
		}

		if err := order.MarkPaid(consumed); err != nil {
			return err
		}
		keys, err := encodeKeys(order.Keys)
		if err != nil {
			return err
		}
		res, err = tx.ExecContext(ctx, r.d.bind(`UPDATE shop_orders SET status = ?, delivered_keys = ?, updated_at = ? WHERE id = ? AND status = ?`),
			string(model.StatusPaid), keys, order.UpdatedAt.UnixMilli(), order.ID, string(model.StatusPending))
		if err != nil {
			return fmt.Errorf("failed to mark order paid: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil || n != 1 {
			return model.ErrOrderNotFound
		}

		paid = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

// ExpireOrder moves a pending order to expired.
func (r *SQLShopRepository) ExpireOrder(ctx context.Context, orderID string) (*model.Order, error) {
	var expired *model.Order
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		order, err := r.scanOrder(tx.QueryRowContext(ctx, r.d.bind(orderColumns+` WHERE id = ?`+r.d.forUpdate), orderID))
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to find order: %w", err)
		}
		if err := order.Expire(); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, r.d.bind(`UPDATE shop_orders SET status = ?, updated_at = ? WHERE id = ? AND status = ?`),
			string(model.StatusExpired), order.UpdatedAt.UnixMilli(), order.ID, string(model.StatusPending))
		if err != nil {
			return fmt.Errorf("failed to expire order: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil || n != 1 {
			return model.ErrInvalidTransition
		}
		expired = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}

// MarkDelivered flags a paid order as delivered.
func (r *SQLShopRepository) MarkDelivered(ctx context.Context, orderID string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		order, err := r.scanOrder(tx.QueryRowContext(ctx, r.d.bind(orderColumns+` WHERE id = ?`+r.d.forUpdate), orderID))
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to find order: %w", err)
		}
		if err := order.MarkDelivered(); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, r.d.bind(`UPDATE shop_orders SET delivered = ?, updated_at = ? WHERE id = ?`),
			1, order.UpdatedAt.UnixMilli(), order.ID)
		if err != nil {
			return fmt.Errorf("failed to mark order delivered: %w", err)
		}
		return nil
	})
}

// Order returns a single order by id.
func (r *SQLShopRepository) Order(ctx context.Context, orderID string) (*model.Order, error) {
	order, err := r.scanOrder(r.db.QueryRowContext(ctx, r.d.bind(orderColumns+` WHERE id = ?`), orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

// ListOrders returns orders passing filter in creation order.
func (r *SQLShopRepository) ListOrders(ctx context.Context, filter model.OrderFilter) ([]*model.Order, error) {
	var where []string
	var args []any
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Undelivered {
		where = append(where, "delivered = 0")
	}
	query := orderColumns
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"

	rows, err := r.db.QueryContext(ctx, r.d.bind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := []*model.Order{}
	for rows.Next() {
		o, err := r.scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// Panel returns the stored panel reference.
func (r *SQLShopRepository) Panel(ctx context.Context) (model.PanelRef, error) {
	rows, err := r.db.QueryContext(ctx, r.d.bind(`SELECT name, value FROM shop_settings WHERE name IN (?, ?)`),
		settingPanelChannel, settingPanelMessage)
	if err != nil {
		return model.PanelRef{}, fmt.Errorf("failed to get panel: %w", err)
	}
	defer rows.Close()

	var ref model.PanelRef
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return model.PanelRef{}, fmt.Errorf("failed to scan panel: %w", err)
		}
		switch name {
		case settingPanelChannel:
			ref.ChannelID = value
		case settingPanelMessage:
			ref.MessageID = value
		}
	}
	return ref, rows.Err()
}

// SetPanel overwrites the panel reference.
func (r *SQLShopRepository) SetPanel(ctx context.Context, ref model.PanelRef) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		for name, value := range map[string]string{
			settingPanelChannel: ref.ChannelID,
			settingPanelMessage: ref.MessageID,
		} {
			if _, err := tx.ExecContext(ctx, r.d.bind(r.d.upsertSetting), name, value); err != nil {
				return fmt.Errorf("failed to save panel: %w", err)
			}
		}
		return nil
	})
}

// Ping checks the database connection.
func (r *SQLShopRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLShopRepository) Close() error {
	return r.db.Close()
}

const orderColumns = `SELECT id, user_id, tier, quantity, total, status, delivered_keys, delivered, created_at, updated_at FROM shop_orders`

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLShopRepository) scanOrder(row rowScanner) (*model.Order, error) {
	var (
		o                  model.Order
		tier, status, keys string
		delivered          int
		created, updated   int64
	)
	if err := row.Scan(&o.ID, &o.UserID, &tier, &o.Quantity, &o.Total, &status, &keys, &delivered, &created, &updated); err != nil {
		return nil, err
	}
	o.Tier = model.Tier(tier)
	o.Status = model.OrderStatus(status)
	o.Delivered = delivered != 0
	o.CreatedAt = time.UnixMilli(created).UTC()
	o.UpdatedAt = time.UnixMilli(updated).UTC()
	if keys != "" {
		if err := json.Unmarshal([]byte(keys), &o.Keys); err != nil {
			return nil, fmt.Errorf("failed to decode delivered keys of %s: %w", o.ID, err)
		}
	}
	return &o, nil
}

func encodeKeys(keys []string) (string, error) {
	if len(keys) == 0 {
		return "", nil
	}
	data, err := json.Marshal(keys)
	if err != nil {
		return "", fmt.Errorf("failed to encode keys: %w", err)
	}
	return string(data), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Ensure SQLShopRepository implements ShopRepository
var _ ShopRepository = (*SQLShopRepository)(nil)

package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stassart/go-shop-orders/internal/inventory"
)

// Repository is the persistence contract of the order lifecycle. The
// three create paths differ on purpose: CreateFromCart consumes the
// owner's cart, CreateWithItems validates and reserves in one unit,
// CreateGuest persists client-declared lines without touching stock.
type Repository interface {
	CreateFromCart(ctx context.Context, ownerID string, o *Order, reserve bool) (*Order, error)
	CreateWithItems(ctx context.Context, o *Order, specs []ItemSpec) (*Order, error)
	CreateGuest(ctx context.Context, o *Order, items []Item) (*Order, error)
	ByID(ctx context.Context, id string) (*Order, error)
	ByUser(ctx context.Context, userID string) ([]Order, error)
	SetPaymentIntent(ctx context.Context, orderID, intentID string) error
	MarkPaid(ctx context.Context, orderID, intentID string) (bool, error)
	MarkCancelled(ctx context.Context, orderID string) error
	ClearStockReservation(ctx context.Context, orderID string) (bool, error)
	HasPurchased(ctx context.Context, userID, productID string) (bool, error)
}

type Repo struct{ DB *pgxpool.Pool }

var _ Repository = (*Repo)(nil)

const orderColumns = `id, order_number, COALESCE(user_id,''), COALESCE(guest_token,''),
	status, payment_status, delivery_type, delivery_address, delivery_date,
	delivery_time_slot, delivery_notes, customer_name, customer_email,
	customer_phone, notes, total_cents, COALESCE(payment_intent_id,''),
	stock_reserved, created_at, updated_at, paid_at`

// CreateFromCart turns the owner's cart into a PENDING order in one
// transaction: product rows locked, stock re-validated (and reserved
// when reserve is set), order and items inserted, cart deleted.
func (r *Repo) CreateFromCart(ctx context.Context, ownerID string, o *Order, reserve bool) (*Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var cartID string
	var total int64
	err = tx.QueryRow(ctx, `SELECT id, total_cents FROM carts WHERE owner_id=$1 FOR UPDATE`, ownerID).
		Scan(&cartID, &total)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEmptyCart
	}
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT product_id, quantity, unit_price_cents
		FROM cart_items WHERE cart_id=$1 ORDER BY product_id`, cartID)
	if err != nil {
		return nil, err
	}
	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ProductID, &it.Quantity, &it.UnitPriceCents); err != nil {
			rows.Close()
			return nil, err
		}
		items = append(items, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	// Under reserve-on-add the cart already holds these units, so stock
	// is not rechecked here; the row lock still serializes this checkout
	// against concurrent catalog edits.
	for _, it := range items {
		var stock int
		err := tx.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1 FOR UPDATE`, it.ProductID).Scan(&stock)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("product %s: %w", it.ProductID, inventory.ErrNotFound)
		}
		if err != nil {
			return nil, err
		}
		if reserve {
			if stock < it.Quantity {
				return nil, fmt.Errorf("product %s: %w", it.ProductID, inventory.ErrInsufficientStock)
			}
			if _, err := tx.Exec(ctx, `UPDATE products SET stock = stock - $2, updated_at = now() WHERE id=$1`,
				it.ProductID, it.Quantity); err != nil {
				return nil, err
			}
		}
	}

	o.ID = uuid.NewString()
	o.Status = StatusPending
	o.PaymentStatus = PaymentPending
	o.TotalCents = total
	o.StockReserved = true
	if err := insertOrder(ctx, tx, o); err != nil {
		return nil, err
	}
	for i := range items {
		items[i].ID = uuid.NewString()
		items[i].OrderID = o.ID
		if err := insertItem(ctx, tx, &items[i]); err != nil {
			return nil, err
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id=$1`, cartID); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM carts WHERE id=$1`, cartID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	o.Items = items
	return o, nil
}

// CreateWithItems builds an order directly from catalog products:
// validate, price, decrement stock and persist, all or nothing.
func (r *Repo) CreateWithItems(ctx context.Context, o *Order, specs []ItemSpec) (*Order, error) {
	if len(specs) == 0 {
		return nil, ErrNoItems
	}
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var total int64
	items := make([]Item, 0, len(specs))
	for _, sp := range specs {
		if sp.Quantity <= 0 {
			return nil, fmt.Errorf("product %s: %w", sp.ProductID, ErrInvalidQuantity)
		}
		var price int64
		var stock int
		err := tx.QueryRow(ctx, `SELECT price_cents, stock FROM products WHERE id=$1 FOR UPDATE`, sp.ProductID).
			Scan(&price, &stock)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("product %s: %w", sp.ProductID, inventory.ErrNotFound)
		}
		if err != nil {
			return nil, err
		}
		if stock < sp.Quantity {
			return nil, fmt.Errorf("product %s: %w", sp.ProductID, inventory.ErrInsufficientStock)
		}
		if _, err := tx.Exec(ctx, `UPDATE products SET stock = stock - $2, updated_at = now() WHERE id=$1`,
			sp.ProductID, sp.Quantity); err != nil {
			return nil, err
		}
		total += price * int64(sp.Quantity)
		items = append(items, Item{ProductID: sp.ProductID, Quantity: sp.Quantity, UnitPriceCents: price})
	}

	o.ID = uuid.NewString()
	o.Status = StatusPending
	o.PaymentStatus = PaymentPending
	o.TotalCents = total
	o.StockReserved = true
	if err := insertOrder(ctx, tx, o); err != nil {
		return nil, err
	}
	for i := range items {
		items[i].ID = uuid.NewString()
		items[i].OrderID = o.ID
		if err := insertItem(ctx, tx, &items[i]); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	o.Items = items
	return o, nil
}

// CreateGuest persists the order as declared. No stock reservation;
// the guest path trades that validation away for a checkout without
// an account.
func (r *Repo) CreateGuest(ctx context.Context, o *Order, items []Item) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	o.ID = uuid.NewString()
	o.Status = StatusPending
	o.PaymentStatus = PaymentPending
	o.StockReserved = false
	if err := insertOrder(ctx, tx, o); err != nil {
		return nil, err
	}
	for i := range items {
		items[i].ID = uuid.NewString()
		items[i].OrderID = o.ID
		if err := insertItem(ctx, tx, &items[i]); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	o.Items = items
	return o, nil
}

func insertOrder(ctx context.Context, tx pgx.Tx, o *Order) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO orders(id, order_number, user_id, guest_token, status, payment_status,
			delivery_type, delivery_address, delivery_date, delivery_time_slot, delivery_notes,
			customer_name, customer_email, customer_phone, notes, total_cents, stock_reserved)
		VALUES ($1,$2,NULLIF($3,''),NULLIF($4,''),$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		o.ID, o.OrderNumber, o.UserID, o.GuestToken, o.Status, o.PaymentStatus,
		o.Delivery.Type, o.Delivery.Address, o.Delivery.Date, o.Delivery.TimeSlot, o.Delivery.Notes,
		o.CustomerName, o.CustomerEmail, o.CustomerPhone, o.Notes, o.TotalCents, o.StockReserved)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateNumber
	}
	return err
}

func insertItem(ctx context.Context, tx pgx.Tx, it *Item) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO order_items(id, order_id, product_id, quantity, unit_price_cents)
		VALUES ($1,$2,$3,$4,$5)`,
		it.ID, it.OrderID, it.ProductID, it.Quantity, it.UnitPriceCents)
	return err
}

func (r *Repo) ByID(ctx context.Context, id string) (*Order, error) {
	var o Order
	err := r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id).Scan(
		&o.ID, &o.OrderNumber, &o.UserID, &o.GuestToken, &o.Status, &o.PaymentStatus,
		&o.Delivery.Type, &o.Delivery.Address, &o.Delivery.Date, &o.Delivery.TimeSlot, &o.Delivery.Notes,
		&o.CustomerName, &o.CustomerEmail, &o.CustomerPhone, &o.Notes, &o.TotalCents,
		&o.PaymentIntentID, &o.StockReserved, &o.CreatedAt, &o.UpdatedAt, &o.PaidAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, product_id, quantity, unit_price_cents
		FROM order_items WHERE order_id=$1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.UnitPriceCents); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *Repo) ByUser(ctx context.Context, userID string) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(
			&o.ID, &o.OrderNumber, &o.UserID, &o.GuestToken, &o.Status, &o.PaymentStatus,
			&o.Delivery.Type, &o.Delivery.Address, &o.Delivery.Date, &o.Delivery.TimeSlot, &o.Delivery.Notes,
			&o.CustomerName, &o.CustomerEmail, &o.CustomerPhone, &o.Notes, &o.TotalCents,
			&o.PaymentIntentID, &o.StockReserved, &o.CreatedAt, &o.UpdatedAt, &o.PaidAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// SetPaymentIntent assigns the intent id at most once.
func (r *Repo) SetPaymentIntent(ctx context.Context, orderID, intentID string) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET payment_intent_id=$2, updated_at=now()
		WHERE id=$1 AND payment_intent_id IS NULL`, orderID, intentID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrIntentAlreadySet
	}
	return nil
}

// MarkPaid flips PENDING payment to PAID guarded by the stored intent
// id. The WHERE clause makes concurrent duplicates lose cleanly: only
// one caller sees true.
func (r *Repo) MarkPaid(ctx context.Context, orderID, intentID string) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET status=$2, payment_status=$3, paid_at=now(), updated_at=now()
		WHERE id=$1 AND payment_intent_id=$4 AND payment_status=$5`,
		orderID, StatusProcessing, PaymentPaid, intentID, PaymentPending)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (r *Repo) MarkCancelled(ctx context.Context, orderID string) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE orders SET status=$2, payment_status=$3, updated_at=now()
		WHERE id=$1`, orderID, StatusCancelled, PaymentCancelled)
	return err
}

// ClearStockReservation flips stock_reserved to false and reports
// whether this call did the flip. Only the caller that sees true may
// restore the order's quantities, so concurrent or retried cancels
// cannot return the same units twice.
func (r *Repo) ClearStockReservation(ctx context.Context, orderID string) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET stock_reserved=false, updated_at=now()
		WHERE id=$1 AND stock_reserved=true`, orderID)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (r *Repo) HasPurchased(ctx context.Context, userID, productID string) (bool, error) {
	var exists bool
	err := r.DB.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM orders o
			JOIN order_items i ON i.order_id = o.id
			WHERE o.user_id=$1 AND i.product_id=$2 AND o.status=$3)`,
		userID, productID, StatusCompleted).Scan(&exists)
	return exists, err
}

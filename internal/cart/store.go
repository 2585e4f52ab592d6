package cart

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stassart/go-shop-orders/internal/inventory"
)

// Store persists carts. Every mutator runs as one transaction with the
// touched product row locked, so two concurrent edits on the same
// product cannot both pass a stale availability check. The reserve
// flag decides whether availability checks also commit stock.
type Store interface {
	ByOwner(ctx context.Context, ownerID string) (*Cart, error)
	Create(ctx context.Context, ownerID string) (*Cart, error)
	Item(ctx context.Context, itemID string) (*Item, error)
	AddLine(ctx context.Context, cartID, productID string, qty int, reserve bool) error
	SetLineQuantity(ctx context.Context, cartID, itemID string, qty int, reserve bool) error
	Clear(ctx context.Context, cartID string, restock bool) error
	Stale(ctx context.Context, cutoff time.Time) ([]Cart, error)
	Delete(ctx context.Context, cartID string, restock bool) error
}

type PGStore struct{ DB *pgxpool.Pool }

var _ Store = (*PGStore)(nil)

func (s *PGStore) ByOwner(ctx context.Context, ownerID string) (*Cart, error) {
	var c Cart
	err := s.DB.QueryRow(ctx, `
		SELECT id, owner_id, total_cents, created_at, updated_at
		FROM carts WHERE owner_id=$1`, ownerID).
		Scan(&c.ID, &c.OwnerID, &c.TotalCents, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.Query(ctx, `
		SELECT id, cart_id, product_id, quantity, unit_price_cents
		FROM cart_items WHERE cart_id=$1 ORDER BY id`, c.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.CartID, &it.ProductID, &it.Quantity, &it.UnitPriceCents); err != nil {
			return nil, err
		}
		c.Items = append(c.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PGStore) Create(ctx context.Context, ownerID string) (*Cart, error) {
	id := uuid.NewString()
	var c Cart
	err := s.DB.QueryRow(ctx, `
		INSERT INTO carts(id, owner_id) VALUES ($1,$2)
		ON CONFLICT (owner_id) DO UPDATE SET updated_at = now()
		RETURNING id, owner_id, total_cents, created_at, updated_at`, id, ownerID).
		Scan(&c.ID, &c.OwnerID, &c.TotalCents, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PGStore) Item(ctx context.Context, itemID string) (*Item, error) {
	var it Item
	err := s.DB.QueryRow(ctx, `
		SELECT id, cart_id, product_id, quantity, unit_price_cents
		FROM cart_items WHERE id=$1`, itemID).
		Scan(&it.ID, &it.CartID, &it.ProductID, &it.Quantity, &it.UnitPriceCents)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// AddLine merges into an existing line for the same product or opens a
// new one at the current catalog price.
func (s *PGStore) AddLine(ctx context.Context, cartID, productID string, qty int, reserve bool) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var price int64
	var stock int
	err = tx.QueryRow(ctx, `SELECT price_cents, stock FROM products WHERE id=$1 FOR UPDATE`, productID).
		Scan(&price, &stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return inventory.ErrNotFound
	}
	if err != nil {
		return err
	}
	if stock < qty {
		return inventory.ErrInsufficientStock
	}
	if reserve {
		if _, err := tx.Exec(ctx, `UPDATE products SET stock = stock - $2, updated_at = now() WHERE id=$1`,
			productID, qty); err != nil {
			return err
		}
	}

	// Merge keeps the price snapshotted by the first add.
	if _, err := tx.Exec(ctx, `
		INSERT INTO cart_items(id, cart_id, product_id, quantity, unit_price_cents)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`,
		uuid.NewString(), cartID, productID, qty, price); err != nil {
		return err
	}
	if err := recomputeTotal(ctx, tx, cartID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SetLineQuantity adjusts stock by the delta between the old and the
// new quantity; zero deletes the line.
func (s *PGStore) SetLineQuantity(ctx context.Context, cartID, itemID string, qty int, reserve bool) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var current int
	var productID string
	err = tx.QueryRow(ctx, `
		SELECT quantity, product_id FROM cart_items
		WHERE id=$1 AND cart_id=$2 FOR UPDATE`, itemID, cartID).
		Scan(&current, &productID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrItemNotFound
	}
	if err != nil {
		return err
	}

	delta := qty - current
	var stock int
	err = tx.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1 FOR UPDATE`, productID).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return inventory.ErrNotFound
	}
	if err != nil {
		return err
	}
	if delta > 0 && stock < delta {
		return inventory.ErrInsufficientStock
	}
	if reserve && delta != 0 {
		if _, err := tx.Exec(ctx, `UPDATE products SET stock = stock - $2, updated_at = now() WHERE id=$1`,
			productID, delta); err != nil {
			return err
		}
	}

	if qty == 0 {
		if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE id=$1`, itemID); err != nil {
			return err
		}
	} else {
		if _, err := tx.Exec(ctx, `UPDATE cart_items SET quantity=$2 WHERE id=$1`, itemID, qty); err != nil {
			return err
		}
	}
	if err := recomputeTotal(ctx, tx, cartID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PGStore) Clear(ctx context.Context, cartID string, restock bool) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := clearLines(ctx, tx, cartID, restock); err != nil {
		return err
	}
	if err := recomputeTotal(ctx, tx, cartID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PGStore) Stale(ctx context.Context, cutoff time.Time) ([]Cart, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, owner_id, total_cents, created_at, updated_at
		FROM carts WHERE updated_at < $1`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Cart
	for rows.Next() {
		var c Cart
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.TotalCents, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PGStore) Delete(ctx context.Context, cartID string, restock bool) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := clearLines(ctx, tx, cartID, restock); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM carts WHERE id=$1`, cartID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// clearLines releases reserved quantities line by line. A product row
// that no longer exists simply matches nothing; the rest of the cart
// is still released.
func clearLines(ctx context.Context, tx pgx.Tx, cartID string, restock bool) error {
	if restock {
		rows, err := tx.Query(ctx, `
			SELECT product_id, quantity FROM cart_items WHERE cart_id=$1 ORDER BY product_id`, cartID)
		if err != nil {
			return err
		}
		type line struct {
			pid string
			qty int
		}
		var lines []line
		for rows.Next() {
			var l line
			if err := rows.Scan(&l.pid, &l.qty); err != nil {
				rows.Close()
				return err
			}
			lines = append(lines, l)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, l := range lines {
			if _, err := tx.Exec(ctx, `UPDATE products SET stock = stock + $2, updated_at = now() WHERE id=$1`,
				l.pid, l.qty); err != nil {
				return err
			}
		}
	}
	_, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id=$1`, cartID)
	return err
}

func recomputeTotal(ctx context.Context, tx pgx.Tx, cartID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE carts SET
			total_cents = COALESCE((SELECT SUM(quantity * unit_price_cents) FROM cart_items WHERE cart_id=$1), 0),
			updated_at = now()
		WHERE id=$1`, cartID)
	return err
}

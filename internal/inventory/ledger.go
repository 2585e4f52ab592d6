package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound          = errors.New("inventory: product not found")
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
)

// Product is owned by the catalog; this core reads the price and
// reads/writes the stock counter.
type Product struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	PriceCents int64     `json:"price_cents"`
	Stock      int       `json:"stock"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Ledger exposes per-product stock. Multi-row atomicity (order + items
// + stock in one unit) lives in the repositories that need it; Adjust
// covers the single-product restore paths.
type Ledger interface {
	Product(ctx context.Context, id string) (*Product, error)

	// Adjust applies delta to the product's stock, locking the row for
	// the read-then-write. A negative delta that would drive stock
	// below zero fails with ErrInsufficientStock and changes nothing.
	Adjust(ctx context.Context, id string, delta int) error
}

type PG struct{ DB *pgxpool.Pool }

func (l *PG) Product(ctx context.Context, id string) (*Product, error) {
	var p Product
	err := l.DB.QueryRow(ctx, `
		SELECT id, name, price_cents, stock, created_at, updated_at
		FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.Name, &p.PriceCents, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (l *PG) Adjust(ctx context.Context, id string, delta int) error {
	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var stock int
	err = tx.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1 FOR UPDATE`, id).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if stock+delta < 0 {
		return ErrInsufficientStock
	}
	if _, err := tx.Exec(ctx, `UPDATE products SET stock = stock + $2, updated_at = now() WHERE id=$1`, id, delta); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

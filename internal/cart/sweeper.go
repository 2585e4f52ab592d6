package cart

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/stassart/go-shop-orders/internal/events"
)

// Sweeper is the only reclamation path for abandoned carts: it
// periodically releases the reserved stock of carts idle longer than
// MaxAge and deletes them.
type Sweeper struct {
	Store  Store
	Events events.Publisher
	Log    *zap.Logger

	Interval time.Duration
	MaxAge   time.Duration
	// Restock matches the reservation policy: only reserve-on-add
	// carts hold stock that needs releasing.
	Restock bool
}

func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep releases stale carts one by one; a failing cart is logged and
// skipped rather than aborting the rest.
func (s *Sweeper) Sweep(ctx context.Context) int {
	stale, err := s.Store.Stale(ctx, time.Now().Add(-s.MaxAge))
	if err != nil {
		s.Log.Warn("stale cart lookup failed", zap.Error(err))
		return 0
	}
	swept := 0
	for _, c := range stale {
		if err := s.Store.Delete(ctx, c.ID, s.Restock); err != nil {
			s.Log.Warn("failed to release stale cart",
				zap.String("cart_id", c.ID),
				zap.String("owner_id", c.OwnerID),
				zap.Error(err))
			continue
		}
		if s.Events != nil {
			s.Events.Publish(events.EventCartSwept, c.ID, events.CartSweptPayload{
				CartID:        c.ID,
				OwnerID:       c.OwnerID,
				StockRestored: s.Restock,
			})
		}
		s.Log.Info("released stale cart",
			zap.String("cart_id", c.ID),
			zap.String("owner_id", c.OwnerID))
		swept++
	}
	return swept
}

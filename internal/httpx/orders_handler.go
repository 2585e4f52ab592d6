package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/stassart/go-shop-orders/internal/orders"
	"github.com/stassart/go-shop-orders/internal/payment"
	"github.com/stassart/go-shop-orders/internal/redisx"
)

type OrdersHandler struct {
	Orders *orders.Service
	Redis  *redis.Client
	Log    *zap.Logger
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Route("/orders", func(r chi.Router) {
		r.Use(RequireIdentity)
		r.Post("/", h.createOrder)
		r.Post("/cart/checkout", h.checkoutCart)
		r.Get("/my", h.myOrders)
		r.Get("/purchased/{productID}", h.hasPurchased)
		r.Get("/{id}", h.getOrder)
		r.Get("/{id}/status", h.getOrderStatus)
		r.Get("/{id}/payment-info", h.paymentInfo)
		r.Post("/{id}/process-payment", h.processPayment)
		r.Post("/{id}/cancel-payment", h.cancelPayment)
	})
}

type deliveryReq struct {
	DeliveryType     string `json:"delivery_type"`
	DeliveryAddress  string `json:"delivery_address"`
	DeliveryDate     string `json:"delivery_date"`
	DeliveryTimeSlot string `json:"delivery_time_slot"`
	DeliveryNotes    string `json:"delivery_notes"`
}

func (d deliveryReq) toDelivery() orders.Delivery {
	return orders.Delivery{
		Type:     orders.DeliveryType(d.DeliveryType),
		Address:  d.DeliveryAddress,
		Date:     d.DeliveryDate,
		TimeSlot: d.DeliveryTimeSlot,
		Notes:    d.DeliveryNotes,
	}
}

type createOrderReq struct {
	deliveryReq
	Items []orders.ItemSpec `json:"items"`
}

type processPaymentReq struct {
	PaymentIntentID string `json:"payment_intent_id"`
}

type orderResp struct {
	Order  *orders.Order   `json:"order"`
	Intent *payment.Intent `json:"payment_intent,omitempty"`
}

func (h *OrdersHandler) checkoutCart(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	var req deliveryReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	o, intent, err := h.Orders.CheckoutCart(r.Context(), id.ID, req.toDelivery())
	if err != nil {
		// The order may already be committed when intent creation
		// fails; it stays PENDING and the client sees the payment
		// error together with the order.
		if o != nil {
			writeJSON(w, statusFor(err), map[string]any{"error": err.Error(), "order": o})
			return
		}
		writeError(w, h.Log, err)
		return
	}
	h.cacheStatus(r, o)
	writeJSON(w, http.StatusCreated, orderResp{Order: o, Intent: intent})
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	o, intent, err := h.Orders.CreateOrder(r.Context(), id.ID, id.Email, req.toDelivery(), req.Items)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	h.cacheStatus(r, o)
	writeJSON(w, http.StatusCreated, orderResp{Order: o, Intent: intent})
}

func (h *OrdersHandler) myOrders(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	out, err := h.Orders.UserOrders(r.Context(), id.ID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) hasPurchased(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	ok, err := h.Orders.HasPurchased(r.Context(), id.ID, chi.URLParam(r, "productID"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"purchased": ok})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	o, err := h.Orders.FindOrder(r.Context(), chi.URLParam(r, "id"), id.ID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// getOrderStatus serves from the Redis cache first, the database on a
// miss. The cache key carries the requesting user id, so a hit already
// proves ownership.
func (h *OrdersHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	orderID := chi.URLParam(r, "id")

	key := fmt.Sprintf(redisx.KeyOrderStatus, id.ID, orderID)
	if s, err := h.Redis.Get(r.Context(), key).Result(); err == nil && s != "" {
		writeJSON(w, http.StatusOK, json.RawMessage(s))
		return
	}

	o, err := h.Orders.FindOrder(r.Context(), orderID, id.ID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	body := map[string]any{"status": o.Status, "payment_status": o.PaymentStatus}
	b, _ := json.Marshal(body)
	_ = h.Redis.Set(r.Context(), key, b, redisx.TTLStatusCache).Err()
	writeJSON(w, http.StatusOK, json.RawMessage(b))
}

func (h *OrdersHandler) paymentInfo(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	o, intent, cfg, err := h.Orders.PaymentInfo(r.Context(), chi.URLParam(r, "id"), id.ID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"order":          o,
		"payment_intent": intent,
		"gateway_config": cfg,
	})
}

func (h *OrdersHandler) processPayment(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	orderID := chi.URLParam(r, "id")
	var req processPaymentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.PaymentIntentID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing payment_intent_id"})
		return
	}
	if _, err := h.Orders.FindOrder(r.Context(), orderID, id.ID); err != nil {
		writeError(w, h.Log, err)
		return
	}

	// Redis dedup shortcut for repeat confirmations; the conditional
	// update in the service stays the source of truth.
	dkey := fmt.Sprintf(redisx.KeyPaymentDedup, orderID, req.PaymentIntentID)
	if ok, _ := redisx.AcquireOnce(r.Context(), h.Redis, dkey, redisx.TTLPaymentDedup); !ok {
		o, err := h.Orders.FindOrder(r.Context(), orderID, id.ID)
		if err != nil {
			writeError(w, h.Log, err)
			return
		}
		writeJSON(w, http.StatusOK, o)
		return
	}

	o, err := h.Orders.ProcessSuccessfulPayment(r.Context(), orderID, req.PaymentIntentID)
	if err != nil {
		// Release the dedup key so the client can retry after a
		// transient failure.
		_ = h.Redis.Del(r.Context(), dkey).Err()
		writeError(w, h.Log, err)
		return
	}
	h.cacheStatus(r, o)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) cancelPayment(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	orderID := chi.URLParam(r, "id")
	if _, err := h.Orders.FindOrder(r.Context(), orderID, id.ID); err != nil {
		writeError(w, h.Log, err)
		return
	}
	o, err := h.Orders.CancelOrderPayment(r.Context(), orderID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	h.cacheStatus(r, o)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) cacheStatus(r *http.Request, o *orders.Order) {
	body, _ := json.Marshal(map[string]any{"status": o.Status, "payment_status": o.PaymentStatus})
	key := fmt.Sprintf(redisx.KeyOrderStatus, o.UserID, o.ID)
	_ = h.Redis.Set(r.Context(), key, body, redisx.TTLStatusCache).Err()
}

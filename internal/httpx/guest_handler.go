package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/stassart/go-shop-orders/internal/guest"
	"github.com/stassart/go-shop-orders/internal/orders"
	"github.com/stassart/go-shop-orders/internal/payment"
)

// GuestHandler serves the unauthenticated checkout flow. The guest
// identifies itself with an X-Guest-Token header on creation and the
// signed access token afterwards.
type GuestHandler struct {
	Guests *guest.Service
	Log    *zap.Logger
}

func (h *GuestHandler) Register(r *chi.Mux) {
	r.Post("/orders/guest-checkout", h.checkout)
	r.Get("/orders/guest-order/{id}", h.getOrder)
	r.Post("/orders/guest-order/{id}/process-payment", h.processPayment)
}

type guestCheckoutResp struct {
	Order       *orders.Order   `json:"order"`
	Intent      *payment.Intent `json:"payment_intent,omitempty"`
	AccessToken string          `json:"access_token"`
}

func (h *GuestHandler) checkout(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("X-Guest-Token")
	var dto guest.CreateOrderDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	o, intent, access, err := h.Guests.CreateOrder(r.Context(), dto, token)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, guestCheckoutResp{Order: o, Intent: intent, AccessToken: access})
}

func (h *GuestHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Guests.FindOrder(r.Context(), chi.URLParam(r, "id"), accessToken(r))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type guestPaymentReq struct {
	PaymentIntentID string `json:"payment_intent_id"`
	AccessToken     string `json:"access_token"`
}

func (h *GuestHandler) processPayment(w http.ResponseWriter, r *http.Request) {
	var req guestPaymentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.PaymentIntentID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing payment_intent_id"})
		return
	}
	tok := req.AccessToken
	if tok == "" {
		tok = accessToken(r)
	}
	o, err := h.Guests.ProcessPayment(r.Context(), chi.URLParam(r, "id"), req.PaymentIntentID, tok)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func accessToken(r *http.Request) string {
	if t := r.Header.Get("X-Access-Token"); t != "" {
		return t
	}
	return r.URL.Query().Get("access_token")
}

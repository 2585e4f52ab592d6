package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/stassart/go-shop-orders/internal/cart"
)

type CartHandler struct {
	Carts *cart.Service
	Log   *zap.Logger
}

func (h *CartHandler) Register(r *chi.Mux) {
	r.Route("/orders/cart", func(r chi.Router) {
		r.Use(RequireIdentity)
		r.Get("/", h.getCart)
		r.Post("/add", h.addItem)
		r.Put("/update/{itemID}", h.updateItem)
		r.Delete("/remove/{itemID}", h.removeItem)
		r.Delete("/clear", h.clearCart)
	})
}

type addItemReq struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type updateItemReq struct {
	Quantity int `json:"quantity"`
}

func (h *CartHandler) getCart(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	c, err := h.Carts.GetOrCreate(r.Context(), id.ID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CartHandler) addItem(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	var req addItemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.ProductID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing product_id"})
		return
	}
	c, err := h.Carts.AddItem(r.Context(), id.ID, req.ProductID, req.Quantity)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CartHandler) updateItem(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	itemID := chi.URLParam(r, "itemID")
	var req updateItemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	c, err := h.Carts.UpdateItem(r.Context(), id.ID, itemID, req.Quantity)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CartHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	c, err := h.Carts.RemoveItem(r.Context(), id.ID, chi.URLParam(r, "itemID"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CartHandler) clearCart(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	c, err := h.Carts.Clear(r.Context(), id.ID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/stassart/go-shop-orders/internal/payment"
)

type PaymentHandler struct {
	Gateway payment.Gateway
	Log     *zap.Logger
}

func (h *PaymentHandler) Register(r *chi.Mux) {
	r.Get("/payments/config", h.config)
	r.Route("/payments/intents/{id}", func(r chi.Router) {
		r.Use(RequireIdentity)
		r.Get("/", h.getIntent)
		r.Post("/confirm", h.confirm)
		r.Post("/cancel", h.cancel)
	})
}

func (h *PaymentHandler) config(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Gateway.PublicConfig())
}

func (h *PaymentHandler) getIntent(w http.ResponseWriter, r *http.Request) {
	intent, err := h.Gateway.Retrieve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, intent)
}

func (h *PaymentHandler) confirm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	confirmed, err := h.Gateway.ConfirmOnServer(r.Context(), id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "confirmed": confirmed})
}

func (h *PaymentHandler) cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Gateway.Cancel(r.Context(), id); err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "cancelled": true})
}

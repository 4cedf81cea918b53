package api

import (
	"net/http"

	"github.com/example/storefront-orders/internal/api/middleware"
	"github.com/example/storefront-orders/internal/command"
	"github.com/example/storefront-orders/internal/domain/order"
	"github.com/go-chi/chi/v5"
)

type createOrderRequest struct {
	ShippingAddress order.ShippingAddress `json:"shipping_address"`
	PaymentMethod   string                `json:"payment_method"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// Order Handlers

func (h *Handlers) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	actor := middleware.GetActor(r.Context())
	o, err := h.cmdHandler.CreateOrder(r.Context(), command.CreateOrder{
		UserID:          actor.UserID,
		Customer:        order.Customer{Email: actor.Email, Name: actor.Name},
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, o)
}

func (h *Handlers) GetMyOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.queryHandler.ListMyOrders(r.Context(), middleware.GetActor(r.Context()))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.queryHandler.GetOrder(r.Context(), chi.URLParam(r, "id"), middleware.GetActor(r.Context()))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// Payment Handlers

func (h *Handlers) BeginPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.cmdHandler.BeginPayment(r.Context(), command.BeginPayment{
		OrderID: chi.URLParam(r, "id"),
		Actor:   middleware.GetActor(r.Context()),
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handlers) ExecutePayment(w http.ResponseWriter, r *http.Request) {
	var cmd command.ConfirmPayment
	if !decodeJSON(w, r, &cmd) {
		return
	}
	cmd.OrderID = chi.URLParam(r, "id")
	cmd.Actor = middleware.GetActor(r.Context())

	o, err := h.cmdHandler.ConfirmPayment(r.Context(), cmd)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) PaymentMethods(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string][]string{"payment_methods": h.cmdHandler.PaymentMethods()})
}

// Admin Handlers

func (h *Handlers) GetAllOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.queryHandler.ListAllOrders(r.Context(), middleware.GetActor(r.Context()))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *Handlers) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	o, err := h.cmdHandler.UpdateFulfillmentStatus(r.Context(), command.UpdateFulfillmentStatus{
		OrderID: chi.URLParam(r, "id"),
		Status:  req.Status,
		Actor:   middleware.GetActor(r.Context()),
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

package handler

import (
	"net/http"
	"reflect"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/vasiliy-maslov/ecommerce-backend/internal/order"
)

type CreateOrderItemRequest struct {
	ProductID *uuid.UUID      `json:"productId" validate:"required_without=VariantID"`
	VariantID *uuid.UUID      `json:"variantId" validate:"required_without=ProductID"`
	Quantity  int             `json:"quantity" validate:"required,gt=0"`
	Price     decimal.Decimal `json:"price" validate:"gte=0"`
}

type CreateOrderRequest struct {
	UserID    uuid.UUID                `json:"userId" validate:"required"`
	SessionID *string                  `json:"sessionId" validate:"omitempty,min=1"`
	Items     []CreateOrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

type UpdateOrderStatusRequest struct {
	Status order.OrderStatus `json:"status" validate:"required,oneof=PENDING FAILED PAID SHIPPED"`
}

type OrderHandler struct {
	service  order.Service
	validate *validator.Validate
}

func NewOrderHandler(service order.Service) *OrderHandler {
	return &OrderHandler{service: service, validate: newValidator()}
}

func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Post("/orders", h.handleCreateOrder)
	router.Get("/orders/{id}", h.handleGetOrderByID)
	router.Patch("/orders/{id}/status", h.handleUpdateOrderStatus)
	router.Get("/users/{id}/orders", h.handleGetOrdersByUser)
}

func (h *OrderHandler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var requestPayload CreateOrderRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	domainOrder := order.Order{
		UserID:    requestPayload.UserID,
		SessionID: requestPayload.SessionID,
		Items:     make([]order.OrderItem, 0, len(requestPayload.Items)),
	}
	for _, item := range requestPayload.Items {
		domainOrder.Items = append(domainOrder.Items, order.OrderItem{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}

	created, err := h.service.CreateOrder(r.Context(), &domainOrder)
	if err != nil {
		statusCode := mapErrorToStatusCode(err)
		log.Error().Err(err).Msg("Failed to create order via service")
		respondWithError(w, statusCode, clientMessage(err, statusCode, "Failed to create order"))
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

func (h *OrderHandler) handleGetOrderByID(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	found, err := h.service.GetOrderByID(r.Context(), orderID)
	if err != nil {
		statusCode := mapErrorToStatusCode(err)
		log.Error().Err(err).Stringer("order_id", orderID).Msg("Failed to get order by id via service")
		respondWithError(w, statusCode, clientMessage(err, statusCode, "Failed to get order"))
		return
	}

	respondWithJSON(w, http.StatusOK, found)
}

func (h *OrderHandler) handleUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	var requestPayload UpdateOrderStatusRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	if err := h.service.UpdateOrderStatus(r.Context(), orderID, requestPayload.Status); err != nil {
		statusCode := mapErrorToStatusCode(err)
		log.Error().Err(err).Stringer("order_id", orderID).Msg("Failed to update order status via service")
		respondWithError(w, statusCode, clientMessage(err, statusCode, "Failed to update order status"))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *OrderHandler) handleGetOrdersByUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	orders, err := h.service.GetOrdersByUserID(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("Failed to get user orders via service")
		respondWithError(w, http.StatusInternalServerError, "Failed to get orders")
		return
	}

	respondWithJSON(w, http.StatusOK, orders)
}

// newValidator compares decimal amounts as floats.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"ms-checkout/internal/checkout"
	"ms-checkout/internal/inventory"
	"ms-checkout/internal/models"
	"ms-checkout/internal/utils"
)

type Handler struct {
	CheckoutService *checkout.Service
}

func NewHandler(service *checkout.Service) *Handler {
	return &Handler{CheckoutService: service}
}

func (h *Handler) StartCheckout(w http.ResponseWriter, r *http.Request) {
	var req models.StartCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	session, err := h.CheckoutService.StartCheckout(r.Context(), req)
	if err != nil {
		h.writeCheckoutError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Checkout started", session))
}

func (h *Handler) CompleteCheckout(w http.ResponseWriter, r *http.Request) {
	var req models.CompleteCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	summary, err := h.CheckoutService.CompleteCheckout(r.Context(), req)
	if err != nil {
		h.writeCheckoutError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Order created", summary))
}

// writeCheckoutError maps the checkout error taxonomy onto HTTP statuses.
// Availability losses come back with the requested/available counts so the
// client can adjust the cart rather than guess.
func (h *Handler) writeCheckoutError(w http.ResponseWriter, err error) {
	var validationErr *checkout.ValidationError
	var ownershipErr *checkout.OwnershipMismatchError
	var quantityErr *checkout.QuantityOutOfRangeError
	var inventoryErr *inventory.InsufficientInventoryError

	switch {
	case errors.As(err, &validationErr):
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Validation failed", validationErr.Error()))
	case errors.As(err, &ownershipErr):
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Cart does not match event", ownershipErr.Error()))
	case errors.As(err, &quantityErr):
		resp := utils.ErrorResponse("Quantity out of range", quantityErr.Error())
		resp.Data = map[string]interface{}{
			"ticket_type_id": quantityErr.TicketTypeID,
			"quantity":       quantityErr.Quantity,
			"min_per_order":  quantityErr.Min,
			"max_per_order":  quantityErr.Max,
		}
		utils.WriteJSON(w, http.StatusBadRequest, resp)
	case errors.As(err, &inventoryErr):
		resp := utils.ErrorResponse("Insufficient availability", inventoryErr.Error())
		resp.Data = map[string]interface{}{
			"ticket_type_id": inventoryErr.TicketTypeID,
			"requested":      inventoryErr.Requested,
			"available":      inventoryErr.Available,
		}
		utils.WriteJSON(w, http.StatusBadRequest, resp)
	case errors.Is(err, checkout.ErrEventNotFound),
		errors.Is(err, checkout.ErrTicketTypeNotFound),
		errors.Is(err, checkout.ErrSessionNotFound):
		utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("Not found", err.Error()))
	case errors.Is(err, checkout.ErrSessionExpired):
		utils.WriteJSON(w, http.StatusGone, utils.ErrorResponse("Checkout session expired", err.Error()))
	case errors.Is(err, inventory.ErrInvalidQuantity):
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid quantity", err.Error()))
	default:
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Checkout failed", err.Error()))
	}
}

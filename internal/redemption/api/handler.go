package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-checkout/internal/auth"
	"ms-checkout/internal/redemption"
	"ms-checkout/internal/utils"
)

type Handler struct {
	RedemptionService *redemption.Service
}

func NewHandler(service *redemption.Service) *Handler {
	return &Handler{RedemptionService: service}
}

// Redeem always answers 200 for a well-formed request: a rejected scan is a
// business outcome carried in the body, not a transport failure. Only a
// malformed body or an internal fault gets a non-200.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req redemption.RedeemInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	// When the gate staff authenticated, their identity wins over whatever
	// the client claims.
	if uid := auth.UserID(r.Context()); uid != "" {
		req.ScannedBy = uid
	}

	result, err := h.RedemptionService.Redeem(r.Context(), req)
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Redemption failed", err.Error()))
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse(result.Message, result))
}

func (h *Handler) Peek(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if code == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Missing ticket code", "code path parameter is required"))
		return
	}
	organizerID := r.URL.Query().Get("organizer_id")

	result, err := h.RedemptionService.Peek(r.Context(), code, organizerID)
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Lookup failed", err.Error()))
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Ticket lookup", result))
}

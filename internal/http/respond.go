package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/Shinra-Deskware/madzilla-backend/internal/checkout"
	"github.com/Shinra-Deskware/madzilla-backend/internal/domain"
	"github.com/Shinra-Deskware/madzilla-backend/internal/gateway"
	"github.com/Shinra-Deskware/madzilla-backend/internal/repository"
	"github.com/Shinra-Deskware/madzilla-backend/internal/service"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// handleServiceError maps domain and storage errors onto HTTP statuses.
func handleServiceError(w http.ResponseWriter, err error) {
	var illegal *domain.IllegalTransitionError
	switch {
	case errors.As(err, &illegal):
		respondError(w, http.StatusConflict, "illegal_transition", illegal.Error())
	case errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrComplaintNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, repository.ErrOptimisticLock):
		respondError(w, http.StatusConflict, "conflict", "order was modified concurrently, retry")
	case errors.Is(err, service.ErrNotOwner):
		respondError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, service.ErrIdentityRequired),
		errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrUnknownProduct),
		errors.Is(err, checkout.ErrPriceMismatch):
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, service.ErrSignatureMismatch):
		respondError(w, http.StatusBadRequest, "signature_mismatch", err.Error())
	case errors.Is(err, service.ErrComplaintClosed):
		respondError(w, http.StatusConflict, "complaint_closed", err.Error())
	case errors.Is(err, gateway.ErrGatewayUnavailable):
		respondError(w, http.StatusServiceUnavailable, "gateway_unavailable", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

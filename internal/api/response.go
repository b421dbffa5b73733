package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"tripdesk/internal/gateway"
	"tripdesk/internal/service"
)

// envelope is the body of every JSON response.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   any    `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeOK(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, statusCode int, message string, detail any) {
	writeJSON(w, statusCode, envelope{Success: false, Message: message, Error: detail})
}

// writeServiceError maps a service or gateway error onto the HTTP contract.
func writeServiceError(w http.ResponseWriter, err error) int {
	status, message, detail := classify(err)
	writeError(w, status, message, detail)
	return status
}

func classify(err error) (int, string, any) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest, "validation failed", verr.Fields
	}

	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, "validation failed", err.Error()
	case errors.Is(err, service.ErrReservationNotFound):
		// Status lookups for unknown charges answer 400, not 404.
		return http.StatusBadRequest, "reservation not found", nil
	case errors.Is(err, service.ErrProductNotFound):
		return http.StatusNotFound, "product not found", nil
	case errors.Is(err, service.ErrUnknownKind):
		return http.StatusNotFound, "unknown product kind", nil
	case errors.Is(err, service.ErrInvalidSignature):
		return http.StatusUnauthorized, "invalid signature", nil
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "forbidden", nil
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests, "too many requests", nil
	}

	var gwErr *gateway.Error
	if errors.As(err, &gwErr) {
		switch gwErr.Kind {
		case gateway.KindUnavailable:
			return http.StatusServiceUnavailable, "payment gateway unavailable", gwErr.Message
		case gateway.KindTimeout:
			return http.StatusGatewayTimeout, "payment gateway timed out", gwErr.Message
		}
		msg := gwErr.Message
		if msg == "" && gwErr.Err != nil {
			msg = gwErr.Err.Error()
		}
		return http.StatusInternalServerError, "payment gateway error", msg
	}

	return http.StatusInternalServerError, "internal error", nil
}

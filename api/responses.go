package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"ledgerbot/domain"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
)

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

// maxBodyBytes bounds request bodies of the ops API
const maxBodyBytes = 1 << 20

// decodeJSON reads exactly one JSON object from the request body and validates it
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		sendError(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		sendError(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		sendError(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}

func sendJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Warn("Failed to write response body")
	}
}

// sendError writes an ErrorResponse. Validation errors are expanded per field.
func sendError(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	resp := ErrorResponse{Error: message}

	var fieldErrs validator.ValidationErrors
	if errors.As(validationErr, &fieldErrs) {
		resp.Details = make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			resp.Details[fe.Field()] = fmt.Sprintf("Field validation failed on '%s' tag", fe.Tag())
		}
	}

	sendJSON(w, statusCode, resp)
}

// sendLedgerError maps ledger failures to HTTP status codes
func sendLedgerError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrSameAccount),
		errors.Is(err, domain.ErrInvalidAddress),
		errors.Is(err, domain.ErrInvalidGiveaway):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrAccountUnresolved),
		errors.Is(err, domain.ErrFailureNotFound),
		errors.Is(err, domain.ErrTransferNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrLockBusy),
		errors.Is(err, domain.ErrDepositPending):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrTransferMalformed):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrGatewayFailure):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		log.WithError(err).Error("Ops API request failed")
		sendError(w, "An internal error occurred", status, nil)
		return
	}
	sendError(w, err.Error(), status, nil)
}

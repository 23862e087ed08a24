package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/mcloones/rewards/internal/store"
)

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error   string            `json:"error"`             // Error message
	Code    string            `json:"code,omitempty"`    // Error kind
	Details map[string]string `json:"details,omitempty"` // Validation details
}

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

// NewValidationHelper creates a new validation helper
func NewValidationHelper() *ValidationHelper {
	return &ValidationHelper{
		validator: validator.New(),
	}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// SendErrorResponse sends a JSON error response
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	sendError(w, ErrorResponse{Error: message}, statusCode, validationErr)
}

// SendLedgerError maps a ledger error kind to its HTTP status
func SendLedgerError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "Failed to process request"

	switch {
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidReason), errors.Is(err, store.ErrInvalidCursor):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, ErrUnauthorized):
		status, message = http.StatusForbidden, err.Error()
	case errors.Is(err, ErrEmployeeNotFound):
		status, message = http.StatusNotFound, err.Error()
	case errors.Is(err, ErrEmployeeInactive):
		status, message = http.StatusConflict, err.Error()
	case errors.Is(err, ErrStorage):
		message = "Failed to record transaction, nothing was committed"
	}

	sendError(w, ErrorResponse{Error: message, Code: ErrorKind(err)}, status, nil)
}

func sendError(w http.ResponseWriter, resp ErrorResponse, statusCode int, validationErr error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	var fieldErrs validator.ValidationErrors
	if errors.As(validationErr, &fieldErrs) {
		resp.Details = make(map[string]string)
		for _, err := range fieldErrs {
			resp.Details[err.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
		}
	}

	json.NewEncoder(w).Encode(resp)
}

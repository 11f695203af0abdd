package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hay-kot/criterio"

	"crm-api/internal/model"
	"crm-api/internal/undo"
	"crm-api/pkg/apierror"
)

func writeSuccess(w http.ResponseWriter, status int, data any, meta *model.Meta) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := &model.APIError{
		Code:    "INTERNAL_ERROR",
		Message: "Unexpected server error",
	}

	var fieldErrs criterio.FieldErrors
	if apiErr, ok := apierror.As(err); ok {
		status = apiErr.HTTPStatus
		body.Code = apiErr.Code
		body.Message = apiErr.Message
		body.Details = apiErr.Details
	} else if errors.As(err, &fieldErrs) {
		status = http.StatusBadRequest
		body.Code = "VALIDATION_ERROR"
		body.Message = "Request validation failed"
		body.Details = fieldErrs.Error()
	} else if errors.Is(err, undo.ErrAlreadyCommitted) {
		status = http.StatusConflict
		body.Code = "ALREADY_COMMITTED"
		body.Message = "Too late to undo, the record was already deleted"
	} else if errors.Is(err, undo.ErrAlreadyResolved) {
		status = http.StatusConflict
		body.Code = "ALREADY_RESOLVED"
		body.Message = "This deletion was already undone or rolled back"
	} else if errors.Is(err, undo.ErrPendingNotFound) {
		status = http.StatusNotFound
		body.Code = "PENDING_NOT_FOUND"
		body.Message = "Pending deletion not found"
	} else if errors.Is(err, undo.ErrInvalidRecord) {
		status = http.StatusBadRequest
		body.Code = "BAD_REQUEST"
		body.Message = "Record has no identifier"
	} else if errors.Is(err, undo.ErrClosed) {
		status = http.StatusServiceUnavailable
		body.Code = "SHUTTING_DOWN"
		body.Message = "Server is shutting down, try again shortly"
	} else if errors.Is(err, model.ErrLeadNotFound) {
		status = http.StatusNotFound
		body.Code = "NOT_FOUND"
		body.Message = "Lead not found"
	} else if errors.Is(err, model.ErrOpportunityNotFound) {
		status = http.StatusNotFound
		body.Code = "NOT_FOUND"
		body.Message = "Opportunity not found"
	} else if errors.Is(err, model.ErrLeadEmailPending) {
		status = http.StatusConflict
		body.Code = "PENDING_DELETION"
		body.Message = "A lead with this email is pending deletion; undo it or retry once the deletion completes"
	} else if errors.Is(err, model.ErrLeadEmailTaken) {
		status = http.StatusConflict
		body.Code = "ALREADY_EXISTS"
		body.Message = "A lead with this email already exists"
	} else if errors.Is(err, model.ErrUserNotFound) {
		status = http.StatusNotFound
		body.Code = "NOT_FOUND"
		body.Message = "User not found"
	} else if errors.Is(err, model.ErrUserAlreadyExists) {
		status = http.StatusConflict
		body.Code = "ALREADY_EXISTS"
		body.Message = "User already exists"
	} else if errors.Is(err, model.ErrInvalidCredentials) {
		status = http.StatusUnauthorized
		body.Code = "UNAUTHORIZED"
		body.Message = "Invalid credentials"
	} else if errors.Is(err, model.ErrUnauthorized) {
		status = http.StatusUnauthorized
		body.Code = "UNAUTHORIZED"
		body.Message = "Authentication required"
	} else if errors.Is(err, model.ErrForbidden) {
		status = http.StatusForbidden
		body.Code = "FORBIDDEN"
		body.Message = "Access denied"
	} else if errors.Is(err, model.ErrTokenNotFound) || errors.Is(err, model.ErrTokenExpired) {
		status = http.StatusUnauthorized
		body.Code = "UNAUTHORIZED"
		body.Message = "Invalid or expired token"
	} else if errors.Is(err, model.ErrInvalidInput) {
		status = http.StatusBadRequest
		body.Code = "BAD_REQUEST"
		body.Message = "Invalid input"
	} else {
		// Log unclassified errors so they are visible in container logs.
		slog.Error("unhandled error in writeError", "error", err.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: false,
		Error:   body,
	})
}

// writeDeleteResult answers a delete request: 202 with the pending entry, or
// 409 with the already open entry in details when the record is pending.
func writeDeleteResult[T any](w http.ResponseWriter, pending undo.Pending[T], err error) {
	if errors.Is(err, undo.ErrDuplicatePendingDeletion) {
		details, _ := json.Marshal(pending)
		writeError(w, apierror.Conflict("DUPLICATE_PENDING_DELETION", "A deletion is already pending for this record", string(details)))
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusAccepted, pending, nil)
}
